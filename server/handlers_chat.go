package server

import (
	"net/http"

	"github.com/onnwee/chatdeck/chat"
)

type connectRequest struct {
	ChannelID string `json:"channel_id"`
}

// HandleChatConnect starts a chat session for the given channel.
func (h *Handlers) HandleChatConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.Connect(r.Context(), req.ChannelID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.State())
}

// HandleChatDisconnect ends the current chat session.
func (h *Handlers) HandleChatDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Disconnect(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.State())
}

// HandleChatState reports the connection state.
func (h *Handlers) HandleChatState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.State())
}

// HandleChatLog returns the most recent chat events, oldest first. ?limit=
// trims to the newest N.
func (h *Handlers) HandleChatLog(w http.ResponseWriter, r *http.Request) {
	log := h.app.ChatLog()
	if limit := parseIntQuery(r, "limit", 0); limit > 0 && limit < len(log) {
		log = log[len(log)-limit:]
	}
	if log == nil {
		log = []chat.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": log})
}

// HandleChatLogClear empties the display log.
func (h *Handlers) HandleChatLogClear(w http.ResponseWriter, r *http.Request) {
	h.app.ClearChatLog()
	w.WriteHeader(http.StatusNoContent)
}

type chatMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HandleChatMessage feeds a line into the analysis buffer by hand.
func (h *Handlers) HandleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.AddChatMessage(req.Username, req.Message); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
