package server

import (
	"net/http"
	"strings"
)

// defaultAddedBy attributes items queued from the operator panel.
const defaultAddedBy = "operator"

// HandlePlaylist returns the queue.
func (h *Handlers) HandlePlaylist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

type playlistAddRequest struct {
	Query   string `json:"query"`
	AddedBy string `json:"added_by,omitempty"`
}

// HandlePlaylistAdd resolves a query and queues the result.
func (h *Handlers) HandlePlaylistAdd(w http.ResponseWriter, r *http.Request) {
	var req playlistAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	by := strings.TrimSpace(req.AddedBy)
	if by == "" {
		by = defaultAddedBy
	}
	item, err := h.app.PlaylistAdd(r.Context(), req.Query, by)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandlePlaylistRemove deletes the item at {index}.
func (h *Handlers) HandlePlaylistRemove(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.app.PlaylistRemove(idx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type playlistMoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// HandlePlaylistMove reorders one item.
func (h *Handlers) HandlePlaylistMove(w http.ResponseWriter, r *http.Request) {
	var req playlistMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.PlaylistMove(req.From, req.To); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

// HandlePlaylistNext advances the cursor.
func (h *Handlers) HandlePlaylistNext(w http.ResponseWriter, r *http.Request) {
	item, ok := h.app.PlaylistNext()
	writeCursor(w, item, ok)
}

// HandlePlaylistPrevious moves the cursor back.
func (h *Handlers) HandlePlaylistPrevious(w http.ResponseWriter, r *http.Request) {
	item, ok := h.app.PlaylistPrevious()
	writeCursor(w, item, ok)
}

// writeCursor answers 204 when the cursor did not land on an item.
func writeCursor(w http.ResponseWriter, item any, ok bool) {
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandlePlaylistPlayAt jumps to {index}.
func (h *Handlers) HandlePlaylistPlayAt(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.app.PlaylistPlayAt(idx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) HandlePlaylistPause(w http.ResponseWriter, r *http.Request) {
	h.app.PlaylistPause()
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

func (h *Handlers) HandlePlaylistResume(w http.ResponseWriter, r *http.Request) {
	h.app.PlaylistResume()
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

func (h *Handlers) HandlePlaylistClear(w http.ResponseWriter, r *http.Request) {
	h.app.PlaylistClear()
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

type autoplayRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handlers) HandlePlaylistAutoplay(w http.ResponseWriter, r *http.Request) {
	var req autoplayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.app.PlaylistSetAutoplay(req.Enabled)
	writeJSON(w, http.StatusOK, h.app.Playlist())
}

// HandleMediaResolve looks up ?q= without queueing it.
func (h *Handlers) HandleMediaResolve(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.ResolveMedia(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
