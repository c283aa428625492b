package server

import (
	"net/http"

	"github.com/onnwee/chatdeck/completion"
)

type aiConfigureRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// HandleAIConfigure selects the completion provider.
func (h *Handlers) HandleAIConfigure(w http.ResponseWriter, r *http.Request) {
	var req aiConfigureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.ConfigureAI(req.Provider, req.APIKey); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.AIStatus())
}

// HandleAIAudience records the target audience used for recommendations.
func (h *Handlers) HandleAIAudience(w http.ResponseWriter, r *http.Request) {
	var req completion.TargetAudience
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.app.SetTargetAudience(req)
	writeJSON(w, http.StatusOK, h.app.AIStatus())
}

// HandleAIAnalyze summarizes the buffered chat.
func (h *Handlers) HandleAIAnalyze(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.AnalyzeChatContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAIScripts suggests lines from the last analysis and the audience.
func (h *Handlers) HandleAIScripts(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.RecommendScripts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) HandleAIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.AIStatus())
}
