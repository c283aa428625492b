package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/chatdeck/app"
	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/chzzk"
	"github.com/onnwee/chatdeck/completion"
	"github.com/onnwee/chatdeck/media"
	"github.com/onnwee/chatdeck/playlist"
	"github.com/onnwee/chatdeck/supervisor"
)

const maxBodyBytes = 1 << 20

// parseIntQuery extracts an int parameter from the query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// pathIndex parses the {index} path value.
func pathIndex(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, errors.Join(app.ErrInvalidInput, errors.New("index must be an integer"))
	}
	return n, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(app.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("err", err))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, media.ErrInvalidInput),
		errors.Is(err, playlist.ErrIndexOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyConnected),
		errors.Is(err, supervisor.ErrConnectInProgress),
		errors.Is(err, supervisor.ErrNotConnected),
		errors.Is(err, chat.ErrSessionActive),
		errors.Is(err, app.ErrSessionMissing),
		errors.Is(err, app.ErrConnectAborted),
		errors.Is(err, playlist.ErrLimitReached):
		return http.StatusConflict
	case errors.Is(err, app.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, completion.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chzzk.ErrChannelUnavailable),
		errors.Is(err, chzzk.ErrNotLive),
		errors.Is(err, chzzk.ErrCredential),
		errors.Is(err, chat.ErrConnect),
		errors.Is(err, completion.ErrUnauthorized),
		errors.Is(err, completion.ErrEmptyResponse),
		errors.Is(err, completion.ErrNoJSON):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
