package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/telemetry"
)

// HandleEvents streams hub notifications as server-sent events. Each event is
// named after its topic. ?topic= (repeatable or comma separated) narrows the
// stream. The current connection state and playlist are sent first.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// long-lived: lift the server write timeout for this response
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	var topics []string
	for _, v := range r.URL.Query()["topic"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	msgs, cancel := h.hub.Subscribe(events.DefaultSubscriberBuffer, topics...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "sse"))
	enc := json.NewEncoder(w)
	write := func(id uint64, topic string, payload any) bool {
		var head string
		if id > 0 {
			head = fmt.Sprintf("id: %d\n", id)
		}
		head += "event: " + topic + "\ndata: "
		if _, err := w.Write([]byte(head)); err != nil {
			logger.Debug("sse client gone", slog.Any("err", err))
			return false
		}
		if err := enc.Encode(payload); err != nil {
			logger.Warn("failed to encode SSE payload", slog.String("topic", topic), slog.Any("err", err))
			return false
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	wants := func(topic string) bool {
		if len(topics) == 0 {
			return true
		}
		for _, t := range topics {
			if t == topic {
				return true
			}
		}
		return false
	}
	if wants(events.TopicConnectionState) && !write(0, events.TopicConnectionState, h.app.State()) {
		return
	}
	if wants(events.TopicPlaylistStateUpdated) && !write(0, events.TopicPlaylistStateUpdated, h.app.Playlist()) {
		return
	}

	ping := time.NewTicker(h.ping)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !write(msg.ID, msg.Topic, msg.Payload) {
				return
			}
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
