package server

import (
	"net/http"
	"time"

	"github.com/onnwee/chatdeck/command"
)

// HandleConfig returns the non-secret runtime settings. Credentials are
// reported only as present or absent.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"LOG_LEVEL":               c.LogLevel,
		"LOG_FORMAT":              c.LogFormat,
		"ENV":                     c.Env,
		"CHAT_PLATFORM":           c.Platform,
		"CHAT_HEARTBEAT_INTERVAL": c.HeartbeatInterval.String(),
		"CHAT_BUFFER_SIZE":        c.ChatBufferSize,
		"CHAT_DISPLAY_LOG_SIZE":   c.DisplayLogSize,
		"COMMAND_DEDUP_WINDOW":    c.DedupWindow.String(),
		"COMMAND_CONFIG_PATH":     c.CommandConfigPath,
		"MQTT_TOPIC_BASE":         c.MQTTTopicBase,
		"RATE_LIMIT_ENABLED":      c.RateLimitEnabled,
		"youtube_api_key_set":     c.YouTubeAPIKey != "",
		"database_enabled":        c.DBDsn != "",
		"mqtt_enabled":            c.MQTTBroker != "",
		"tracing_enabled":         c.OTLPEndpoint != "",
		"admin_auth_enabled":      (c.AdminUsername != "" && c.AdminPassword != "") || c.AdminToken != "",
	})
}

// HandleStatus returns a lightweight summary of the connection, queue and AI helper.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	pl := h.app.Playlist()
	resp := map[string]any{
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"platform":        h.cfg.Platform,
		"connection":      h.app.State(),
		"playlist_length": len(pl.Items),
		"is_playing":      pl.IsPlaying,
		"autoplay":        pl.Autoplay,
		"chat_log_size":   len(h.app.ChatLog()),
		"ai":              h.app.AIStatus(),
	}
	if pl.CurrentIndex != nil {
		resp["current_index"] = *pl.CurrentIndex
	}
	if h.hub != nil {
		resp["stream_subscribers"] = h.hub.Subscribers()
	}
	if err := h.app.LastSessionError(); err != nil {
		resp["last_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCommandConfig returns the live command table.
func (h *Handlers) HandleCommandConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.CommandConfig())
}

// HandleCommandConfigUpdate replaces and persists the command table.
func (h *Handlers) HandleCommandConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var cfg command.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.SetCommandConfig(cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.CommandConfig())
}
