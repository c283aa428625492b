// Package server exposes the HTTP API: health, status, metrics, the live event
// stream, and the chat, playlist, command and AI operations used by the overlay
// and the operator panel. Mutating routes sit behind operator auth, outbound
// (network-bound) routes behind a per-IP rate limit, and every request carries
// a correlation id for consistent logging.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chatdeck/app"
	"github.com/onnwee/chatdeck/config"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/telemetry"
)

// Deps are the collaborators the HTTP layer serves from. DB is optional.
type Deps struct {
	App    *app.App
	Hub    *events.Hub
	DB     *sql.DB
	Config *config.Config
}

// route protection levels
const (
	open = iota
	operator
	operatorLimited
	limited
)

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	authCfg := newAuthConfig(cfg)
	limiter := newIPRateLimiter(ctx, newRateLimiterConfig(cfg))
	corsCfg := newCORSConfig(cfg)

	h := NewHandlers(deps)
	mux := http.NewServeMux()

	handle := func(pattern string, level int, fn http.HandlerFunc) {
		var next http.Handler = fn
		switch level {
		case operator:
			next = adminAuth(next, authCfg)
		case operatorLimited:
			next = adminAuth(rateLimitMiddleware(next, limiter), authCfg)
		case limited:
			next = rateLimitMiddleware(next, limiter)
		}
		mux.Handle(pattern, next)
	}

	mux.Handle("GET /metrics", promhttp.Handler())

	// Health and readiness
	handle("GET /healthz", open, h.HandleHealthz)
	handle("GET /readyz", open, h.HandleReadyz)

	// Status, config and the live stream
	handle("GET /status", open, h.HandleStatus)
	handle("GET /config", open, h.HandleConfig)
	handle("GET /events", open, h.HandleEvents)

	// Chat
	handle("POST /chat/connect", operator, h.HandleChatConnect)
	handle("POST /chat/disconnect", operator, h.HandleChatDisconnect)
	handle("GET /chat/state", open, h.HandleChatState)
	handle("GET /chat/log", open, h.HandleChatLog)
	handle("DELETE /chat/log", operator, h.HandleChatLogClear)
	handle("POST /chat/messages", operator, h.HandleChatMessage)

	// Playlist
	handle("GET /playlist", open, h.HandlePlaylist)
	handle("POST /playlist/items", operatorLimited, h.HandlePlaylistAdd)
	handle("DELETE /playlist/items/{index}", operator, h.HandlePlaylistRemove)
	handle("POST /playlist/move", operator, h.HandlePlaylistMove)
	handle("POST /playlist/next", operator, h.HandlePlaylistNext)
	handle("POST /playlist/previous", operator, h.HandlePlaylistPrevious)
	handle("POST /playlist/play/{index}", operator, h.HandlePlaylistPlayAt)
	handle("POST /playlist/pause", operator, h.HandlePlaylistPause)
	handle("POST /playlist/resume", operator, h.HandlePlaylistResume)
	handle("POST /playlist/clear", operator, h.HandlePlaylistClear)
	handle("PUT /playlist/autoplay", operator, h.HandlePlaylistAutoplay)

	// Commands and media
	handle("GET /commands/config", open, h.HandleCommandConfig)
	handle("PUT /commands/config", operator, h.HandleCommandConfigUpdate)
	handle("GET /media/resolve", limited, h.HandleMediaResolve)

	// AI helper
	handle("GET /ai/status", open, h.HandleAIStatus)
	handle("POST /ai/configure", operator, h.HandleAIConfigure)
	handle("PUT /ai/audience", operator, h.HandleAIAudience)
	handle("POST /ai/analyze", operatorLimited, h.HandleAIAnalyze)
	handle("POST /ai/scripts", operatorLimited, h.HandleAIScripts)

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
