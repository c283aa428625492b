// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatFrames           *prometheus.CounterVec // by frame kind
	ChatEvents           *prometheus.CounterVec // by event type
	ChatConnects         *prometheus.CounterVec // by result
	ChatHeartbeats       prometheus.Counter
	Commands             *prometheus.CounterVec // by command kind
	CommandsDeduplicated prometheus.Counter
	CompletionRequests   *prometheus.CounterVec // by provider, result
	SinkDropped          prometheus.Counter

	// Histograms (seconds)
	CompletionDuration prometheus.Observer

	// Gauges
	ChatConnectedGauge prometheus.Gauge // 1=connected,0=not
	PlaylistLength     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatFrames = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatdeck_chat_frames_total", Help: "Inbound chat frames by decoded kind"}, []string{"kind"})
		ChatEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatdeck_chat_events_total", Help: "Chat events emitted by type"}, []string{"type"})
		ChatConnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatdeck_chat_connects_total", Help: "Chat connect attempts by result"}, []string{"result"})
		ChatHeartbeats = promauto.NewCounter(prometheus.CounterOpts{Name: "chatdeck_chat_heartbeats_total", Help: "Heartbeat frames written"})
		Commands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatdeck_commands_total", Help: "Chat commands executed by kind"}, []string{"command"})
		CommandsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{Name: "chatdeck_commands_deduplicated_total", Help: "Chat commands dropped by the dedup window"})
		CompletionRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatdeck_completion_requests_total", Help: "Text completion calls by provider and result"}, []string{"provider", "result"})
		SinkDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatdeck_sink_dropped_total", Help: "Events dropped because a subscriber was full"})
		CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatdeck_completion_duration_seconds", Help: "Text completion latency seconds including retries", Buckets: prometheus.DefBuckets})
		ChatConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatdeck_chat_connected", Help: "Chat session connected=1 disconnected=0"})
		PlaylistLength = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatdeck_playlist_length", Help: "Current number of queued playlist items"})
	})
}

// CountFrame records one inbound frame of the given kind.
func CountFrame(kind string) {
	if ChatFrames != nil {
		ChatFrames.WithLabelValues(kind).Inc()
	}
}

// CountEvent records one emitted chat event.
func CountEvent(typ string) {
	if ChatEvents != nil {
		ChatEvents.WithLabelValues(typ).Inc()
	}
}

// CountConnect records a connect attempt outcome ("ok" or an error class).
func CountConnect(result string) {
	if ChatConnects != nil {
		ChatConnects.WithLabelValues(result).Inc()
	}
}

// CountHeartbeat records one heartbeat written to the socket.
func CountHeartbeat() {
	if ChatHeartbeats != nil {
		ChatHeartbeats.Inc()
	}
}

// CountCommand records one executed chat command.
func CountCommand(kind string) {
	if Commands != nil {
		Commands.WithLabelValues(kind).Inc()
	}
}

// CountDeduplicated records a command suppressed as a duplicate.
func CountDeduplicated() {
	if CommandsDeduplicated != nil {
		CommandsDeduplicated.Inc()
	}
}

// CountCompletion records a completion outcome.
func CountCompletion(provider, result string) {
	if CompletionRequests != nil {
		CompletionRequests.WithLabelValues(provider, result).Inc()
	}
}

// CountSinkDrop records an event dropped for a slow subscriber.
func CountSinkDrop() {
	if SinkDropped != nil {
		SinkDropped.Inc()
	}
}

// SetConnected sets gauge to 1 if connected else 0.
func SetConnected(connected bool) {
	if ChatConnectedGauge != nil {
		if connected {
			ChatConnectedGauge.Set(1)
		} else {
			ChatConnectedGauge.Set(0)
		}
	}
}

// SetPlaylistLength records the current queue length.
func SetPlaylistLength(n int) {
	if PlaylistLength != nil {
		PlaylistLength.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
