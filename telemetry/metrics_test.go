package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	if ChatFrames == nil || ChatEvents == nil || ChatConnects == nil || Commands == nil {
		t.Fatal("counter vectors not initialized")
	}
	if CompletionDuration == nil {
		t.Error("CompletionDuration histogram not initialized")
	}
	if ChatConnectedGauge == nil || PlaylistLength == nil {
		t.Error("gauges not initialized")
	}
	// second call must not re-register and panic
	Init()
}

func TestCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(ChatFrames.WithLabelValues("chat"))
	CountFrame("chat")
	CountFrame("chat")
	if got := testutil.ToFloat64(ChatFrames.WithLabelValues("chat")) - before; got != 2 {
		t.Errorf("chat frames delta = %v, want 2", got)
	}

	before = testutil.ToFloat64(Commands.WithLabelValues("skip"))
	CountCommand("skip")
	if got := testutil.ToFloat64(Commands.WithLabelValues("skip")) - before; got != 1 {
		t.Errorf("skip commands delta = %v, want 1", got)
	}

	before = testutil.ToFloat64(ChatHeartbeats)
	CountHeartbeat()
	if got := testutil.ToFloat64(ChatHeartbeats) - before; got != 1 {
		t.Errorf("heartbeats delta = %v, want 1", got)
	}

	// should not panic
	CountEvent("chat")
	CountConnect("ok")
	CountDeduplicated()
	CountCompletion("claude", "ok")
	CountSinkDrop()
}

func TestGauges(t *testing.T) {
	Init()

	SetConnected(true)
	if v := testutil.ToFloat64(ChatConnectedGauge); v != 1 {
		t.Errorf("connected gauge = %v, want 1", v)
	}
	SetConnected(false)
	if v := testutil.ToFloat64(ChatConnectedGauge); v != 0 {
		t.Errorf("connected gauge = %v, want 0", v)
	}
	SetPlaylistLength(7)
	if v := testutil.ToFloat64(PlaylistLength); v != 7 {
		t.Errorf("playlist gauge = %v, want 7", v)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("empty context has a correlation id")
	}
	ctx = WithCorrelation(ctx, "abc")
	if GetCorrelation(ctx) != "abc" {
		t.Fatalf("GetCorrelation = %q", GetCorrelation(ctx))
	}
	if LoggerWithCorr(ctx) == nil {
		t.Fatal("nil logger")
	}
}
