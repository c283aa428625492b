package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "chatdeck-test", ServiceVersion: "0.0.0"})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should stay disabled without an endpoint")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "op", HTTPMethodAttr("GET"), HTTPRouteAttr("/x"), HTTPURLAttr("/x?y=1"))
	defer span.End()
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanHTTPStatus(span, 404)
	SetSpanSuccess(span)

	code, msg := ErrorStatus("HTTP 500")
	if code != codes.Error || msg != "HTTP 500" {
		t.Errorf("ErrorStatus = (%v, %q)", code, msg)
	}
}

func TestTracingResource(t *testing.T) {
	res, err := newResource(context.Background(), TracingConfig{
		ServiceName:    "chatdeck",
		ServiceVersion: "1.2.3",
		Platform:       "chzzk",
		Environment:    "production",
	})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":    "chatdeck",
		"service.version": "1.2.3",
		AttrPlatform:      "chzzk",
		AttrEnvironment:   "production",
	}
	set := res.Set()
	for k, v := range want {
		got, ok := set.Value(k)
		if !ok || got.AsString() != v {
			t.Errorf("%s = %q (present %v), want %q", k, got.AsString(), ok, v)
		}
	}

	res, err = newResource(context.Background(), TracingConfig{ServiceName: "chatdeck"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Set().Value(AttrPlatform); ok {
		t.Error("empty platform should be omitted")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := newSampler(tt.ratio).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.want) {
			t.Errorf("newSampler(%v) = %s, want root %s", tt.ratio, desc, tt.want)
		}
	}
}
