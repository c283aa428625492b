// Package telemetry provides distributed tracing setup using OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Resource attribute keys specific to chatdeck.
const (
	AttrPlatform    = attribute.Key("chatdeck.platform")
	AttrEnvironment = attribute.Key("deployment.environment")
)

const exporterTimeout = 5 * time.Second

var tracingEnabled atomic.Bool

// TracingConfig selects the OTLP collector and describes this process.
// Tracing stays off while Endpoint is empty.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	// SampleRatio in (0,1) samples that share of new traces; anything else
	// samples all of them. Child spans follow their parent.
	SampleRatio float64
	Platform    string
	Environment string
}

// InitTracing installs the global tracer provider and returns its shutdown.
func InitTracing(cfg TracingConfig) (func(), error) {
	if cfg.Endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	tracingEnabled.Store(true)
	slog.Info("tracing initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("endpoint", cfg.Endpoint),
		slog.String("platform", cfg.Platform),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), exporterTimeout)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
		tracingEnabled.Store(false)
	}, nil
}

func newResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Platform != "" {
		attrs = append(attrs, AttrPlatform.String(cfg.Platform))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, AttrEnvironment.String(cfg.Environment))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func newSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// IsTracingEnabled reports whether an exporter is installed.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartSpan starts a span on the named tracer, tagging it with the request's
// correlation id when there is one.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String("http.method", method)
}

func HTTPRouteAttr(route string) attribute.KeyValue {
	return attribute.String("http.route", route)
}

func HTTPURLAttr(url string) attribute.KeyValue {
	return attribute.String("http.url", url)
}

// SetSpanHTTPStatus records the response status code on span.
func SetSpanHTTPStatus(span trace.Span, code int) {
	span.SetAttributes(attribute.Int("http.status_code", code))
}

// ErrorStatus returns the span status pair for a failed operation.
func ErrorStatus(msg string) (codes.Code, string) {
	return codes.Error, msg
}
