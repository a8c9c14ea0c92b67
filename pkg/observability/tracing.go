// Package observability provides OpenTelemetry tracing for gluejdbc.
//
// Until Initialize is called with tracing enabled every span is a no-op, so
// library users pay nothing unless they opt in.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

const instrumentationName = "github.com/ajitpratap0/gluejdbc"

var (
	mu       sync.RWMutex
	provider trace.TracerProvider
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	// SamplingRate in [0,1]; 0 means always sample when enabled
	SamplingRate float64
	// Writer receives exported spans; defaults to stderr
	Writer io.Writer
}

// Initialize sets up the tracer provider and returns its shutdown function.
// With tracing disabled it installs nothing and the shutdown is a no-op.
func Initialize(cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to create trace resource")
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to create stdout exporter")
	}

	var sampler sdktrace.Sampler
	if cfg.SamplingRate <= 0 || cfg.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)
	SetTracerProvider(tp)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// SetTracerProvider replaces the provider spans are started from.
func SetTracerProvider(tp trace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	provider = tp
}

// Tracer returns the gluejdbc tracer.
func Tracer() trace.Tracer {
	mu.RLock()
	tp := provider
	mu.RUnlock()
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Span wraps an OpenTelemetry span, batching attributes until End.
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// StartSpan starts a span named "gluejdbc.<operation>".
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, "gluejdbc."+operation)
	return ctx, &Span{span: span}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case fmt.Stringer:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// End records err, if any, and ends the span.
func (s *Span) End(err error) {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		if kind := jdbcerrors.KindOf(err); kind != "" {
			s.span.SetAttributes(attribute.String("error.kind", string(kind)))
		}
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	s.span.End()
}
