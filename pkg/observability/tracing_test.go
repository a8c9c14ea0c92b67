package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { SetTracerProvider(nil) })
	return recorder
}

func TestStartSpan_Success(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "read_table")
	span.SetAttribute("table", "orders")
	span.SetAttribute("rows", int64(10))
	span.SetAttribute("dialect", dialect.PostgreSQL)
	span.End(nil)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "gluejdbc.read_table", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "orders", attrs["table"])
	assert.Equal(t, "10", attrs["rows"])
	assert.Equal(t, "postgresql", attrs["dialect"])
}

func TestStartSpan_Error(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "resolve")
	span.End(jdbcerrors.New(jdbcerrors.KindConnectionNotFound, "missing"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "error.kind" {
			found = true
			assert.Equal(t, "connection_not_found", kv.Value.AsString())
		}
	}
	assert.True(t, found)
}

func TestInitialize(t *testing.T) {
	shutdown, err := Initialize(TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	var buf bytes.Buffer
	shutdown, err = Initialize(TracingConfig{ServiceName: "gluejdbc-test", Enabled: true, Writer: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { SetTracerProvider(nil) })

	_, span := StartSpan(context.Background(), "connect")
	span.End(nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "gluejdbc.connect")
}
