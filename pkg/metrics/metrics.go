// Package metrics provides Prometheus collectors for gluejdbc: catalog
// lookups, connection attempts, statements and rows read.
//
// Collectors live on a dedicated Registry rather than the process default so
// that embedding applications decide whether to expose them.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	rec, err := resolver.Fetch(ctx, name)
//	metrics.CatalogRequests.WithLabelValues("get_connection", metrics.Outcome(err)).Inc()
//	metrics.CatalogLatency.WithLabelValues("get_connection").Observe(timer.Seconds())
//
//	// dump everything in text exposition format
//	metrics.WriteText(os.Stderr)
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Registry holds every gluejdbc collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CatalogRequests counts Glue calls.
	// Labels: operation (get_connection/get_connections), outcome (ok or error kind)
	CatalogRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_catalog_requests_total",
			Help: "Total number of catalog requests",
		},
		[]string{"operation", "outcome"},
	)

	// CatalogLatency tracks Glue call latency in seconds.
	CatalogLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gluejdbc_catalog_latency_seconds",
			Help:    "Catalog request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		},
		[]string{"operation"},
	)

	// ConnectionsOpened counts connection attempts.
	// Labels: dialect, outcome
	ConnectionsOpened = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_connections_opened_total",
			Help: "Total number of connection attempts",
		},
		[]string{"dialect", "outcome"},
	)

	// ActiveHandles tracks open handles per dialect.
	ActiveHandles = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gluejdbc_active_handles",
			Help: "Number of open connection handles",
		},
		[]string{"dialect"},
	)

	// QueryDuration tracks statement latency in seconds.
	// Labels: dialect, operation (execute/read_table/describe/stats/...)
	QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gluejdbc_query_duration_seconds",
			Help: "Statement latency in seconds",
			Buckets: []float64{
				0.001, // 1ms - metadata on a warm pool
				0.01,
				0.1,
				1,
				10,
				60, // full table scans
				600,
			},
		},
		[]string{"dialect", "operation"},
	)

	// QueryErrors counts failed statements.
	QueryErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_query_errors_total",
			Help: "Total number of failed statements",
		},
		[]string{"dialect", "operation"},
	)

	// RowsRead counts rows converted into Arrow records.
	RowsRead = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_rows_read_total",
			Help: "Total number of rows read",
		},
		[]string{"dialect"},
	)

	// BatchesRead counts Arrow records produced by batched reads.
	BatchesRead = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_batches_read_total",
			Help: "Total number of batches read",
		},
		[]string{"dialect"},
	)

	// ThrottleRetries counts caller-side retries after catalog throttling.
	ThrottleRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gluejdbc_throttle_retries_total",
			Help: "Total number of retries after catalog throttling",
		},
		[]string{"operation"},
	)
)

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := jdbcerrors.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// Timer measures an operation from creation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Seconds returns Elapsed in seconds, the unit of every histogram here.
func (t *Timer) Seconds() float64 {
	return t.Elapsed().Seconds()
}

// WriteText gathers the registry and writes it in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindData, "failed to gather metrics")
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return jdbcerrors.Wrap(err, jdbcerrors.KindData, "failed to encode metrics")
		}
	}
	return nil
}
