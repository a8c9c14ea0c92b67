package metrics

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "throttling", Outcome(jdbcerrors.New(jdbcerrors.KindThrottling, "slow down")))
	assert.Equal(t, "error", Outcome(errors.New("plain")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RowsRead.WithLabelValues("test_dialect"))
	RowsRead.WithLabelValues("test_dialect").Add(42)
	assert.Equal(t, before+42, testutil.ToFloat64(RowsRead.WithLabelValues("test_dialect")))
}

func TestWriteText(t *testing.T) {
	CatalogRequests.WithLabelValues("get_connection", "ok").Inc()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf))
	assert.Contains(t, buf.String(), "gluejdbc_catalog_requests_total")
	assert.Contains(t, buf.String(), `operation="get_connection"`)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	assert.GreaterOrEqual(t, timer.Seconds(), 0.0)
}
