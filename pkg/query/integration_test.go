//go:build integration

package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/query"
	"github.com/ajitpratap0/gluejdbc/pkg/testutil"
)

const seedSQL = `
CREATE SCHEMA sales;
CREATE TABLE sales.orders (
	id         BIGINT PRIMARY KEY,
	customer   TEXT NOT NULL,
	total      NUMERIC(10,2),
	paid       BOOLEAN,
	created_at TIMESTAMPTZ
);
INSERT INTO sales.orders
SELECT g, 'customer-' || g, g * 1.25, g % 2 = 0, TIMESTAMPTZ '2024-01-01 00:00:00+00' + g * INTERVAL '1 hour'
FROM generate_series(1, 2500) AS g;
CREATE VIEW sales.paid_orders AS SELECT * FROM sales.orders WHERE paid;
`

func startPostgres(t *testing.T) *connector.Handle {
	t.Helper()
	testutil.IntegrationTest(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warehouse"),
		postgres.WithUsername("reader"),
		postgres.WithPassword("s3cret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	desc, err := jdbc.Parse(fmt.Sprintf("jdbc:postgresql://%s:%d/warehouse?user=reader&password=s3cret&sslmode=disable",
		host, port.Int()))
	require.NoError(t, err)

	factory := connector.NewFactory(config.Default(), connector.WithLogger(zaptest.NewLogger(t)))
	h, err := factory.ConnectDescriptor(ctx, desc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	_, err = h.DB().ExecContext(ctx, seedSQL)
	require.NoError(t, err, "failed to seed")
	return h
}

func TestPostgres_EndToEnd(t *testing.T) {
	h := startPostgres(t)
	ctx := context.Background()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	engine := query.NewEngine(config.Default(), query.WithLogger(zaptest.NewLogger(t)), query.WithAllocator(mem))

	schemas, err := engine.ListSchemas(ctx, h, true)
	require.NoError(t, err)
	assert.Contains(t, schemas, "sales")
	assert.NotContains(t, schemas, "pg_catalog")

	tables, err := engine.ListTables(ctx, h, "sales", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "paid_orders"}, tables)

	desc, err := engine.DescribeTable(ctx, h, "orders", "sales")
	require.NoError(t, err)
	require.Len(t, desc.Columns, 5)
	assert.False(t, desc.Columns[0].Nullable)

	stats, err := engine.TableStats(ctx, h, "orders", "sales")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), stats.RowCount)
	assert.Greater(t, stats.Sizes["total_bytes"], int64(0))

	it, err := engine.ReadBatches(ctx, h, &query.Spec{
		Table: "orders", Schema: "sales", Columns: []string{"id", "total", "created_at"}, Filter: "id <= 2100", BatchSize: 1000,
	})
	require.NoError(t, err)
	var sizes []int64
	for it.Next() {
		sizes = append(sizes, it.Batch().NumRows())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []int64{1000, 1000, 100}, sizes)

	sample, err := engine.Sample(ctx, h, "orders", "sales", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sample.NumRows())
	total, err := sample.Value(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.25, total)
	sample.Release()

	_, err = engine.Execute(ctx, h, "SELECT * FROM sales.missing")
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
}
