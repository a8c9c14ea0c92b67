package query

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

func newMockHandle(t *testing.T, d dialect.Dialect) (*connector.Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	h := connector.NewHandle(db, &jdbc.Descriptor{
		ConnectionType: d,
		Host:           "db.internal",
		Port:           d.Profile().DefaultPort,
		Database:       "sales",
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = h.Close() })
	return h, mock
}

func newTestEngine(t *testing.T) (*Engine, *memory.CheckedAllocator) {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	return NewEngine(config.Default(), WithLogger(zaptest.NewLogger(t)), WithAllocator(mem)), mem
}

func idRows(mock sqlmock.Sqlmock, n int) *sqlmock.Rows {
	rows := mock.NewRowsWithColumnDefinition(mock.NewColumn("id").OfType("INT8", int64(0)).Nullable(false))
	for i := 1; i <= n; i++ {
		rows.AddRow(int64(i))
	}
	return rows
}

func TestReadBatches_BatchCount(t *testing.T) {
	tests := []struct {
		rows, batch int
		want        []int64
	}{
		{rows: 7, batch: 3, want: []int64{3, 3, 1}},
		{rows: 6, batch: 3, want: []int64{3, 3}},
		{rows: 2, batch: 5, want: []int64{2}},
		{rows: 1, batch: 1, want: []int64{1}},
		{rows: 0, batch: 4, want: nil},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			engine, mem := newTestEngine(t)
			defer mem.AssertSize(t, 0)
			h, mock := newMockHandle(t, dialect.PostgreSQL)
			mock.ExpectQuery("SELECT id FROM public.events").WillReturnRows(idRows(mock, tt.rows))

			it, err := engine.ReadBatches(context.Background(), h, &Spec{
				Table: "events", Schema: "public", Columns: []string{"id"}, BatchSize: tt.batch,
			})
			require.NoError(t, err)

			var sizes []int64
			var ids []int64
			for it.Next() {
				rec := it.Batch()
				sizes = append(sizes, rec.NumRows())
				col := rec.Column(0).(*array.Int64)
				ids = append(ids, col.Int64Values()...)
			}
			require.NoError(t, it.Err())
			require.NoError(t, it.Close())
			assert.False(t, it.Next(), "not restartable")

			assert.Equal(t, tt.want, sizes)
			assert.Len(t, sizes, (tt.rows+tt.batch-1)/tt.batch)
			require.Len(t, ids, tt.rows)
			for i, id := range ids {
				assert.Equal(t, int64(i+1), id, "order preserved")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReadTable_Batched(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.MySQL)
	mock.ExpectQuery("SELECT id FROM events WHERE id > 0").WillReturnRows(idRows(mock, 10))

	table, err := engine.ReadTable(context.Background(), h, &Spec{
		Table: "events", Columns: []string{"id"}, Filter: "id > 0", BatchSize: 4,
	})
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(10), table.NumRows())
	assert.Len(t, table.Records(), 3)
	v, err := table.Value(9, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	arrowTable := table.ArrowTable()
	defer arrowTable.Release()
	assert.Equal(t, int64(10), arrowTable.NumRows())
}

func TestReadTable_MidStreamFailureReleasesBatches(t *testing.T) {
	engine, mem := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT * FROM public.events").
		WillReturnRows(idRows(mock, 9).RowError(5, errors.New("server closed the connection unexpectedly")))

	table, err := engine.ReadTable(context.Background(), h, &Spec{Table: "events", Schema: "public", BatchSize: 2})
	assert.Nil(t, table)
	require.Error(t, err)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
	assert.Contains(t, err.Error(), "server closed the connection")
	mem.AssertSize(t, 0)
	assert.Zero(t, h.Stats().InUse, "connection released")
}

func TestReadBatches_EarlyClose(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT * FROM events").WillReturnRows(idRows(mock, 100))

	it, err := engine.ReadBatches(context.Background(), h, &Spec{Table: "events", BatchSize: 10})
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, 1, it.Batches())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Nil(t, it.Batch())
	assert.Zero(t, h.Stats().InUse)
}

func TestReadBatches_DefaultBatchSize(t *testing.T) {
	cfg := config.Default()
	cfg.Performance.BatchSize = 4
	engine := NewEngine(cfg, WithLogger(zaptest.NewLogger(t)))
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT * FROM events").WillReturnRows(idRows(mock, 9))

	it, err := engine.ReadBatches(context.Background(), h, &Spec{Table: "events"})
	require.NoError(t, err)
	defer it.Close()
	for it.Next() {
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 3, it.Batches())
}

func TestReadBatches_QueryRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(errors.New(`relation "missing" does not exist`))

	it, err := engine.ReadBatches(context.Background(), h, &Spec{Table: "missing", BatchSize: 5})
	assert.Nil(t, it)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
	assert.Zero(t, h.Stats().InUse)
}

func TestReadTable_TypeConversion(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.PostgreSQL)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT4", int64(0)).Nullable(false),
		mock.NewColumn("amount").OfType("NUMERIC", "").WithPrecisionAndScale(10, 2).Nullable(true),
		mock.NewColumn("active").OfType("BOOL", false).Nullable(true),
		mock.NewColumn("created_at").OfType("TIMESTAMPTZ", time.Time{}).Nullable(true),
		mock.NewColumn("name").OfType("TEXT", "").Nullable(true),
		mock.NewColumn("payload").OfType("BYTEA", []byte(nil)).Nullable(true),
	).
		AddRow(int64(1), "12.50", true, ts, "alpha", []byte{0x01, 0x02}).
		AddRow(int64(2), nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT * FROM public.orders LIMIT 2").WillReturnRows(rows)

	table, err := engine.ReadTable(context.Background(), h, &Spec{Table: "orders", Schema: "public", Limit: 2})
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, []string{"id", "amount", "active", "created_at", "name", "payload"}, table.ColumnNames())
	assert.Equal(t, 6, table.NumCols())
	assert.Equal(t, int64(2), table.NumRows())

	want := []interface{}{int64(1), 12.5, true, ts.UTC(), "alpha", []byte{0x01, 0x02}}
	for col, expected := range want {
		got, err := table.Value(0, col)
		require.NoError(t, err)
		if want, ok := expected.(time.Time); ok {
			assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
		} else {
			assert.Equal(t, expected, got, "column %d", col)
		}

		null, err := table.Value(1, col)
		require.NoError(t, err)
		if col == 0 {
			assert.Equal(t, int64(2), null)
		} else {
			assert.Nil(t, null, "SQL NULL becomes null in column %d", col)
		}
	}

	_, err = table.Value(2, 0)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation))
}

func TestReadTable_ConversionFailure(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.PostgreSQL)

	rows := mock.NewRowsWithColumnDefinition(mock.NewColumn("n").OfType("INT8", int64(0))).
		AddRow(int64(1)).
		AddRow("not a number")
	mock.ExpectQuery("SELECT n FROM t").WillReturnRows(rows)

	_, err := engine.ReadTable(context.Background(), h, &Spec{Table: "t", Columns: []string{"n"}})
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindData), "got %v", err)
}

func TestReadTable_InvalidSpec(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, _ := newMockHandle(t, dialect.PostgreSQL)

	for _, spec := range []*Spec{
		nil,
		{},
		{Table: "t", BatchSize: -1},
		{Table: "t", Limit: -5},
		{Table: "t", Columns: []string{"a", " "}},
	} {
		_, err := engine.ReadTable(context.Background(), h, spec)
		assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation), "spec %+v", spec)
	}
}

func TestExecute(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.SQLServer)

	mock.ExpectQuery("SELECT name, total FROM dbo.customers").
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).AddRow("acme", "10").AddRow("globex", nil))

	table, err := engine.Execute(context.Background(), h, "SELECT name, total FROM dbo.customers")
	require.NoError(t, err)
	defer table.Release()
	assert.Equal(t, int64(2), table.NumRows())
	v, err := table.Value(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "globex", v)
}

func TestExecute_Errors(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)

	mock.ExpectQuery("SELEC 1").WillReturnError(errors.New(`syntax error at or near "SELEC"`))
	_, err := engine.Execute(context.Background(), h, "SELEC 1")
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
	assert.Contains(t, err.Error(), `syntax error at or near "SELEC"`)

	mock.ExpectQuery("SELECT 1").WillReturnError(driver.ErrBadConn)
	_, err = engine.Execute(context.Background(), h, "SELECT 1")
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindConnectionFailure), "got %v", err)

	_, err = engine.Execute(context.Background(), h, "  ")
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation))
}

func TestExecute_EmptyResult(t *testing.T) {
	engine, mem := newTestEngine(t)
	defer mem.AssertSize(t, 0)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT id FROM t WHERE false").WillReturnRows(idRows(mock, 0))

	table, err := engine.Execute(context.Background(), h, "SELECT id FROM t WHERE false")
	require.NoError(t, err)
	defer table.Release()
	assert.Zero(t, table.NumRows())
	assert.Equal(t, []string{"id"}, table.ColumnNames())
	assert.Empty(t, table.Records())
}

func TestSample(t *testing.T) {
	tests := []struct {
		dialect dialect.Dialect
		limit   int
		sql     string
	}{
		{dialect.PostgreSQL, 0, "SELECT * FROM public.events LIMIT 10"},
		{dialect.PostgreSQL, 5000, "SELECT * FROM public.events LIMIT 1000"},
		{dialect.SQLServer, 25, "SELECT TOP (25) * FROM public.events"},
		{dialect.Oracle, 3, "SELECT * FROM public.events FETCH FIRST 3 ROWS ONLY"},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			engine, mem := newTestEngine(t)
			defer mem.AssertSize(t, 0)
			h, mock := newMockHandle(t, tt.dialect)
			mock.ExpectQuery(tt.sql).WillReturnRows(idRows(mock, 3))

			table, err := engine.Sample(context.Background(), h, "events", "public", tt.limit)
			require.NoError(t, err)
			defer table.Release()
			assert.Len(t, table.Records(), 1, "samples are single-batch")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	engine, _ := newTestEngine(t)
	h, _ := newMockHandle(t, dialect.PostgreSQL)
	_, err := engine.Sample(context.Background(), h, "events", "", -1)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation))
}

func TestReadTable_ClosedHandle(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectClose()
	require.NoError(t, h.Close())

	_, err := engine.ReadTable(context.Background(), h, &Spec{Table: "t"})
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindConnectionFailure))
}
