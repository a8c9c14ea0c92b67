// Package query runs reads against a connector.Handle and returns Arrow
// tables.
//
// Table reads synthesize a SELECT from a Spec: the projection defaults to *,
// the filter is appended verbatim as WHERE <filter>, and the row cap uses the
// dialect's syntax (LIMIT n, TOP (n) or FETCH FIRST n ROWS ONLY). With a batch
// size the rows are streamed from one pinned connection and cut into Arrow
// records of at most that many rows.
package query

import (
	"context"
	"database/sql"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/logger"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
	"github.com/ajitpratap0/gluejdbc/pkg/observability"
)

const (
	// DefaultBatchSize is used when neither the spec nor the config sets one
	DefaultBatchSize = 10000
	// DefaultSampleSize is used when a sample size is not given
	DefaultSampleSize = 10
	// MaxSampleSize caps samples
	MaxSampleSize = 1000
)

// Engine executes reads. It holds no per-handle state and is safe for
// concurrent use.
type Engine struct {
	batchSize  int
	sampleSize int
	mem        memory.Allocator
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithAllocator sets the Arrow allocator. Tests use memory.NewCheckedAllocator
// to catch leaks.
func WithAllocator(mem memory.Allocator) Option {
	return func(e *Engine) {
		e.mem = mem
	}
}

// NewEngine creates an engine from the performance section of cfg. A nil cfg
// uses config.Default().
func NewEngine(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		batchSize:  cfg.Performance.BatchSize,
		sampleSize: cfg.Performance.SampleSize,
		mem:        memory.NewGoAllocator(),
		logger:     logger.Named("query"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.sampleSize <= 0 {
		e.sampleSize = DefaultSampleSize
	}
	return e
}

// instrument starts a span and timer for one operation; the returned func
// records the outcome.
func (e *Engine) instrument(ctx context.Context, h *connector.Handle, op string) (context.Context, func(error)) {
	d := h.Dialect().String()
	ctx = logger.ContextWithOperation(ctx, op)
	ctx, span := observability.StartSpan(ctx, "query."+op)
	span.SetAttribute("dialect", d)
	span.SetAttribute("database", h.Database())
	timer := metrics.NewTimer()

	return ctx, func(err error) {
		metrics.QueryDuration.WithLabelValues(d, op).Observe(timer.Seconds())
		if err != nil {
			metrics.QueryErrors.WithLabelValues(d, op).Inc()
		}
		span.End(err)
	}
}

func (e *Engine) log(ctx context.Context, h *connector.Handle) *zap.Logger {
	l := logger.FromContext(ctx, e.logger)
	if name := h.Name(); name != "" {
		l = l.With(zap.String("connection", name))
	}
	return l
}

// Execute runs an arbitrary statement and returns its result set as one
// record. A statement that returns no rows yields an empty table.
func (e *Engine) Execute(ctx context.Context, h *connector.Handle, query string) (t *Table, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "query is required")
	}
	ctx, done := e.instrument(ctx, h, "execute")
	defer func() { done(err) }()

	e.log(ctx, h).Debug("executing query", zap.String("sql", query))
	return e.readAll(ctx, h, statement{sql: query})
}

// ReadTable reads a table described by spec. With BatchSize set it drains
// ReadBatches and concatenates the batches; otherwise it reads in one pass.
func (e *Engine) ReadTable(ctx context.Context, h *connector.Handle, spec *Spec) (t *Table, err error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.BatchSize > 0 {
		return e.readBatched(ctx, h, spec)
	}

	ctx, done := e.instrument(ctx, h, "read_table")
	defer func() { done(err) }()

	st, err := selectStatement(h.Dialect(), spec)
	if err != nil {
		return nil, err
	}
	e.log(ctx, h).Debug("reading table",
		zap.String("table", spec.QualifiedName()),
		zap.String("sql", st.sql))
	return e.readAll(ctx, h, st)
}

func (e *Engine) readBatched(ctx context.Context, h *connector.Handle, spec *Spec) (*Table, error) {
	it, err := e.ReadBatches(ctx, h, spec)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var records []arrow.Record
	for it.Next() {
		rec := it.Batch()
		rec.Retain()
		records = append(records, rec)
	}
	if err := it.Err(); err != nil {
		for _, rec := range records {
			rec.Release()
		}
		return nil, err
	}
	return NewTable(it.Schema(), records), nil
}

// Sample reads at most limit rows of a table in a single batch. A limit of 0
// uses the configured sample size; larger limits are capped at MaxSampleSize.
func (e *Engine) Sample(ctx context.Context, h *connector.Handle, table, schema string, limit int) (*Table, error) {
	if limit < 0 {
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "sample limit cannot be negative").
			WithDetail("limit", limit)
	}
	if limit == 0 {
		limit = e.sampleSize
	}
	if limit > MaxSampleSize {
		limit = MaxSampleSize
	}
	return e.ReadTable(ctx, h, &Spec{Table: table, Schema: schema, Limit: limit})
}

// readAll runs st on its own connection and converts every row into a
// single record.
func (e *Engine) readAll(ctx context.Context, h *connector.Handle, st statement) (*Table, error) {
	var table *Table
	err := h.WithConn(ctx, func(conn *sql.Conn) error {
		opCtx, cancel := h.Context(ctx)
		defer cancel()

		rows, err := conn.QueryContext(opCtx, st.sql, st.args...)
		if err != nil {
			return h.Classify(err, "query failed")
		}
		defer rows.Close()

		table, err = e.collect(h, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (e *Engine) collect(h *connector.Handle, rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, h.Classify(err, "failed to read result columns")
	}
	schema := schemaFor(columnInfos(types))
	rb := newRecordBuilder(e.mem, schema)
	defer rb.release()

	for rows.Next() {
		if err := rb.scan(rows); err != nil {
			return nil, h.Classify(err, "failed to read row")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, h.Classify(err, "failed while reading rows")
	}

	rec := rb.newRecord()
	if rec.NumRows() == 0 {
		rec.Release()
		return NewTable(schema, nil), nil
	}
	metrics.RowsRead.WithLabelValues(h.Dialect().String()).Add(float64(rec.NumRows()))
	return NewTable(schema, []arrow.Record{rec}), nil
}

// queryStrings runs a single-column query and returns its non-null values.
func queryStrings(ctx context.Context, h *connector.Handle, conn *sql.Conn, st statement) ([]string, error) {
	opCtx, cancel := h.Context(ctx)
	defer cancel()

	rows, err := conn.QueryContext(opCtx, st.sql, st.args...)
	if err != nil {
		return nil, h.Classify(err, "metadata query failed")
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, h.Classify(err, "failed to read metadata row")
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, h.Classify(err, "failed while reading metadata")
	}
	return out, nil
}

// resolveSchema returns schema, or the dialect's default schema, or the
// session's current schema.
func resolveSchema(ctx context.Context, h *connector.Handle, conn *sql.Conn, schema string) (string, error) {
	if schema != "" {
		return schema, nil
	}
	d := h.Dialect()
	if def := d.Profile().DefaultSchema; def != "" {
		return def, nil
	}
	st, ok := currentSchemaStatement(d)
	if !ok {
		return "", jdbcerrors.Newf(jdbcerrors.KindValidation, "schema is required for dialect %s", d)
	}
	values, err := queryStrings(ctx, h, conn, st)
	if err != nil {
		return "", err
	}
	if len(values) == 0 || values[0] == "" {
		return "", jdbcerrors.New(jdbcerrors.KindValidation, "no current schema; pass one explicitly").
			WithDetail("dialect", d.String())
	}
	return values[0], nil
}

// ListSchemas lists schema names. With excludeSystem the dialect's reserved
// schemas are filtered out.
func (e *Engine) ListSchemas(ctx context.Context, h *connector.Handle, excludeSystem bool) (names []string, err error) {
	ctx, done := e.instrument(ctx, h, "list_schemas")
	defer func() { done(err) }()

	st, err := schemasStatement(h.Dialect())
	if err != nil {
		return nil, err
	}

	err = h.WithConn(ctx, func(conn *sql.Conn) error {
		all, err := queryStrings(ctx, h, conn, st)
		if err != nil {
			return err
		}
		names = make([]string, 0, len(all))
		for _, name := range all {
			if excludeSystem && h.Dialect().IsSystemSchema(name) {
				continue
			}
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ListTables lists the tables of schema followed by its views, unless
// excludeViews is set. An empty schema uses the dialect default.
func (e *Engine) ListTables(ctx context.Context, h *connector.Handle, schema string, excludeViews bool) (names []string, err error) {
	ctx, done := e.instrument(ctx, h, "list_tables")
	defer func() { done(err) }()

	err = h.WithConn(ctx, func(conn *sql.Conn) error {
		resolved, err := resolveSchema(ctx, h, conn, schema)
		if err != nil {
			return err
		}

		st, err := relationsStatement(h.Dialect(), resolved, false)
		if err != nil {
			return err
		}
		names, err = queryStrings(ctx, h, conn, st)
		if err != nil || excludeViews {
			return err
		}

		st, err = relationsStatement(h.Dialect(), resolved, true)
		if err != nil {
			return err
		}
		views, err := queryStrings(ctx, h, conn, st)
		if err != nil {
			return err
		}
		names = append(names, views...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
