package query

import (
	"context"
	"database/sql"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
)

// BatchIterator streams a table read as Arrow records.
//
// It holds one pinned connection and one open result set until it is
// exhausted, fails or is closed. Each Next reads at most one batch of rows;
// nothing is read ahead. Iteration is not restartable.
//
//	it, err := engine.ReadBatches(ctx, h, spec)
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for it.Next() {
//		process(it.Batch())
//	}
//	return it.Err()
type BatchIterator struct {
	handle    *connector.Handle
	conn      *sql.Conn
	rows      *sql.Rows
	cancel    context.CancelFunc
	builder   *recordBuilder
	schema    *arrow.Schema
	batchSize int
	logger    *zap.Logger

	current arrow.Record
	err     error
	done    bool
	closed  bool
	batches int
	total   int64
	finish  func(error)
}

// ReadBatches starts a batched read. A spec without BatchSize uses the
// engine's configured batch size.
func (e *Engine) ReadBatches(ctx context.Context, h *connector.Handle, spec *Spec) (*BatchIterator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	batchSize := spec.BatchSize
	if batchSize == 0 {
		batchSize = e.batchSize
	}

	ctx, done := e.instrument(ctx, h, "read_batches")
	st, err := selectStatement(h.Dialect(), spec)
	if err != nil {
		done(err)
		return nil, err
	}

	log := e.log(ctx, h).With(zap.String("table", spec.QualifiedName()), zap.Int("batch_size", batchSize))
	log.Debug("starting batched read", zap.String("sql", st.sql))

	conn, err := h.Acquire(ctx)
	if err != nil {
		done(err)
		return nil, err
	}

	opCtx, cancel := h.Context(ctx)
	rows, err := conn.QueryContext(opCtx, st.sql, st.args...)
	if err != nil {
		cancel()
		_ = conn.Close()
		err = h.Classify(err, "query failed")
		done(err)
		return nil, err
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		cancel()
		_ = conn.Close()
		err = h.Classify(err, "failed to read result columns")
		done(err)
		return nil, err
	}
	schema := schemaFor(columnInfos(types))

	return &BatchIterator{
		handle:    h,
		conn:      conn,
		rows:      rows,
		cancel:    cancel,
		builder:   newRecordBuilder(e.mem, schema),
		schema:    schema,
		batchSize: batchSize,
		logger:    log,
		finish:    done,
	}, nil
}

// Schema returns the schema every batch shares.
func (it *BatchIterator) Schema() *arrow.Schema {
	return it.schema
}

// Next reads the next batch. It returns false when the result set is
// exhausted or reading failed; check Err.
func (it *BatchIterator) Next() bool {
	if it.current != nil {
		it.current.Release()
		it.current = nil
	}
	if it.done || it.closed {
		return false
	}

	n := 0
	for n < it.batchSize && it.rows.Next() {
		if err := it.builder.scan(it.rows); err != nil {
			it.fail(it.handle.Classify(err, "failed to read row"))
			return false
		}
		n++
	}
	if n < it.batchSize {
		if err := it.rows.Err(); err != nil {
			it.fail(it.handle.Classify(err, "failed while reading rows"))
			return false
		}
	}
	if n == 0 {
		it.stop(nil)
		return false
	}

	it.current = it.builder.newRecord()
	it.batches++
	it.total += int64(n)
	d := it.handle.Dialect().String()
	metrics.BatchesRead.WithLabelValues(d).Inc()
	metrics.RowsRead.WithLabelValues(d).Add(float64(n))
	return true
}

// Batch returns the current record. It is valid until the next call to Next
// or Close; Retain it to keep it longer.
func (it *BatchIterator) Batch() arrow.Record {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *BatchIterator) Err() error {
	return it.err
}

// Batches returns the number of batches produced so far.
func (it *BatchIterator) Batches() int {
	return it.batches
}

// Close releases the connection and the current batch. It is safe to call
// more than once.
func (it *BatchIterator) Close() error {
	if it.current != nil {
		it.current.Release()
		it.current = nil
	}
	it.stop(nil)
	return nil
}

// fail records err and releases resources; a partial batch is dropped with
// the builder.
func (it *BatchIterator) fail(err error) {
	it.err = err
	it.stop(err)
}

func (it *BatchIterator) stop(err error) {
	if it.closed {
		return
	}
	it.closed = true
	it.done = true

	_ = it.rows.Close()
	it.cancel()
	_ = it.conn.Close()
	it.builder.release()

	if err != nil {
		it.logger.Warn("batched read failed", zap.Error(err), zap.Int("batches", it.batches))
	} else {
		it.logger.Debug("batched read finished", zap.Int("batches", it.batches), zap.Int64("rows", it.total))
	}
	it.finish(err)
}
