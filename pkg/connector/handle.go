package connector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
)

// Handle is an open, pinged connection pool for one database.
//
// A Handle may be shared between goroutines; every operation acquires its own
// *sql.Conn. Close cancels in-flight operations, which then fail with
// KindConnectionFailure.
type Handle struct {
	db           *sql.DB
	desc         *jdbc.Descriptor // redacted
	name         string
	queryTimeout time.Duration
	logger       *zap.Logger

	lifetime context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	once     sync.Once
	release  func()
}

func newHandle(db *sql.DB, desc *jdbc.Descriptor, queryTimeout time.Duration, log *zap.Logger) *Handle {
	lifetime, cancel := context.WithCancel(context.Background())
	h := &Handle{
		db:           db,
		desc:         desc.Redacted(),
		name:         desc.ConnectionName,
		queryTimeout: queryTimeout,
		logger:       log,
		lifetime:     lifetime,
		cancel:       cancel,
	}
	metrics.ActiveHandles.WithLabelValues(desc.ConnectionType.String()).Inc()
	return h
}

// NewHandle wraps an already opened pool. The pool is not pinged.
func NewHandle(db *sql.DB, desc *jdbc.Descriptor, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	return newHandle(db, desc, 0, log)
}

// Dialect returns the database dialect.
func (h *Handle) Dialect() dialect.Dialect {
	return h.desc.ConnectionType
}

// Database returns the database the handle is connected to.
func (h *Handle) Database() string {
	return h.desc.Database
}

// Name returns the catalog connection name, if the handle came from one.
func (h *Handle) Name() string {
	return h.name
}

// Descriptor returns the connection descriptor with the password masked.
func (h *Handle) Descriptor() *jdbc.Descriptor {
	return h.desc.Clone()
}

// DB exposes the underlying pool.
func (h *Handle) DB() *sql.DB {
	return h.db
}

// Logger returns the handle's logger.
func (h *Handle) Logger() *zap.Logger {
	return h.logger
}

// Context derives an operation context from ctx that is cancelled when the
// handle closes and, if configured, when the query timeout elapses.
func (h *Handle) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if h.queryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(h.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// WithConn runs fn on a dedicated connection. The connection goes back to the
// pool on every exit path, panics included.
func (h *Handle) WithConn(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	conn, err := h.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil && !errors.Is(cerr, sql.ErrConnDone) {
			err = h.Classify(cerr, "failed to release connection")
		}
	}()
	return fn(conn)
}

// Acquire pins a connection. The caller must Close it.
func (h *Handle) Acquire(ctx context.Context) (*sql.Conn, error) {
	if h.closed.Load() {
		return nil, jdbcerrors.New(jdbcerrors.KindConnectionFailure, "handle is closed").
			WithDetail("database", h.desc.Database)
	}
	conn, err := h.db.Conn(ctx)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindConnectionFailure, "failed to acquire connection").
			WithDetail("database", h.desc.Database)
	}
	return conn, nil
}

// Ping checks the server is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	if h.closed.Load() {
		return jdbcerrors.New(jdbcerrors.KindConnectionFailure, "handle is closed")
	}
	if err := h.db.PingContext(ctx); err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConnectionFailure, "ping failed").
			WithDetail("host", h.desc.Host).
			WithDetail("database", h.desc.Database)
	}
	return nil
}

// Stats returns the pool statistics.
func (h *Handle) Stats() sql.DBStats {
	return h.db.Stats()
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Close cancels in-flight operations and closes the pool. It is idempotent.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		h.closed.Store(true)
		h.cancel()
		if cerr := h.db.Close(); cerr != nil {
			err = jdbcerrors.Wrap(cerr, jdbcerrors.KindConnectionFailure, "failed to close connection pool")
		}
		if h.release != nil {
			h.release()
		}
		metrics.ActiveHandles.WithLabelValues(h.desc.ConnectionType.String()).Dec()
		h.logger.Debug("connection closed", zap.String("database", h.desc.Database))
	})
	return err
}

// Classify wraps an error from a statement on this handle. Failures caused by
// a closed handle or a dead connection are KindConnectionFailure; everything
// else is KindQueryExecution with the driver message preserved.
func (h *Handle) Classify(err error, message string) *jdbcerrors.Error {
	if err == nil {
		return nil
	}
	var jerr *jdbcerrors.Error
	if errors.As(err, &jerr) {
		return jdbcerrors.Wrap(err, jerr.Kind, message)
	}
	if h.closed.Load() || isConnectionError(err) {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConnectionFailure, message).
			WithDetail("database", h.desc.Database)
	}
	return jdbcerrors.Wrap(err, jdbcerrors.KindQueryExecution, message).
		WithDetail("dialect", h.desc.ConnectionType.String())
}

func isConnectionError(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	// database/sql has no sentinel for a closed pool
	return strings.Contains(err.Error(), "sql: database is closed")
}
