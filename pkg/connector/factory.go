package connector

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/logger"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
	"github.com/ajitpratap0/gluejdbc/pkg/observability"
)

// OpenFunc opens a database/sql pool. sql.Open is the default.
type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

// Factory opens handles from connectivity URLs.
type Factory struct {
	pool     config.PoolConfig
	timeouts config.TimeoutConfig
	open     OpenFunc
	logger   *zap.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the factory's logger. Handles inherit it.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithOpener replaces sql.Open.
func WithOpener(open OpenFunc) FactoryOption {
	return func(f *Factory) {
		f.open = open
	}
}

// NewFactory creates a factory using the pool and timeout sections of cfg.
// A nil cfg uses config.Default().
func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	if cfg == nil {
		cfg = config.Default()
	}
	f := &Factory{
		pool:     cfg.Pool,
		timeouts: cfg.Timeouts,
		open:     sql.Open,
		logger:   logger.Named("connector"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect decodes a connectivity URL, opens a pool for its driver and pings
// it once. Failures are KindConnectionFailure and are not retried.
func (f *Factory) Connect(ctx context.Context, connURL string) (*Handle, error) {
	desc, err := jdbc.Decode(connURL)
	if err != nil {
		return nil, err
	}
	return f.dial(ctx, desc)
}

// ConnectDescriptor builds the connectivity URL for desc and connects to it.
func (f *Factory) ConnectDescriptor(ctx context.Context, desc *jdbc.Descriptor) (*Handle, error) {
	connURL, err := jdbc.Build(desc)
	if err != nil {
		return nil, err
	}
	h, err := f.Connect(ctx, connURL)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindOf(err), "connect").
			WithDetail("connection", desc.ConnectionName)
	}
	h.name = desc.ConnectionName
	return h, nil
}

func (f *Factory) dial(ctx context.Context, desc *jdbc.Descriptor) (h *Handle, err error) {
	ctx, span := observability.StartSpan(ctx, "connect")
	span.SetAttribute("dialect", desc.ConnectionType)
	span.SetAttribute("host", desc.Host)
	span.SetAttribute("database", desc.Database)
	defer func() {
		metrics.ConnectionsOpened.WithLabelValues(desc.ConnectionType.String(), metrics.Outcome(err)).Inc()
		span.End(err)
	}()

	dsn, err := buildDSN(desc)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, f.logger).With(zap.Object("descriptor", desc))
	if len(dsn.ignored) > 0 {
		log.Debug("ignoring JDBC-only properties", zap.Strings("properties", dsn.ignored))
	}

	db, err := f.open(dsn.driver, dsn.dsn)
	if err != nil {
		dsn.releaseDSN()
		return nil, connectionFailure(err, "failed to open connection pool", desc)
	}

	// Pool settings are passed through as configured
	db.SetMaxOpenConns(f.pool.MaxOpenConns)
	db.SetMaxIdleConns(f.pool.MaxIdleConns)
	db.SetConnMaxLifetime(f.pool.ConnMaxLifetime)

	pingCtx := ctx
	if f.timeouts.Connection > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, f.timeouts.Connection)
		defer cancel()
	}
	start := time.Now()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		dsn.releaseDSN()
		return nil, connectionFailure(err, "failed to connect", desc)
	}

	h = newHandle(db, desc, f.timeouts.Query, log)
	h.release = dsn.release
	log.Info("connection established",
		zap.String("driver", dsn.driver),
		zap.Duration("ping", time.Since(start)))
	return h, nil
}

func (d *driverDSN) releaseDSN() {
	if d.release != nil {
		d.release()
	}
}

// connectionFailure wraps a driver error with the target, never the password.
func connectionFailure(err error, message string, desc *jdbc.Descriptor) *jdbcerrors.Error {
	return jdbcerrors.Wrap(err, jdbcerrors.KindConnectionFailure, message).
		WithDetail("dialect", desc.ConnectionType.String()).
		WithDetail("host", desc.Host).
		WithDetail("port", desc.Port).
		WithDetail("database", desc.Database)
}
