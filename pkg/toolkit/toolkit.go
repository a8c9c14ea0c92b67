// Package toolkit is the public entry point of gluejdbc. It composes the
// catalog resolver, URL parser and builder, connection factory and query
// engine behind one value.
//
//	tk, err := toolkit.New(cfg)
//	if err != nil {
//		return err
//	}
//	h, err := tk.ConnectByName(ctx, "sales-db")
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//	table, err := tk.ReadTable(ctx, h, &query.Spec{Table: "orders", BatchSize: 5000})
//
// Catalog calls fail fast with KindThrottling by default. Setting
// config.ReliabilityConfig.ThrottleRetries opts into exponential backoff for
// throttling; nothing else is retried. InRegion sends a single catalog call
// to another region.
package toolkit

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/catalog"
	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/logger"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
	"github.com/ajitpratap0/gluejdbc/pkg/query"
)

// Toolkit is safe for concurrent use.
type Toolkit struct {
	cfg     *config.Config
	factory *connector.Factory
	engine  *query.Engine
	logger  *zap.Logger

	mu sync.Mutex
	// resolvers by region; "" is the configured region
	resolvers map[string]*catalog.Resolver
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithLogger sets the logger used by the toolkit and the components it builds.
func WithLogger(l *zap.Logger) Option {
	return func(tk *Toolkit) {
		tk.logger = l
	}
}

// WithResolver uses r for the configured region instead of building a Glue
// client from the config.
func WithResolver(r *catalog.Resolver) Option {
	return WithRegionResolver("", r)
}

// WithRegionResolver uses r for calls made with InRegion(region).
func WithRegionResolver(region string, r *catalog.Resolver) Option {
	return func(tk *Toolkit) {
		if tk.resolvers == nil {
			tk.resolvers = make(map[string]*catalog.Resolver)
		}
		tk.resolvers[region] = r
	}
}

// CallOption adjusts a single catalog call.
type CallOption func(*callOptions)

type callOptions struct {
	region string
}

// InRegion sends the call to the Glue catalog of region instead of the
// configured one.
func InRegion(region string) CallOption {
	return func(o *callOptions) {
		o.region = region
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFactory replaces the connection factory.
func WithFactory(f *connector.Factory) Option {
	return func(tk *Toolkit) {
		tk.factory = f
	}
}

// WithEngine replaces the query engine.
func WithEngine(e *query.Engine) Option {
	return func(tk *Toolkit) {
		tk.engine = e
	}
}

// New validates cfg and builds a toolkit. A nil cfg uses config.Default().
// The Glue client is created on first catalog use.
func New(cfg *config.Config, opts ...Option) (*Toolkit, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tk := &Toolkit{cfg: cfg}
	for _, opt := range opts {
		opt(tk)
	}
	if tk.logger == nil {
		tk.logger = logger.Named("toolkit")
	}
	if tk.factory == nil {
		tk.factory = connector.NewFactory(cfg, connector.WithLogger(tk.logger.Named("connector")))
	}
	if tk.engine == nil {
		tk.engine = query.NewEngine(cfg, query.WithLogger(tk.logger.Named("query")))
	}
	return tk, nil
}

// Config returns the toolkit's configuration.
func (tk *Toolkit) Config() *config.Config {
	return tk.cfg
}

// Resolver returns the catalog resolver for region, creating it from the
// catalog config on first use. An empty region, or the configured one,
// selects the configured catalog.
func (tk *Toolkit) Resolver(ctx context.Context, region string) (*catalog.Resolver, error) {
	if region == tk.cfg.Catalog.Region {
		region = ""
	}

	tk.mu.Lock()
	defer tk.mu.Unlock()
	if r, ok := tk.resolvers[region]; ok {
		return r, nil
	}

	cc := tk.cfg.Catalog
	if region != "" {
		cc.Region = region
	}
	r, err := catalog.NewResolver(ctx, cc, catalog.WithLogger(tk.logger.Named("catalog")))
	if err != nil {
		return nil, err
	}
	if tk.resolvers == nil {
		tk.resolvers = make(map[string]*catalog.Resolver)
	}
	tk.resolvers[region] = r
	return r, nil
}

// ListConnections returns every connection name in the catalog.
func (tk *Toolkit) ListConnections(ctx context.Context, opts ...CallOption) ([]string, error) {
	r, err := tk.Resolver(ctx, applyCallOptions(opts).region)
	if err != nil {
		return nil, err
	}
	return retryThrottled(ctx, tk, "list_connections", func() ([]string, error) {
		return r.List(ctx)
	})
}

// GetConnection returns the raw catalog record for name, password included.
// Print it through Record.Redacted.
func (tk *Toolkit) GetConnection(ctx context.Context, name string, opts ...CallOption) (*catalog.Record, error) {
	r, err := tk.Resolver(ctx, applyCallOptions(opts).region)
	if err != nil {
		return nil, err
	}
	return retryThrottled(ctx, tk, "get_connection", func() (*catalog.Record, error) {
		return r.Fetch(ctx, name)
	})
}

// ResolveConnection fetches name from the catalog and returns its descriptor
// with the catalog credentials applied.
func (tk *Toolkit) ResolveConnection(ctx context.Context, name string, opts ...CallOption) (*jdbc.Descriptor, error) {
	r, err := tk.Resolver(ctx, applyCallOptions(opts).region)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithConnection(ctx, name)
	if region := r.Region(); region != "" {
		ctx = logger.ContextWithRegion(ctx, region)
	}
	return retryThrottled(ctx, tk, "resolve_connection", func() (*jdbc.Descriptor, error) {
		return r.Resolve(ctx, name)
	})
}

// ParseURL parses a JDBC URL. See jdbc.Parse.
func (tk *Toolkit) ParseURL(raw string) (*jdbc.Descriptor, error) {
	return jdbc.Parse(raw)
}

// BuildURL renders a connectivity URL. See jdbc.Build.
func (tk *Toolkit) BuildURL(desc *jdbc.Descriptor) (string, error) {
	return jdbc.Build(desc)
}

// ConnectFromDescriptor opens a verified handle for desc.
func (tk *Toolkit) ConnectFromDescriptor(ctx context.Context, desc *jdbc.Descriptor) (*connector.Handle, error) {
	return tk.factory.ConnectDescriptor(ctx, desc)
}

// ConnectByName resolves name and connects to it.
func (tk *Toolkit) ConnectByName(ctx context.Context, name string, opts ...CallOption) (*connector.Handle, error) {
	desc, err := tk.ResolveConnection(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return tk.factory.ConnectDescriptor(logger.ContextWithConnection(ctx, name), desc)
}

// ListSchemas lists schema names, optionally without system schemas.
func (tk *Toolkit) ListSchemas(ctx context.Context, h *connector.Handle, excludeSystem bool) ([]string, error) {
	return tk.engine.ListSchemas(ctx, h, excludeSystem)
}

// ListTables lists tables and then views of schema.
func (tk *Toolkit) ListTables(ctx context.Context, h *connector.Handle, schema string, excludeViews bool) ([]string, error) {
	return tk.engine.ListTables(ctx, h, schema, excludeViews)
}

// DescribeTable returns a table's columns.
func (tk *Toolkit) DescribeTable(ctx context.Context, h *connector.Handle, table, schema string) (*query.TableDescription, error) {
	return tk.engine.DescribeTable(ctx, h, table, schema)
}

// TableStats returns row count, columns and sizes of a table.
func (tk *Toolkit) TableStats(ctx context.Context, h *connector.Handle, table, schema string) (*query.TableStats, error) {
	return tk.engine.TableStats(ctx, h, table, schema)
}

// SampleTable reads up to limit rows; 0 uses the configured sample size.
func (tk *Toolkit) SampleTable(ctx context.Context, h *connector.Handle, table, schema string, limit int) (*query.Table, error) {
	return tk.engine.Sample(ctx, h, table, schema, limit)
}

// ReadTable reads a table into memory.
func (tk *Toolkit) ReadTable(ctx context.Context, h *connector.Handle, spec *query.Spec) (*query.Table, error) {
	return tk.engine.ReadTable(ctx, h, spec)
}

// ReadBatches streams a table as Arrow records.
func (tk *Toolkit) ReadBatches(ctx context.Context, h *connector.Handle, spec *query.Spec) (*query.BatchIterator, error) {
	return tk.engine.ReadBatches(ctx, h, spec)
}

// Execute runs an arbitrary statement on h.
func (tk *Toolkit) Execute(ctx context.Context, h *connector.Handle, sql string) (*query.Table, error) {
	return tk.engine.Execute(ctx, h, sql)
}

// ReadSQL resolves a catalog connection, runs sql on it and closes the
// connection before returning.
func (tk *Toolkit) ReadSQL(ctx context.Context, name, sql string, opts ...CallOption) (*query.Table, error) {
	h, err := tk.ConnectByName(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			tk.logger.Warn("failed to close connection", zap.String("connection", name), zap.Error(cerr))
		}
	}()
	return tk.engine.Execute(logger.ContextWithConnection(ctx, name), h, sql)
}

// retryThrottled runs fn until it succeeds, fails with anything other than
// KindThrottling, or the configured retries run out.
func retryThrottled[T any](ctx context.Context, tk *Toolkit, op string, fn func() (T, error)) (T, error) {
	rel := tk.cfg.Reliability
	if !rel.HasRetries() {
		return fn()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rel.ThrottleInitialDelay
	bo.MaxInterval = rel.ThrottleMaxDelay

	log := logger.FromContext(ctx, tk.logger)
	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !jdbcerrors.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(rel.ThrottleRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.ThrottleRetries.WithLabelValues(op).Inc()
			log.Warn("catalog throttled, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	// a context cancelled between attempts surfaces as a bare context error
	if err != nil && jdbcerrors.KindOf(err) == "" {
		var zero T
		return zero, jdbcerrors.Wrap(err, jdbcerrors.KindCatalog, "catalog call abandoned").
			WithDetail("operation", op).
			WithDetail("attempts", attempt)
	}
	return v, err
}
