// Package catalog resolves AWS Glue Data Catalog connections into JDBC
// descriptors.
//
// The resolver never retries: throttling surfaces as KindThrottling so the
// caller can decide on backoff.
package catalog

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/logger"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
	"github.com/ajitpratap0/gluejdbc/pkg/observability"
)

// GlueAPI is the subset of *glue.Client the resolver calls.
type GlueAPI interface {
	GetConnection(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error)
	GetConnections(ctx context.Context, params *glue.GetConnectionsInput, optFns ...func(*glue.Options)) (*glue.GetConnectionsOutput, error)
}

var _ GlueAPI = (*glue.Client)(nil)

// Resolver fetches connection records from Glue.
type Resolver struct {
	client GlueAPI
	region string
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithRegion records the region for logging when the client was built elsewhere.
func WithRegion(region string) Option {
	return func(r *Resolver) {
		r.region = region
	}
}

// New creates a resolver around an existing client.
func New(client GlueAPI, opts ...Option) *Resolver {
	r := &Resolver{
		client: client,
		logger: logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewResolver builds a Glue client from the ambient AWS configuration,
// overridden by cfg. The SDK's own retries are disabled.
func NewResolver(ctx context.Context, cfg config.CatalogConfig, opts ...Option) (*Resolver, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindCatalog, "failed to load AWS configuration").
			WithDetail("profile", cfg.Profile)
	}

	client := glue.NewFromConfig(awsCfg, func(o *glue.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	opts = append([]Option{WithRegion(awsCfg.Region)}, opts...)
	return New(client, opts...), nil
}

// Region returns the region the resolver talks to, if known.
func (r *Resolver) Region() string {
	return r.region
}

// Fetch returns the raw record for a named connection.
func (r *Resolver) Fetch(ctx context.Context, name string) (*Record, error) {
	if name == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "connection name is required")
	}

	ctx, span := observability.StartSpan(ctx, "catalog.get_connection")
	span.SetAttribute("connection", name)
	timer := metrics.NewTimer()

	rec, err := r.fetch(ctx, name)

	metrics.CatalogLatency.WithLabelValues("get_connection").Observe(timer.Seconds())
	metrics.CatalogRequests.WithLabelValues("get_connection", metrics.Outcome(err)).Inc()
	span.End(err)
	return rec, err
}

func (r *Resolver) fetch(ctx context.Context, name string) (*Record, error) {
	out, err := r.client.GetConnection(ctx, &glue.GetConnectionInput{
		Name:         aws.String(name),
		HidePassword: false,
	})
	if err != nil {
		return nil, classify(err, "get connection").WithDetail("connection", name)
	}
	if out == nil || out.Connection == nil {
		return nil, jdbcerrors.Newf(jdbcerrors.KindConnectionNotFound, "connection %q not found", name).
			WithDetail("connection", name)
	}
	return recordFrom(out.Connection), nil
}

// Resolve fetches a connection and turns it into a descriptor with the
// catalog's credentials applied.
func (r *Resolver) Resolve(ctx context.Context, name string) (*jdbc.Descriptor, error) {
	rec, err := r.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	desc, err := rec.Descriptor()
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Value(logger.ConnectionKey).(string); !ok {
		ctx = logger.ContextWithConnection(ctx, name)
	}
	if _, ok := ctx.Value(logger.RegionKey).(string); !ok {
		ctx = logger.ContextWithRegion(ctx, r.region)
	}
	logger.FromContext(ctx, r.logger).Debug("resolved connection", zap.Object("descriptor", desc))
	return desc, nil
}

// List returns every connection name in catalog order, following pagination
// to the end. Names are de-duplicated.
func (r *Resolver) List(ctx context.Context) ([]string, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.get_connections")
	timer := metrics.NewTimer()

	names, pages, err := r.list(ctx)

	metrics.CatalogLatency.WithLabelValues("get_connections").Observe(timer.Seconds())
	metrics.CatalogRequests.WithLabelValues("get_connections", metrics.Outcome(err)).Inc()
	span.SetAttribute("pages", pages)
	span.SetAttribute("connections", len(names))
	span.End(err)

	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, r.logger).Debug("listed connections",
		zap.Int("count", len(names)),
		zap.Int("pages", pages))
	return names, nil
}

func (r *Resolver) list(ctx context.Context) ([]string, int, error) {
	paginator := glue.NewGetConnectionsPaginator(r.client, &glue.GetConnectionsInput{
		HidePassword: true,
	})

	seen := make(map[string]struct{})
	names := make([]string, 0)
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pages, classify(err, "list connections").WithDetail("page", pages+1)
		}
		pages++
		for _, conn := range page.ConnectionList {
			name := aws.ToString(conn.Name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names, pages, nil
}

// throttling codes returned by AWS services
var throttleCodes = map[string]struct{}{
	"ThrottlingException":                    {},
	"Throttling":                             {},
	"TooManyRequestsException":               {},
	"RequestLimitExceeded":                   {},
	"RequestThrottled":                       {},
	"RequestThrottledException":              {},
	"ProvisionedThroughputExceededException": {},
	"SlowDown":                               {},
}

// classify maps a Glue SDK error onto the error taxonomy.
func classify(err error, action string) *jdbcerrors.Error {
	var notFound *types.EntityNotFoundException
	if errors.As(err, &notFound) {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConnectionNotFound, "connection not found")
	}

	var quota ratelimit.QuotaExceededError
	if errors.As(err, &quota) {
		return jdbcerrors.Wrap(err, jdbcerrors.KindThrottling, "client retry quota exhausted")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttleCodes[apiErr.ErrorCode()]; ok {
			return jdbcerrors.Wrap(err, jdbcerrors.KindThrottling, "catalog throttled the request").
				WithDetail("code", apiErr.ErrorCode())
		}
		if apiErr.ErrorCode() == "EntityNotFoundException" {
			return jdbcerrors.Wrap(err, jdbcerrors.KindConnectionNotFound, "connection not found")
		}
		return jdbcerrors.Wrap(err, jdbcerrors.KindCatalog, "failed to "+action).
			WithDetail("code", apiErr.ErrorCode())
	}

	return jdbcerrors.Wrap(err, jdbcerrors.KindCatalog, "failed to "+action)
}
