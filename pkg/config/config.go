package config

import (
	"time"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Config is the single configuration structure used by the toolkit and CLI.
type Config struct {
	// Catalog locates the Glue Data Catalog
	Catalog CatalogConfig `yaml:"catalog" json:"catalog" mapstructure:"catalog"`

	// Performance settings control read sizes
	Performance PerformanceConfig `yaml:"performance" json:"performance" mapstructure:"performance"`

	// Timeouts bound blocking calls
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`

	// Pool is passed to database/sql unchanged
	Pool PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`

	// Reliability settings for catalog throttling
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability" mapstructure:"reliability"`

	// Observability settings for logs, metrics and traces
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// CatalogConfig selects the AWS account and region holding Glue connections.
// Empty fields fall back to the ambient AWS configuration chain.
type CatalogConfig struct {
	// Region of the Glue catalog (e.g. "us-east-1")
	Region string `yaml:"region" json:"region" mapstructure:"region"`
	// Profile names a shared-config profile
	Profile string `yaml:"profile" json:"profile" mapstructure:"profile"`
	// Endpoint overrides the Glue endpoint (VPC endpoints, local stacks)
	Endpoint string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
}

// PerformanceConfig contains read sizing defaults.
type PerformanceConfig struct {
	// BatchSize is the default rows per Arrow record for batched reads
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	// SampleSize is the default row count for table samples
	SampleSize int `yaml:"sample_size" json:"sample_size" mapstructure:"sample_size"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Connection bounds the initial ping of a new handle
	Connection time.Duration `yaml:"connection" json:"connection" mapstructure:"connection"`
	// Query bounds each statement; zero means no deadline beyond the caller's context
	Query time.Duration `yaml:"query" json:"query" mapstructure:"query"`
}

// PoolConfig mirrors the database/sql pool setters.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// ReliabilityConfig controls the caller-side retry applied to throttled
// catalog calls. The catalog client itself never retries.
type ReliabilityConfig struct {
	// ThrottleRetries is the number of retries after the first attempt (0 disables)
	ThrottleRetries int `yaml:"throttle_retries" json:"throttle_retries" mapstructure:"throttle_retries"`
	// ThrottleInitialDelay is the first backoff interval
	ThrottleInitialDelay time.Duration `yaml:"throttle_initial_delay" json:"throttle_initial_delay" mapstructure:"throttle_initial_delay"`
	// ThrottleMaxDelay caps the backoff interval
	ThrottleMaxDelay time.Duration `yaml:"throttle_max_delay" json:"throttle_max_delay" mapstructure:"throttle_max_delay"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	// EnableMetrics activates Prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// EnableTracing exports spans to stdout
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
}

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		Performance: PerformanceConfig{
			BatchSize:  10000,
			SampleSize: 10,
		},
		Timeouts: TimeoutConfig{
			Connection: 10 * time.Second,
			Query:      0,
		},
		Pool: PoolConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		// throttling surfaces to the caller unless retries are configured
		Reliability: ReliabilityConfig{
			ThrottleRetries:      0,
			ThrottleInitialDelay: 500 * time.Millisecond,
			ThrottleMaxDelay:     10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogEncoding:   "console",
			EnableMetrics: true,
			EnableTracing: false,
		},
	}
}

// Validate checks ranges. It returns a KindConfig error naming the first bad field.
func (c *Config) Validate() error {
	switch {
	case c.Performance.BatchSize <= 0:
		return invalid("performance.batch_size", c.Performance.BatchSize, "must be positive")
	case c.Performance.SampleSize <= 0:
		return invalid("performance.sample_size", c.Performance.SampleSize, "must be positive")
	case c.Timeouts.Connection <= 0:
		return invalid("timeouts.connection", c.Timeouts.Connection, "must be positive")
	case c.Timeouts.Query < 0:
		return invalid("timeouts.query", c.Timeouts.Query, "cannot be negative")
	case c.Pool.MaxOpenConns < 0:
		return invalid("pool.max_open_conns", c.Pool.MaxOpenConns, "cannot be negative")
	case c.Pool.MaxIdleConns < 0:
		return invalid("pool.max_idle_conns", c.Pool.MaxIdleConns, "cannot be negative")
	case c.Pool.ConnMaxLifetime < 0:
		return invalid("pool.conn_max_lifetime", c.Pool.ConnMaxLifetime, "cannot be negative")
	case c.Reliability.ThrottleRetries < 0:
		return invalid("reliability.throttle_retries", c.Reliability.ThrottleRetries, "cannot be negative")
	case c.Reliability.ThrottleRetries > 0 && c.Reliability.ThrottleInitialDelay <= 0:
		return invalid("reliability.throttle_initial_delay", c.Reliability.ThrottleInitialDelay, "must be positive when retries are enabled")
	case c.Reliability.ThrottleMaxDelay < c.Reliability.ThrottleInitialDelay:
		return invalid("reliability.throttle_max_delay", c.Reliability.ThrottleMaxDelay, "must not be below throttle_initial_delay")
	}

	switch c.Observability.LogEncoding {
	case "", "json", "console":
	default:
		return invalid("observability.log_encoding", c.Observability.LogEncoding, "must be json or console")
	}
	return nil
}

// HasRetries reports whether throttled catalog calls are retried.
func (r *ReliabilityConfig) HasRetries() bool {
	return r.ThrottleRetries > 0
}

func invalid(field string, value interface{}, reason string) error {
	return jdbcerrors.New(jdbcerrors.KindConfig, field+" "+reason).
		WithDetail("field", field).
		WithDetail("value", value)
}
