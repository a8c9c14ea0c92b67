package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/logger"
	"github.com/ajitpratap0/gluejdbc/pkg/metrics"
	"github.com/ajitpratap0/gluejdbc/pkg/observability"
	"github.com/ajitpratap0/gluejdbc/pkg/toolkit"
)

const envPrefix = "GLUEJDBC"

// app carries state shared by every command of one invocation.
type app struct {
	out io.Writer
	err io.Writer
	v   *viper.Viper

	cfg      *config.Config
	tk       *toolkit.Toolkit
	log      *zap.Logger
	shutdown func(context.Context) error
	cancel   context.CancelFunc

	// flags
	configFile  string
	format      string
	connection  string
	url         string
	user        string
	password    string
	timeout     time.Duration
	dumpMetrics bool

	// tkOpts are extra toolkit options; tests use them to stub Glue and drivers
	tkOpts []toolkit.Option
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, err: errOut, v: viper.New()}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gluejdbc",
		Short: "gluejdbc - query JDBC databases registered in the AWS Glue Data Catalog",
		Long: `gluejdbc resolves connections stored in the AWS Glue Data Catalog, connects to
PostgreSQL, Redshift, MySQL, SQL Server and Oracle, and reads tables as Arrow data.

Configuration is layered: defaults, then the --config YAML file, then GLUEJDBC_*
environment variables (AWS_REGION is honored for the catalog region), then flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Path to YAML configuration file")
	pf.StringVarP(&a.format, "output", "o", "table", "Output format: table, json, csv or arrow")
	pf.DurationVar(&a.timeout, "timeout", 0, "Overall deadline for the command (0 = none)")
	pf.BoolVar(&a.dumpMetrics, "metrics", false, "Print Prometheus metrics to stderr when done")
	pf.String("region", "", "Glue catalog region")
	pf.String("profile", "", "AWS shared config profile")
	pf.String("endpoint", "", "Glue endpoint override")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Int("batch-size", 0, "Rows per Arrow record for batched reads")
	pf.Duration("query-timeout", 0, "Per-statement timeout")

	a.bindFlag("catalog.region", pf.Lookup("region"))
	a.bindFlag("catalog.profile", pf.Lookup("profile"))
	a.bindFlag("catalog.endpoint", pf.Lookup("endpoint"))
	a.bindFlag("observability.log_level", pf.Lookup("log-level"))
	a.bindFlag("performance.batch_size", pf.Lookup("batch-size"))
	a.bindFlag("timeouts.query", pf.Lookup("query-timeout"))

	root.AddCommand(
		newVersionCommand(a),
		newConnectionsCommand(a),
		newURLCommand(a),
		newSchemasCommand(a),
		newTablesCommand(a),
		newDescribeCommand(a),
		newStatsCommand(a),
		newSampleCommand(a),
		newReadCommand(a),
		newQueryCommand(a),
	)
	return root
}

// setup loads configuration and initializes logging and tracing.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.timeout > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
		a.cancel = cancel
		cmd.SetContext(ctx)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogEncoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to initialize logger")
	}
	a.log = logger.Get().With(zap.String("component", "gluejdbc-cli"))

	a.shutdown, err = observability.Initialize(observability.TracingConfig{
		ServiceName:    "gluejdbc",
		ServiceVersion: version,
		Enabled:        cfg.Observability.EnableTracing,
		Writer:         a.err,
	})
	return err
}

// finish flushes traces and metrics. It runs after every command, failed or
// not.
func (a *app) finish(ctx context.Context) error {
	if a.cancel != nil {
		defer a.cancel()
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	if a.dumpMetrics && a.cfg != nil && a.cfg.Observability.EnableMetrics {
		if err := metrics.WriteText(a.err); err != nil {
			return err
		}
	}
	_ = logger.Sync()
	return nil
}

// bindFlag lets an explicitly set flag override key.
func (a *app) bindFlag(key string, flag *pflag.Flag) {
	_ = a.v.BindPFlag(key, flag)
}

// loadConfig layers defaults, the YAML file, environment and flags.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if a.configFile != "" {
		if err := config.Load(a.configFile, cfg); err != nil {
			return nil, err
		}
	}

	v := a.v
	for key, value := range configKeys(cfg) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("catalog.region", envPrefix+"_CATALOG_REGION", "AWS_REGION")
	_ = v.BindEnv("catalog.profile", envPrefix+"_CATALOG_PROFILE", "AWS_PROFILE")
	_ = v.BindEnv("password", envPrefix+"_PASSWORD")

	if err := v.Unmarshal(cfg); err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to apply configuration overrides")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configKeys lists every configuration key with its current value, so viper
// knows which environment variables to look up.
func configKeys(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"catalog.region":                     cfg.Catalog.Region,
		"catalog.profile":                    cfg.Catalog.Profile,
		"catalog.endpoint":                   cfg.Catalog.Endpoint,
		"performance.batch_size":             cfg.Performance.BatchSize,
		"performance.sample_size":            cfg.Performance.SampleSize,
		"timeouts.connection":                cfg.Timeouts.Connection,
		"timeouts.query":                     cfg.Timeouts.Query,
		"pool.max_open_conns":                cfg.Pool.MaxOpenConns,
		"pool.max_idle_conns":                cfg.Pool.MaxIdleConns,
		"pool.conn_max_lifetime":             cfg.Pool.ConnMaxLifetime,
		"reliability.throttle_retries":       cfg.Reliability.ThrottleRetries,
		"reliability.throttle_initial_delay": cfg.Reliability.ThrottleInitialDelay,
		"reliability.throttle_max_delay":     cfg.Reliability.ThrottleMaxDelay,
		"observability.log_level":            cfg.Observability.LogLevel,
		"observability.log_encoding":         cfg.Observability.LogEncoding,
		"observability.enable_metrics":       cfg.Observability.EnableMetrics,
		"observability.enable_tracing":       cfg.Observability.EnableTracing,
	}
}

// kit builds the toolkit on first use.
func (a *app) kit() (*toolkit.Toolkit, error) {
	if a.tk != nil {
		return a.tk, nil
	}
	opts := append([]toolkit.Option{toolkit.WithLogger(a.log)}, a.tkOpts...)
	tk, err := toolkit.New(a.cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.tk = tk
	return tk, nil
}

// connect opens a handle from --connection or --url.
func (a *app) connect(ctx context.Context) (*connector.Handle, error) {
	tk, err := a.kit()
	if err != nil {
		return nil, err
	}
	switch {
	case a.connection != "" && a.url != "":
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "use either --connection or --url, not both")
	case a.connection != "":
		return tk.ConnectByName(ctx, a.connection)
	case a.url != "":
		desc, err := tk.ParseURL(a.url)
		if err != nil {
			return nil, err
		}
		password := a.password
		if password == "" {
			password = a.v.GetString("password")
		}
		return tk.ConnectFromDescriptor(ctx, jdbc.Overlay(desc, a.user, password))
	default:
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "a target is required: pass --connection or --url")
	}
}

// withHandle connects, runs fn and closes the handle.
func (a *app) withHandle(cmd *cobra.Command, fn func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error) error {
	ctx := cmd.Context()
	h, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			a.log.Warn("failed to close connection", zap.Error(cerr))
		}
	}()
	return fn(ctx, a.tk, h)
}

// addTargetFlags registers the flags naming a database.
func (a *app) addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.connection, "connection", "n", "", "Glue connection name")
	cmd.Flags().StringVarP(&a.url, "url", "u", "", "JDBC URL to connect to directly")
	cmd.Flags().StringVar(&a.user, "user", "", "Username overriding the URL's")
	cmd.Flags().StringVar(&a.password, "password", "", "Password overriding the URL's (prefer GLUEJDBC_PASSWORD)")
}
