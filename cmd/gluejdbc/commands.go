package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/gluejdbc/pkg/catalog"
	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	"github.com/ajitpratap0/gluejdbc/pkg/query"
	"github.com/ajitpratap0/gluejdbc/pkg/toolkit"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "gluejdbc %s\n", version)
			return err
		},
	}
}

func newConnectionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Inspect connections stored in the Glue Data Catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog connection names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tk, err := a.kit()
			if err != nil {
				return err
			}
			names, err := tk.ListConnections(cmd.Context())
			if err != nil {
				return err
			}
			return writeList(a.out, a.format, "connection", names)
		},
	}

	var resolve bool
	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Show a catalog connection with its password masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := a.kit()
			if err != nil {
				return err
			}
			if resolve {
				desc, err := tk.ResolveConnection(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeDescriptor(a, desc.Redacted())
			}
			rec, err := tk.GetConnection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeRecord(a, rec.Redacted())
		},
	}
	show.Flags().BoolVar(&resolve, "resolve", false, "Show the parsed descriptor instead of the raw record")

	cmd.AddCommand(list, show)
	return cmd
}

func writeRecord(a *app, rec *catalog.Record) error {
	fields := [][2]string{
		{"name", rec.Name},
		{"connection_type", rec.ConnectionType},
	}
	if rec.Description != "" {
		fields = append(fields, [2]string{"description", rec.Description})
	}
	if rec.LastUpdated != nil {
		fields = append(fields, [2]string{"last_updated", rec.LastUpdated.Format(time.RFC3339)})
	}
	for _, k := range sortedKeys(rec.Properties) {
		fields = append(fields, [2]string{k, rec.Properties[k]})
	}
	return writeFields(a.out, a.format, rec, fields)
}

func writeDescriptor(a *app, desc *jdbc.Descriptor) error {
	fields := [][2]string{
		{"connection_type", desc.ConnectionType.String()},
		{"host", desc.Host},
		{"port", strconv.Itoa(desc.Port)},
		{"database", desc.Database},
		{"username", desc.Username},
		{"password", desc.Password},
	}
	for _, k := range sortedKeys(desc.ExtraParams) {
		fields = append(fields, [2]string{"param." + k, desc.ExtraParams[k]})
	}
	if desc.ConnectionName != "" {
		fields = append(fields, [2]string{"connection_name", desc.ConnectionName})
	}
	if desc.JDBCURL != "" {
		fields = append(fields, [2]string{"jdbc_url", desc.JDBCURL})
	}
	return writeFields(a.out, a.format, desc, fields)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newURLCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Parse JDBC URLs and build connectivity URLs",
	}

	parse := &cobra.Command{
		Use:   "parse JDBC_URL",
		Short: "Parse a JDBC URL into its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := jdbc.Parse(args[0])
			if err != nil {
				return err
			}
			return writeDescriptor(a, desc.Redacted())
		},
	}

	decode := &cobra.Command{
		Use:   "decode URL",
		Short: "Decode a connectivity URL produced by build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := jdbc.Decode(args[0])
			if err != nil {
				return err
			}
			return writeDescriptor(a, desc.Redacted())
		},
	}

	var (
		b       jdbc.Descriptor
		kind    string
		params  map[string]string
		ssl     bool
		showPwd bool
	)
	build := &cobra.Command{
		Use:   "build [JDBC_URL]",
		Short: "Build a connectivity URL from a JDBC URL or from flags",
		Long: `build renders the driver connectivity URL for a database. Pass a JDBC URL,
or describe the database with --type, --host, --port, --database and --param.
--user and --password override the credentials either way.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var desc *jdbc.Descriptor
			if len(args) == 1 {
				parsed, err := jdbc.Parse(args[0])
				if err != nil {
					return err
				}
				desc = parsed
			} else {
				d, ok := dialect.Lookup(kind)
				if !ok {
					return jdbcerrors.Newf(jdbcerrors.KindUnsupportedDialect, "unknown database type %q", kind)
				}
				desc = b.Clone()
				desc.ConnectionType = d
				if len(params) > 0 {
					desc.ExtraParams = params
				}
			}
			desc = jdbc.Overlay(desc, b.Username, b.Password)
			if ssl {
				desc = jdbc.EnforceSSL(desc)
			}
			if !showPwd {
				desc = desc.Redacted()
			}
			url, err := jdbc.Build(desc)
			if err != nil {
				return err
			}
			return writeFields(a.out, a.format, map[string]string{"url": url}, [][2]string{{"url", url}})
		},
	}
	f := build.Flags()
	f.StringVar(&kind, "type", "", "Database type: postgresql, mysql, redshift, sqlserver or oracle")
	f.StringVar(&b.Host, "host", "", "Database host")
	f.IntVar(&b.Port, "port", 0, "Database port (0 = dialect default)")
	f.StringVar(&b.Database, "database", "", "Database, service or SID")
	f.StringVar(&b.Username, "user", "", "Username")
	f.StringVar(&b.Password, "password", "", "Password")
	f.StringToStringVar(&params, "param", nil, "Extra connection parameter key=value (repeatable)")
	f.BoolVar(&ssl, "ssl", false, "Add the dialect's SSL parameter")
	f.BoolVar(&showPwd, "show-password", false, "Print the password instead of masking it")

	cmd.AddCommand(parse, decode, build)
	return cmd
}

func newSchemasCommand(a *app) *cobra.Command {
	var excludeSystem bool
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List schemas of a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				names, err := tk.ListSchemas(ctx, h, excludeSystem)
				if err != nil {
					return err
				}
				return writeList(a.out, a.format, "schema", names)
			})
		},
	}
	a.addTargetFlags(cmd)
	cmd.Flags().BoolVar(&excludeSystem, "exclude-system", true, "Hide the database's own schemas")
	return cmd
}

func newTablesCommand(a *app) *cobra.Command {
	var (
		schema       string
		excludeViews bool
	)
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables, then views, of a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				names, err := tk.ListTables(ctx, h, schema, excludeViews)
				if err != nil {
					return err
				}
				return writeList(a.out, a.format, "table", names)
			})
		},
	}
	a.addTargetFlags(cmd)
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema (default: the dialect's default schema)")
	cmd.Flags().BoolVar(&excludeViews, "exclude-views", false, "List base tables only")
	return cmd
}

func newDescribeCommand(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "describe TABLE",
		Short: "Show a table's columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				desc, err := tk.DescribeTable(ctx, h, args[0], schema)
				if err != nil {
					return err
				}
				return writeColumns(a, desc, desc.Columns)
			})
		},
	}
	a.addTargetFlags(cmd)
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema of the table")
	return cmd
}

// writeColumns renders columns as a table, or v as JSON.
func writeColumns(a *app, v interface{}, cols []query.Column) error {
	switch a.format {
	case formatJSON:
		return writeJSON(a.out, v)
	case formatTable, formatCSV:
		rows := make([][2]string, 0, len(cols))
		for _, c := range cols {
			typ := c.TypeName
			if !c.Nullable {
				typ += " NOT NULL"
			}
			rows = append(rows, [2]string{c.Name, typ})
		}
		if a.format == formatCSV {
			return writeFields(a.out, a.format, nil, rows)
		}
		table := newTableWriter(a.out, []string{"Column", "Type"})
		for _, r := range rows {
			table.Append(r[:])
		}
		table.Render()
		return nil
	default:
		return unsupportedFormat(a.format)
	}
}

func newStatsCommand(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "stats TABLE",
		Short: "Show row count, columns and storage sizes of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				stats, err := tk.TableStats(ctx, h, args[0], schema)
				if err != nil {
					return err
				}
				name := stats.Table
				if stats.Schema != "" {
					name = stats.Schema + "." + name
				}
				fields := [][2]string{
					{"table", name},
					{"row_count", strconv.FormatInt(stats.RowCount, 10)},
					{"column_count", strconv.Itoa(stats.ColumnCount)},
				}
				keys := make([]string, 0, len(stats.Sizes))
				for k := range stats.Sizes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fields = append(fields, [2]string{k, strconv.FormatInt(stats.Sizes[k], 10)})
				}
				return writeFields(a.out, a.format, stats, fields)
			})
		},
	}
	a.addTargetFlags(cmd)
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema of the table")
	return cmd
}

func newSampleCommand(a *app) *cobra.Command {
	var (
		schema string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "sample TABLE",
		Short: "Print the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				t, err := tk.SampleTable(ctx, h, args[0], schema, limit)
				if err != nil {
					return err
				}
				defer t.Release()
				return writeTable(a.out, a.format, t)
			})
		},
	}
	a.addTargetFlags(cmd)
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema of the table")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Rows to read (default: performance.sample_size)")
	return cmd
}

func newReadCommand(a *app) *cobra.Command {
	var (
		spec    query.Spec
		columns string
	)
	cmd := &cobra.Command{
		Use:   "read TABLE",
		Short: "Read a table as Arrow record batches",
		Long: `read streams a table in batches of --batch-size rows. The filter is sent to
the database verbatim as the WHERE clause, so it must be trusted and written in
the database's own SQL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Table = args[0]
			spec.Columns = splitColumns(columns)
			if spec.BatchSize == 0 {
				spec.BatchSize = a.cfg.Performance.BatchSize
			}
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				it, err := tk.ReadBatches(ctx, h, &spec)
				if err != nil {
					return err
				}
				defer it.Close()
				return writeBatches(a.out, a.format, it)
			})
		},
	}
	a.addTargetFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&spec.Schema, "schema", "s", "", "Schema of the table")
	f.StringVar(&columns, "columns", "", "Comma-separated projection (default: all columns)")
	f.StringVarP(&spec.Filter, "filter", "f", "", "Trusted WHERE predicate")
	f.IntVarP(&spec.Limit, "limit", "l", 0, "Maximum rows (0 = all)")
	f.IntVar(&spec.BatchSize, "rows-per-batch", 0, "Rows per record (default: performance.batch_size)")
	return cmd
}

func splitColumns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		cols = append(cols, strings.TrimSpace(p))
	}
	return cols
}

func newQueryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a SQL statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.connection != "" && a.url == "" {
				tk, err := a.kit()
				if err != nil {
					return err
				}
				t, err := tk.ReadSQL(cmd.Context(), a.connection, args[0])
				if err != nil {
					return err
				}
				defer t.Release()
				return writeTable(a.out, a.format, t)
			}
			return a.withHandle(cmd, func(ctx context.Context, tk *toolkit.Toolkit, h *connector.Handle) error {
				t, err := tk.Execute(ctx, h, args[0])
				if err != nil {
					return err
				}
				defer t.Release()
				return writeTable(a.out, a.format, t)
			})
		},
	}
	a.addTargetFlags(cmd)
	return cmd
}
