package query

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gluejdbc/pkg/connector"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Column describes one table column as the catalog reports it.
type Column struct {
	Name     string `json:"name"`
	TypeName string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableDescription lists a table's columns in ordinal order.
type TableDescription struct {
	Table   string   `json:"table"`
	Schema  string   `json:"schema"`
	Columns []Column `json:"columns"`
}

// TableStats holds lightweight statistics. Sizes has one entry per metric
// the dialect's size catalog reports; a missing key means unknown.
type TableStats struct {
	Table       string           `json:"table"`
	Schema      string           `json:"schema"`
	RowCount    int64            `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []Column         `json:"columns"`
	Sizes       map[string]int64 `json:"sizes"`
}

// DescribeTable returns a table's columns. An empty schema uses the dialect
// default. A table with no visible columns is reported as not found.
func (e *Engine) DescribeTable(ctx context.Context, h *connector.Handle, table, schema string) (desc *TableDescription, err error) {
	if strings.TrimSpace(table) == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "table is required")
	}
	ctx, done := e.instrument(ctx, h, "describe")
	defer func() { done(err) }()

	err = h.WithConn(ctx, func(conn *sql.Conn) error {
		desc, err = describe(ctx, h, conn, table, schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

func describe(ctx context.Context, h *connector.Handle, conn *sql.Conn, table, schema string) (*TableDescription, error) {
	resolved, err := resolveSchema(ctx, h, conn, schema)
	if err != nil {
		return nil, err
	}
	st, err := columnsStatement(h.Dialect(), resolved, table)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := h.Context(ctx)
	defer cancel()
	rows, err := conn.QueryContext(opCtx, st.sql, st.args...)
	if err != nil {
		return nil, h.Classify(err, "failed to query columns").WithDetail("table", qualify(resolved, table))
	}
	defer rows.Close()

	desc := &TableDescription{Table: table, Schema: resolved, Columns: make([]Column, 0)}
	for rows.Next() {
		var name, typeName, nullable sql.NullString
		if err := rows.Scan(&name, &typeName, &nullable); err != nil {
			return nil, h.Classify(err, "failed to scan column row")
		}
		desc.Columns = append(desc.Columns, Column{
			Name:     name.String,
			TypeName: typeName.String,
			Nullable: strings.EqualFold(nullable.String, "YES") || strings.EqualFold(nullable.String, "Y"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, h.Classify(err, "failed while reading columns")
	}

	if len(desc.Columns) == 0 {
		return nil, jdbcerrors.Newf(jdbcerrors.KindQueryExecution, "table %s not found or has no columns",
			qualify(resolved, table)).
			WithDetail("table", table).
			WithDetail("schema", resolved)
	}
	return desc, nil
}

// TableStats counts rows with COUNT(*), describes the columns and queries
// the dialect's size catalog. Count and describe failures fail the call; a
// size-catalog failure is logged and leaves Sizes empty.
func (e *Engine) TableStats(ctx context.Context, h *connector.Handle, table, schema string) (stats *TableStats, err error) {
	if strings.TrimSpace(table) == "" {
		return nil, jdbcerrors.New(jdbcerrors.KindValidation, "table is required")
	}
	ctx, done := e.instrument(ctx, h, "stats")
	defer func() { done(err) }()

	err = h.WithConn(ctx, func(conn *sql.Conn) error {
		desc, err := describe(ctx, h, conn, table, schema)
		if err != nil {
			return err
		}

		count, err := countRows(ctx, h, conn, desc.Schema, table)
		if err != nil {
			return err
		}

		stats = &TableStats{
			Table:       table,
			Schema:      desc.Schema,
			RowCount:    count,
			ColumnCount: len(desc.Columns),
			Columns:     desc.Columns,
			Sizes:       make(map[string]int64),
		}

		sizes, err := tableSizes(ctx, h, conn, desc.Schema, table)
		if jdbcerrors.IsKind(err, jdbcerrors.KindConnectionFailure) {
			return err
		}
		if err != nil {
			e.log(ctx, h).Warn("size catalog query failed; sizes unavailable",
				zap.String("table", qualify(desc.Schema, table)),
				zap.Error(err))
			return nil
		}
		stats.Sizes = sizes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func countRows(ctx context.Context, h *connector.Handle, conn *sql.Conn, schema, table string) (int64, error) {
	st, err := countStatement(schema, table)
	if err != nil {
		return 0, err
	}
	opCtx, cancel := h.Context(ctx)
	defer cancel()

	var count int64
	if err := conn.QueryRowContext(opCtx, st.sql, st.args...).Scan(&count); err != nil {
		return 0, h.Classify(err, "row count failed").WithDetail("table", qualify(schema, table))
	}
	return count, nil
}

// tableSizes runs the size-catalog query. NULL metrics are left out.
func tableSizes(ctx context.Context, h *connector.Handle, conn *sql.Conn, schema, table string) (map[string]int64, error) {
	st, keys, ok, err := sizeStatement(h.Dialect(), schema, table)
	if err != nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(keys))
	if !ok {
		return sizes, nil
	}

	opCtx, cancel := h.Context(ctx)
	defer cancel()

	values := make([]sql.NullInt64, len(keys))
	dest := make([]interface{}, len(keys))
	for i := range values {
		dest[i] = &values[i]
	}
	err = conn.QueryRowContext(opCtx, st.sql, st.args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return sizes, nil
	}
	if err != nil {
		return nil, h.Classify(err, "size catalog query failed")
	}
	for i, v := range values {
		if v.Valid {
			sizes[keys[i]] = v.Int64
		}
	}
	return sizes, nil
}
