package query

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
	stringpool "github.com/ajitpratap0/gluejdbc/pkg/strings"
)

// statement is a rendered query and its arguments.
type statement struct {
	sql  string
	args []interface{}
}

func render(b sq.Sqlizer) (statement, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return statement{}, jdbcerrors.Wrap(err, jdbcerrors.KindValidation, "failed to render statement")
	}
	return statement{sql: query, args: args}, nil
}

// builder returns a statement builder using the dialect's placeholders.
func builder(d dialect.Dialect) sq.StatementBuilderType {
	format := d.Profile().Placeholder
	if format == nil {
		format = sq.Question
	}
	return sq.StatementBuilder.PlaceholderFormat(format)
}

// selectStatement renders the SELECT for a table read. The filter is trusted
// SQL and goes in verbatim, so no placeholders are rewritten.
func selectStatement(d dialect.Dialect, spec *Spec) (statement, error) {
	columns := spec.Columns
	if len(columns) == 0 {
		columns = []string{"*"}
	}

	b := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select(columns...).
		From(spec.QualifiedName())
	if spec.Filter != "" {
		b = b.Where(spec.Filter)
	}
	if spec.Limit > 0 {
		switch d.Profile().Limit {
		case dialect.TopClause:
			b = b.Options(stringpool.Sprintf("TOP (%d)", spec.Limit))
		case dialect.FetchFirst:
			b = b.Suffix(stringpool.Sprintf("FETCH FIRST %d ROWS ONLY", spec.Limit))
		default:
			b = b.Limit(uint64(spec.Limit))
		}
	}
	return render(b)
}

func countStatement(schema, table string) (statement, error) {
	return render(sq.Select("COUNT(*)").From(qualify(schema, table)))
}

func currentSchemaStatement(d dialect.Dialect) (statement, bool) {
	expr := d.Profile().CurrentSchema
	if expr == "" {
		return statement{}, false
	}
	b := sq.Select(expr)
	if d == dialect.Oracle {
		b = b.From("dual")
	}
	st, err := render(b)
	return st, err == nil
}

func schemasStatement(d dialect.Dialect) (statement, error) {
	b := builder(d)
	if d == dialect.Oracle {
		return render(b.Select("username").From("all_users").OrderBy("username"))
	}
	return render(b.Select("schema_name").From("information_schema.schemata").OrderBy("schema_name"))
}

// relationsStatement lists base tables, or views when views is set.
func relationsStatement(d dialect.Dialect, schema string, views bool) (statement, error) {
	b := builder(d)
	if d == dialect.Oracle {
		if views {
			return render(b.Select("view_name").From("all_views").
				Where(sq.Eq{"owner": schema}).OrderBy("view_name"))
		}
		return render(b.Select("table_name").From("all_tables").
			Where(sq.Eq{"owner": schema}).OrderBy("table_name"))
	}

	tableType := "BASE TABLE"
	if views {
		tableType = "VIEW"
	}
	return render(b.Select("table_name").From("information_schema.tables").
		Where(sq.And{sq.Eq{"table_schema": schema}, sq.Eq{"table_type": tableType}}).
		OrderBy("table_name"))
}

func columnsStatement(d dialect.Dialect, schema, table string) (statement, error) {
	b := builder(d)
	if d == dialect.Oracle {
		return render(b.Select("column_name", "data_type", "nullable").From("all_tab_columns").
			Where(sq.And{sq.Eq{"owner": schema}, sq.Eq{"table_name": table}}).
			OrderBy("column_id"))
	}
	return render(b.Select("column_name", "data_type", "is_nullable").From("information_schema.columns").
		Where(sq.And{sq.Eq{"table_schema": schema}, sq.Eq{"table_name": table}}).
		OrderBy("ordinal_position"))
}

// sizeStatement returns the dialect's size-catalog query and the metric name
// of each selected column. ok is false when the dialect has no size catalog.
func sizeStatement(d dialect.Dialect, schema, table string) (st statement, keys []string, ok bool, err error) {
	b := builder(d)
	qualified := qualify(schema, table)

	var q sq.SelectBuilder
	switch d {
	case dialect.PostgreSQL:
		q = b.Select().
			Column("pg_total_relation_size(?::regclass)", qualified).
			Column("pg_relation_size(?::regclass)", qualified).
			Column("pg_indexes_size(?::regclass)", qualified)
		keys = []string{"total_bytes", "table_bytes", "index_bytes"}
	case dialect.Redshift:
		// svv_table_info reports size in 1 MB blocks
		q = b.Select("size").From("svv_table_info").
			Where(sq.And{sq.Eq{`"schema"`: schema}, sq.Eq{`"table"`: table}})
		keys = []string{"size_mb"}
	case dialect.MySQL:
		q = b.Select("data_length + index_length", "data_length", "index_length").
			From("information_schema.tables").
			Where(sq.And{sq.Eq{"table_schema": schema}, sq.Eq{"table_name": table}})
		keys = []string{"total_bytes", "table_bytes", "index_bytes"}
	case dialect.SQLServer:
		q = b.Select("SUM(reserved_page_count) * 8192", "SUM(used_page_count) * 8192").
			From("sys.dm_db_partition_stats").
			Where("object_id = OBJECT_ID(?)", qualified)
		keys = []string{"reserved_bytes", "used_bytes"}
	case dialect.Oracle:
		q = b.Select("SUM(bytes)").From("dba_segments").
			Where(sq.And{sq.Eq{"owner": schema}, sq.Eq{"segment_name": table}})
		keys = []string{"total_bytes"}
	default:
		return statement{}, nil, false, nil
	}

	st, err = render(q)
	if err != nil {
		return statement{}, nil, false, err
	}
	return st, keys, true, nil
}
