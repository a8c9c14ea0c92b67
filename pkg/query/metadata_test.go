package query

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gluejdbc/pkg/dialect"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

const (
	pgTablesSQL  = "SELECT table_name FROM information_schema.tables WHERE (table_schema = $1 AND table_type = $2) ORDER BY table_name"
	pgColumnsSQL = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE (table_schema = $1 AND table_name = $2) ORDER BY ordinal_position"
)

func nameRows(column string, names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{column})
	for _, n := range names {
		rows.AddRow(n)
	}
	return rows
}

func orderColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "integer", "NO").
		AddRow("customer", "text", "YES").
		AddRow("total", "numeric", "YES")
}

func TestListSchemas(t *testing.T) {
	tests := []struct {
		name          string
		dialect       dialect.Dialect
		sql           string
		rows          []string
		excludeSystem bool
		want          []string
	}{
		{
			name:          "postgres excludes system",
			dialect:       dialect.PostgreSQL,
			sql:           "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name",
			rows:          []string{"information_schema", "pg_catalog", "pg_toast", "pg_temp_3", "public", "sales"},
			excludeSystem: true,
			want:          []string{"public", "sales"},
		},
		{
			name:    "postgres keeps system",
			dialect: dialect.PostgreSQL,
			sql:     "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name",
			rows:    []string{"information_schema", "public"},
			want:    []string{"information_schema", "public"},
		},
		{
			name:          "sqlserver",
			dialect:       dialect.SQLServer,
			sql:           "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name",
			rows:          []string{"INFORMATION_SCHEMA", "db_owner", "dbo", "guest", "sys", "reporting"},
			excludeSystem: true,
			want:          []string{"dbo", "reporting"},
		},
		{
			name:          "oracle",
			dialect:       dialect.Oracle,
			sql:           "SELECT username FROM all_users ORDER BY username",
			rows:          []string{"APP", "SYS", "SYSTEM"},
			excludeSystem: true,
			want:          []string{"APP"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t)
			h, mock := newMockHandle(t, tt.dialect)
			mock.ExpectQuery(tt.sql).WillReturnRows(nameRows("name", tt.rows...))

			got, err := engine.ListSchemas(context.Background(), h, tt.excludeSystem)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListSchemas_Empty(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery("SELECT schema_name FROM information_schema.schemata ORDER BY schema_name").
		WillReturnRows(nameRows("schema_name"))

	got, err := engine.ListSchemas(context.Background(), h, true)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListTables(t *testing.T) {
	t.Run("default schema, tables then views", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		h, mock := newMockHandle(t, dialect.PostgreSQL)
		mock.ExpectQuery(pgTablesSQL).WithArgs("public", "BASE TABLE").
			WillReturnRows(nameRows("table_name", "customers", "orders"))
		mock.ExpectQuery(pgTablesSQL).WithArgs("public", "VIEW").
			WillReturnRows(nameRows("table_name", "order_totals"))

		got, err := engine.ListTables(context.Background(), h, "", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"customers", "orders", "order_totals"}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exclude views", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		h, mock := newMockHandle(t, dialect.PostgreSQL)
		mock.ExpectQuery(pgTablesSQL).WithArgs("sales", "BASE TABLE").
			WillReturnRows(nameRows("table_name", "orders"))

		got, err := engine.ListTables(context.Background(), h, "sales", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql uses current database", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		h, mock := newMockHandle(t, dialect.MySQL)
		const mysqlTables = "SELECT table_name FROM information_schema.tables WHERE (table_schema = ? AND table_type = ?) ORDER BY table_name"
		mock.ExpectQuery("SELECT DATABASE()").WillReturnRows(nameRows("DATABASE()", "shop"))
		mock.ExpectQuery(mysqlTables).WithArgs("shop", "BASE TABLE").
			WillReturnRows(nameRows("table_name", "carts"))

		got, err := engine.ListTables(context.Background(), h, "", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"carts"}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql without selected database", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		h, mock := newMockHandle(t, dialect.MySQL)
		mock.ExpectQuery("SELECT DATABASE()").
			WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow(nil))

		_, err := engine.ListTables(context.Background(), h, "", false)
		assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation))
	})

	t.Run("no tables", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		h, mock := newMockHandle(t, dialect.PostgreSQL)
		mock.ExpectQuery(pgTablesSQL).WithArgs("empty", "BASE TABLE").WillReturnRows(nameRows("table_name"))
		mock.ExpectQuery(pgTablesSQL).WithArgs("empty", "VIEW").WillReturnRows(nameRows("table_name"))

		got, err := engine.ListTables(context.Background(), h, "empty", false)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestDescribeTable(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery(pgColumnsSQL).WithArgs("public", "orders").WillReturnRows(orderColumns())

	desc, err := engine.DescribeTable(context.Background(), h, "orders", "")
	require.NoError(t, err)
	assert.Equal(t, "orders", desc.Table)
	assert.Equal(t, "public", desc.Schema)
	assert.Equal(t, []Column{
		{Name: "id", TypeName: "integer", Nullable: false},
		{Name: "customer", TypeName: "text", Nullable: true},
		{Name: "total", TypeName: "numeric", Nullable: true},
	}, desc.Columns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeTable_Oracle(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.Oracle)
	mock.ExpectQuery("SELECT column_name, data_type, nullable FROM all_tab_columns WHERE (owner = :1 AND table_name = :2) ORDER BY column_id").
		WithArgs("APP", "ORDERS").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "nullable"}).
			AddRow("ID", "NUMBER", "N").
			AddRow("NOTE", "VARCHAR2", "Y"))

	desc, err := engine.DescribeTable(context.Background(), h, "ORDERS", "APP")
	require.NoError(t, err)
	require.Len(t, desc.Columns, 2)
	assert.False(t, desc.Columns[0].Nullable)
	assert.True(t, desc.Columns[1].Nullable)
}

func TestDescribeTable_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery(pgColumnsSQL).WithArgs("public", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	desc, err := engine.DescribeTable(context.Background(), h, "ghost", "public")
	assert.Nil(t, desc)
	require.Error(t, err)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
	assert.Contains(t, err.Error(), "public.ghost")

	_, err = engine.DescribeTable(context.Background(), h, " ", "public")
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindValidation))
}

func TestTableStats(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery(pgColumnsSQL).WithArgs("public", "orders").WillReturnRows(orderColumns())
	mock.ExpectQuery("SELECT COUNT(*) FROM public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4213)))
	mock.ExpectQuery("SELECT pg_total_relation_size($1::regclass), pg_relation_size($2::regclass), pg_indexes_size($3::regclass)").
		WithArgs("public.orders", "public.orders", "public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"total", "table", "index"}).
			AddRow(int64(106496), int64(81920), nil))

	stats, err := engine.TableStats(context.Background(), h, "orders", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4213), stats.RowCount)
	assert.Equal(t, 3, stats.ColumnCount)
	assert.Len(t, stats.Columns, stats.ColumnCount)
	assert.Equal(t, map[string]int64{"total_bytes": 106496, "table_bytes": 81920}, stats.Sizes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableStats_SizeFailure(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.MySQL)
	const mysqlColumns = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE (table_schema = ? AND table_name = ?) ORDER BY ordinal_position"
	mock.ExpectQuery(mysqlColumns).WithArgs("shop", "carts").WillReturnRows(orderColumns())
	mock.ExpectQuery("SELECT COUNT(*) FROM shop.carts").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT data_length + index_length, data_length, index_length FROM information_schema.tables WHERE (table_schema = ? AND table_name = ?)").
		WithArgs("shop", "carts").
		WillReturnError(errors.New("SELECT command denied to user"))

	stats, err := engine.TableStats(context.Background(), h, "carts", "shop")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.RowCount)
	assert.NotNil(t, stats.Sizes)
	assert.Empty(t, stats.Sizes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableStats_GenericHasNoSizes(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.Generic)
	const genericColumns = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE (table_schema = ? AND table_name = ?) ORDER BY ordinal_position"
	mock.ExpectQuery(genericColumns).WithArgs("main", "items").WillReturnRows(orderColumns())
	mock.ExpectQuery("SELECT COUNT(*) FROM main.items").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(7)))

	stats, err := engine.TableStats(context.Background(), h, "items", "main")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.RowCount)
	assert.Empty(t, stats.Sizes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableStats_CountFailure(t *testing.T) {
	engine, _ := newTestEngine(t)
	h, mock := newMockHandle(t, dialect.PostgreSQL)
	mock.ExpectQuery(pgColumnsSQL).WithArgs("public", "orders").WillReturnRows(orderColumns())
	mock.ExpectQuery("SELECT COUNT(*) FROM public.orders").
		WillReturnError(errors.New("canceling statement due to statement timeout"))

	stats, err := engine.TableStats(context.Background(), h, "orders", "public")
	assert.Nil(t, stats)
	assert.True(t, jdbcerrors.IsKind(err, jdbcerrors.KindQueryExecution))
}
