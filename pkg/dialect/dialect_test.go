package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsGeneric(t *testing.T) {
	var d Dialect
	assert.Equal(t, Generic, d)
	assert.Equal(t, "generic", d.String())
	assert.False(t, d.Buildable())
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		dialect Dialect
		name    string
		port    int
		scheme  string
		limit   LimitStyle
	}{
		{PostgreSQL, "postgresql", 5432, "postgresql+pgx", LimitClause},
		{Redshift, "redshift", 5432, "postgresql+pq", LimitClause},
		{MySQL, "mysql", 3306, "mysql+mysql", LimitClause},
		{SQLServer, "sqlserver", 1433, "mssql+sqlserver", TopClause},
		{Oracle, "oracle", 1521, "oracle+godror", FetchFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.dialect.Profile()
			assert.Equal(t, tt.name, tt.dialect.String())
			assert.Equal(t, tt.port, p.DefaultPort)
			assert.Equal(t, tt.scheme, p.Scheme)
			assert.Equal(t, tt.limit, p.Limit)
			assert.True(t, tt.dialect.Buildable())
			assert.NotEmpty(t, p.SSLParam[0])
			assert.True(t, p.DefaultSchema != "" || p.CurrentSchema != "")
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		token string
		want  Dialect
		ok    bool
	}{
		{"postgresql", PostgreSQL, true},
		{"PostgreSQL", PostgreSQL, true},
		{"postgres", PostgreSQL, true},
		{"redshift", Redshift, true},
		{"mariadb", MySQL, true},
		{"microsoft:sqlserver", SQLServer, true},
		{"SQLSERVER", SQLServer, true},
		{"oracle:thin", Oracle, true},
		{"db2", Generic, false},
		{"", Generic, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := Lookup(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromScheme(t *testing.T) {
	d, ok := FromScheme("postgresql+pq", map[string]string{RedshiftFlag: "redshift"})
	assert.True(t, ok)
	assert.Equal(t, Redshift, d)

	d, ok = FromScheme("postgresql+pq", nil)
	assert.True(t, ok)
	assert.Equal(t, PostgreSQL, d)

	for _, want := range All() {
		d, ok := FromScheme(want.Profile().Scheme, want.Profile().SchemeParams)
		assert.True(t, ok, want.String())
		assert.Equal(t, want, d)
	}

	_, ok = FromScheme("sqlite", nil)
	assert.False(t, ok)
}

func TestIsSystemSchema(t *testing.T) {
	tests := []struct {
		dialect Dialect
		schema  string
		want    bool
	}{
		{PostgreSQL, "pg_catalog", true},
		{PostgreSQL, "pg_toast", true},
		{PostgreSQL, "information_schema", true},
		{PostgreSQL, "public", false},
		{PostgreSQL, "sales", false},
		{Redshift, "pg_internal", true},
		{SQLServer, "sys", true},
		{SQLServer, "INFORMATION_SCHEMA", true},
		{SQLServer, "db_owner", true},
		{SQLServer, "guest", true},
		{SQLServer, "dbo", false},
		{MySQL, "performance_schema", true},
		{MySQL, "shop", false},
		{Oracle, "SYS", true},
		{Oracle, "APEX_230100", true},
		{Oracle, "HR", false},
		{Generic, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String()+"/"+tt.schema, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsSystemSchema(tt.schema))
		})
	}
}
