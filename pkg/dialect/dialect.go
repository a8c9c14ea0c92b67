// Package dialect holds the closed set of database dialects gluejdbc knows
// and, per dialect, everything the parser, builder, factory and read engine
// need to dispatch on: default port, connectivity scheme, placeholder style,
// row-cap syntax, system schemas and catalog queries.
package dialect

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect identifies a database family.
type Dialect int

const (
	// Generic is the zero value: a descriptor whose type was never set.
	// It has no connectivity mapping.
	Generic Dialect = iota
	PostgreSQL
	MySQL
	Redshift
	SQLServer
	Oracle
)

// LimitStyle is the row-cap syntax a dialect understands.
type LimitStyle int

const (
	// LimitClause appends LIMIT n
	LimitClause LimitStyle = iota
	// TopClause prefixes the projection with TOP (n)
	TopClause
	// FetchFirst appends FETCH FIRST n ROWS ONLY
	FetchFirst
)

// Profile is the per-dialect dispatch table.
type Profile struct {
	Name        string
	DefaultPort int
	// Scheme is the connectivity-URL scheme; empty when the dialect cannot be built
	Scheme string
	// SchemeParams are fixed query parameters added to every connectivity URL
	SchemeParams map[string]string
	// SSLParam is the key/value added when the catalog enforces SSL
	SSLParam      [2]string
	Placeholder   sq.PlaceholderFormat
	Limit         LimitStyle
	DefaultSchema string
	// CurrentSchema is an expression yielding the session's schema when
	// DefaultSchema is empty
	CurrentSchema string
	SystemSchemas []string
	// SystemPrefixes are schema name prefixes treated as system schemas
	SystemPrefixes []string
}

// RedshiftFlag marks a postgresql+pq connectivity URL as Redshift.
const RedshiftFlag = "dialect"

var profiles = map[Dialect]*Profile{
	Generic: {
		Name:        "generic",
		Placeholder: sq.Question,
		Limit:       LimitClause,
	},
	PostgreSQL: {
		Name:          "postgresql",
		DefaultPort:   5432,
		Scheme:        "postgresql+pgx",
		SSLParam:      [2]string{"sslmode", "require"},
		Placeholder:   sq.Dollar,
		Limit:         LimitClause,
		DefaultSchema: "public",
		SystemSchemas: []string{"information_schema"},
		SystemPrefixes: []string{
			"pg_",
		},
	},
	Redshift: {
		Name:           "redshift",
		DefaultPort:    5432,
		Scheme:         "postgresql+pq",
		SchemeParams:   map[string]string{RedshiftFlag: "redshift"},
		SSLParam:       [2]string{"sslmode", "require"},
		Placeholder:    sq.Dollar,
		Limit:          LimitClause,
		DefaultSchema:  "public",
		SystemSchemas:  []string{"information_schema"},
		SystemPrefixes: []string{"pg_"},
	},
	MySQL: {
		Name:          "mysql",
		DefaultPort:   3306,
		Scheme:        "mysql+mysql",
		SSLParam:      [2]string{"tls", "true"},
		Placeholder:   sq.Question,
		Limit:         LimitClause,
		CurrentSchema: "DATABASE()",
		SystemSchemas: []string{"information_schema", "mysql", "performance_schema", "sys"},
	},
	SQLServer: {
		Name:          "sqlserver",
		DefaultPort:   1433,
		Scheme:        "mssql+sqlserver",
		SSLParam:      [2]string{"encrypt", "true"},
		Placeholder:   sq.AtP,
		Limit:         TopClause,
		DefaultSchema: "dbo",
		SystemSchemas: []string{"sys", "INFORMATION_SCHEMA", "guest"},
		SystemPrefixes: []string{
			"db_",
		},
	},
	Oracle: {
		Name:          "oracle",
		DefaultPort:   1521,
		Scheme:        "oracle+godror",
		SSLParam:      [2]string{"ssl", "true"},
		Placeholder:   sq.Colon,
		Limit:         FetchFirst,
		CurrentSchema: "SYS_CONTEXT('USERENV','CURRENT_SCHEMA')",
		SystemSchemas: []string{
			"SYS", "SYSTEM", "OUTLN", "DBSNMP", "XDB", "CTXSYS", "MDSYS", "ORDSYS",
			"ORDDATA", "WMSYS", "APPQOSSYS", "GSMADMIN_INTERNAL", "LBACSYS", "OJVMSYS",
			"DVSYS", "AUDSYS", "OLAPSYS", "ANONYMOUS", "XS$NULL",
		},
		SystemPrefixes: []string{"APEX_", "FLOWS_"},
	},
}

// All lists the dialects with a connectivity mapping, in declaration order.
func All() []Dialect {
	return []Dialect{PostgreSQL, MySQL, Redshift, SQLServer, Oracle}
}

// Profile returns the dispatch table for d. Unknown values get Generic's.
func (d Dialect) Profile() *Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[Generic]
}

// String returns the lower-case dialect name.
func (d Dialect) String() string {
	return d.Profile().Name
}

// Buildable reports whether d has a connectivity scheme.
func (d Dialect) Buildable() bool {
	return d.Profile().Scheme != ""
}

// MarshalText implements encoding.TextMarshaler.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// IsSystemSchema reports whether schema belongs to the database itself.
// Comparison is case-insensitive.
func (d Dialect) IsSystemSchema(schema string) bool {
	p := d.Profile()
	for _, s := range p.SystemSchemas {
		if strings.EqualFold(s, schema) {
			return true
		}
	}
	upper := strings.ToUpper(schema)
	for _, prefix := range p.SystemPrefixes {
		if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// aliases maps lower-case JDBC subprotocol tokens to dialects.
var aliases = map[string]Dialect{
	"postgresql":          PostgreSQL,
	"postgres":            PostgreSQL,
	"pgsql":               PostgreSQL,
	"redshift":            Redshift,
	"mysql":               MySQL,
	"mariadb":             MySQL,
	"sqlserver":           SQLServer,
	"microsoft:sqlserver": SQLServer,
	"mssql":               SQLServer,
	"oracle":              Oracle,
	"oracle:thin":         Oracle,
}

// Lookup resolves a JDBC dialect token, case-insensitively.
func Lookup(token string) (Dialect, bool) {
	d, ok := aliases[strings.ToLower(token)]
	return d, ok
}

// FromScheme resolves a connectivity-URL scheme produced by Profile.Scheme.
// The Redshift flag distinguishes redshift from a plain lib/pq postgresql URL.
func FromScheme(scheme string, params map[string]string) (Dialect, bool) {
	for _, d := range All() {
		p := d.Profile()
		if p.Scheme != scheme {
			continue
		}
		if d == Redshift && params[RedshiftFlag] != "redshift" {
			continue
		}
		return d, true
	}
	if scheme == "postgresql+pq" {
		return PostgreSQL, true
	}
	return Generic, false
}
