package query

import (
	"strings"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Spec describes a structured table read.
type Spec struct {
	// Table is the table name, passed to the server verbatim
	Table string `json:"table" yaml:"table"`
	// Schema qualifies Table when set
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	// Columns is the projection in output order; empty means *
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	// Filter is a trusted, dialect-native predicate appended as WHERE <Filter>
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`
	// BatchSize is rows per Arrow record; 0 reads in one pass
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	// Limit caps the row count; 0 means no cap
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Validate checks the spec's invariants.
func (s *Spec) Validate() error {
	if s == nil {
		return jdbcerrors.New(jdbcerrors.KindValidation, "query spec is required")
	}
	if strings.TrimSpace(s.Table) == "" {
		return jdbcerrors.New(jdbcerrors.KindValidation, "table is required")
	}
	if s.BatchSize < 0 {
		return jdbcerrors.New(jdbcerrors.KindValidation, "batch size cannot be negative").
			WithDetail("batch_size", s.BatchSize)
	}
	if s.Limit < 0 {
		return jdbcerrors.New(jdbcerrors.KindValidation, "limit cannot be negative").
			WithDetail("limit", s.Limit)
	}
	for i, col := range s.Columns {
		if strings.TrimSpace(col) == "" {
			return jdbcerrors.New(jdbcerrors.KindValidation, "column name cannot be empty").
				WithDetail("index", i)
		}
	}
	return nil
}

// QualifiedName returns schema.table, or table when no schema is set.
func (s *Spec) QualifiedName() string {
	return qualify(s.Schema, s.Table)
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}
