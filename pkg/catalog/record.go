package catalog

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbc"
	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Connection property keys used by Glue JDBC connections.
const (
	PropertyJDBCURL    = "JDBC_CONNECTION_URL"
	PropertyUsername   = "USERNAME"
	PropertyPassword   = "PASSWORD"
	PropertyEnforceSSL = "JDBC_ENFORCE_SSL"
)

// Record is a catalog connection as Glue returns it.
type Record struct {
	Name           string            `json:"name"`
	ConnectionType string            `json:"connection_type"`
	Description    string            `json:"description,omitempty"`
	Properties     map[string]string `json:"properties"`
	LastUpdated    *time.Time        `json:"last_updated,omitempty"`
}

func recordFrom(conn *types.Connection) *Record {
	props := make(map[string]string, len(conn.ConnectionProperties))
	for k, v := range conn.ConnectionProperties {
		props[k] = v
	}
	return &Record{
		Name:           aws.ToString(conn.Name),
		ConnectionType: string(conn.ConnectionType),
		Description:    aws.ToString(conn.Description),
		Properties:     props,
		LastUpdated:    conn.LastUpdatedTime,
	}
}

// Redacted returns a copy with the password property masked.
func (r *Record) Redacted() *Record {
	c := *r
	c.Properties = make(map[string]string, len(r.Properties))
	for k, v := range r.Properties {
		if k == PropertyPassword && v != "" {
			v = "****"
		}
		c.Properties[k] = v
	}
	if pw := r.Properties[PropertyPassword]; pw != "" {
		if raw, ok := c.Properties[PropertyJDBCURL]; ok {
			desc := &jdbc.Descriptor{JDBCURL: raw, Password: pw}
			c.Properties[PropertyJDBCURL] = desc.Redacted().JDBCURL
		}
	}
	return &c
}

// Descriptor parses the record's JDBC URL and overlays its credentials.
//
// A missing URL, or one that does not start with jdbc:, fails with
// KindMalformedCatalogRecord; URL parse failures keep their own kind.
func (r *Record) Descriptor() (*jdbc.Descriptor, error) {
	raw := strings.TrimSpace(r.Properties[PropertyJDBCURL])
	if raw == "" {
		return nil, jdbcerrors.Newf(jdbcerrors.KindMalformedCatalogRecord,
			"connection %q has no %s", r.Name, PropertyJDBCURL).
			WithDetail("connection", r.Name).
			WithDetail("connection_type", r.ConnectionType)
	}
	if !strings.HasPrefix(strings.ToLower(raw), "jdbc:") {
		return nil, jdbcerrors.Newf(jdbcerrors.KindMalformedCatalogRecord,
			"connection %q has a non-JDBC URL", r.Name).
			WithDetail("connection", r.Name).
			WithDetail("connection_type", r.ConnectionType)
	}

	parsed, err := jdbc.Parse(raw)
	if err != nil {
		return nil, jdbcerrors.Wrap(err, jdbcerrors.KindOf(err), "connection "+r.Name).
			WithDetail("connection", r.Name)
	}

	desc := jdbc.Overlay(parsed, r.Properties[PropertyUsername], r.Properties[PropertyPassword])
	if strings.EqualFold(r.Properties[PropertyEnforceSSL], "true") {
		desc = jdbc.EnforceSSL(desc)
	}
	desc.ConnectionName = r.Name
	return desc, nil
}
