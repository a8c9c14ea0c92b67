// Package gluejdbc turns connections registered in the AWS Glue Data Catalog
// into open database handles and reads relational tables as Apache Arrow data.
//
// A Glue JDBC connection stores a JDBC URL and credentials. gluejdbc parses
// that URL, maps it to a driver connectivity URL, opens a database/sql handle
// through the matching Go driver, and runs metadata and read queries whose
// results come back as Arrow records.
//
// # Architecture
//
// The library is a stack of small packages, each usable on its own:
//
//	pkg/jdbc        - JDBC URL parser, connectivity URL builder and decoder
//	pkg/dialect     - per-database dispatch: ports, schemes, placeholders, system schemas
//	pkg/catalog     - Glue Data Catalog resolver (GetConnection, GetConnections)
//	pkg/connector   - driver selection, DSN rendering, pooled handles
//	pkg/query       - metadata queries and the Arrow read engine
//	pkg/toolkit     - the facade composing all of the above
//	pkg/jdbcerrors  - the error taxonomy shared by every package
//	pkg/config      - YAML configuration with ${VAR} substitution
//	pkg/logger      - structured logging
//	pkg/metrics     - Prometheus collectors
//
// # Quick Start
//
// Read a table from a catalog connection:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/gluejdbc/pkg/config"
//	    "github.com/ajitpratap0/gluejdbc/pkg/query"
//	    "github.com/ajitpratap0/gluejdbc/pkg/toolkit"
//	)
//
//	cfg := config.Default()
//	cfg.Catalog.Region = "eu-west-1"
//
//	tk, err := toolkit.New(cfg)
//	if err != nil {
//	    return err
//	}
//	h, err := tk.ConnectByName(ctx, "sales-db")
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	it, err := tk.ReadBatches(ctx, h, &query.Spec{
//	    Table:     "orders",
//	    Schema:    "sales",
//	    Filter:    "status = 'paid'",
//	    BatchSize: 5000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next() {
//	    process(it.Batch())
//	}
//	return it.Err()
//
// # Databases
//
// Supported dialects and their drivers:
//   - PostgreSQL (jackc/pgx)
//   - Amazon Redshift (lib/pq)
//   - MySQL and MariaDB (go-sql-driver/mysql)
//   - Microsoft SQL Server (microsoft/go-mssqldb)
//   - Oracle (godror)
//
// # Errors
//
// Every failure is a *jdbcerrors.Error carrying a Kind:
//
//	if jdbcerrors.IsKind(err, jdbcerrors.KindConnectionNotFound) {
//	    // the catalog has no such connection
//	}
//
// Only KindThrottling is retryable. The toolkit surfaces it by default;
// setting reliability.throttle_retries opts into exponential backoff.
//
// # Command Line
//
// cmd/gluejdbc exposes the same operations:
//
//	gluejdbc connections list --region eu-west-1
//	gluejdbc url parse 'jdbc:postgresql://db.internal:5432/sales'
//	gluejdbc tables -n sales-db -s sales
//	gluejdbc read orders -n sales-db -s sales -f "status = 'paid'" -o arrow > orders.arrows
package gluejdbc
