// Package testutil provides helpers shared by gluejdbc tests: loggers,
// contexts, a sqlmock-backed opener and an in-memory Glue catalog.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// MockDB returns a sqlmock database that matches queries by exact text and
// watches pings. Expectations are checked when the test ends.
func MockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// OpenCall records one call made through an Opener.
type OpenCall struct {
	Driver string
	DSN    string
}

// Opener returns an open function, assignable to connector.OpenFunc, that
// hands out db and records what the factory asked for.
func Opener(db *sql.DB, calls *[]OpenCall) func(driverName, dataSourceName string) (*sql.DB, error) {
	return func(driverName, dataSourceName string) (*sql.DB, error) {
		if calls != nil {
			*calls = append(*calls, OpenCall{Driver: driverName, DSN: dataSourceName})
		}
		return db, nil
	}
}
