package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// IntegrationTest skips the calling test in short mode.
func IntegrationTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// TestEnvironment is a temp directory and a bounded context, torn down when
// the test ends. CLI tests use it for config and .env files.
type TestEnvironment struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
}

// NewTestEnvironment creates a new test environment
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	env := &TestEnvironment{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		tempDir: t.TempDir(),
	}
	t.Cleanup(cancel)
	return env
}

// Context returns the test context
func (e *TestEnvironment) Context() context.Context {
	return e.ctx
}

// TempDir returns the temporary directory
func (e *TestEnvironment) TempDir() string {
	return e.tempDir
}

// WriteFile writes content under the temp directory and returns its path.
func (e *TestEnvironment) WriteFile(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.tempDir, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Setenv sets an environment variable for the rest of the test.
func (e *TestEnvironment) Setenv(key, value string) {
	e.t.Helper()
	e.t.Setenv(key, value)
}
