// Package testutil provides shared test infrastructure for CDC integration
// tests that require a real upstream PostgreSQL instance.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    defer tc.Terminate()
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wildmix/scribe/internal/store"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance exposing a
// logical-replication-capable server, for exercising internal/cdc's TRIGGER
// and LOGICAL modes against a real upstream.
type PostgresContainer struct {
	Container testcontainers.Container
	ConnString string
}

// MustStartPostgres starts a PostgreSQL 16 container with wal_level=logical,
// calling os.Exit(1) on failure (suitable for TestMain).
func MustStartPostgres() *PostgresContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "scribe",
			"POSTGRES_PASSWORD": "scribe",
			"POSTGRES_DB":       "scribe_upstream",
		},
		Cmd: []string{"postgres", "-c", "wal_level=logical", "-c", "max_replication_slots=4", "-c", "max_wal_senders=4"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	connStr := fmt.Sprintf("postgres://scribe:scribe@%s:%s/scribe_upstream?sslmode=disable", host, port.Port())
	return &PostgresContainer{Container: container, ConnString: connStr}
}

// Terminate stops and removes the container.
func (tc *PostgresContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// NewTestStore opens a fresh, migrated commit store under a temporary
// directory, for tests that need a real internal/store.Store without
// standing up a whole repository via the CLI.
func NewTestStore(ctx context.Context, dir string) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(dir, "scribe.db"), TestLogger())
}

// TestLogger returns a logger configured for quiet test output (warnings
// and errors only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
