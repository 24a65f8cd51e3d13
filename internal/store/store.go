// Package store implements the embedded commit store: a SQLite database
// (via modernc.org/sqlite, pure Go, no cgo) holding the commits table,
// their changes, named refs (HEAD and friends), and an optional content
// object index.
//
// Commit insertion and HEAD advancement are deliberately two separate
// transactions (see StoreCommit and SetRef): a commit can exist in the
// store without being reachable from any ref, but a ref can never point at
// a commit that isn't durably stored. That ordering is what makes replay
// after a crash between the two writes safe — the caller simply retries
// SetRef, and a retried StoreCommit is a harmless no-op via
// ErrAlreadyExists.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/wildmix/scribe/internal/scribeerr"
)

// ErrAlreadyExists is returned by StoreCommit when a commit with the same
// hash is already present. This makes commit submission idempotent:
// replaying an already-applied change is a no-op, not a failure.
var ErrAlreadyExists = errors.New("store: commit already exists")

// ErrNotFound is returned when a lookup by hash or ref name finds nothing.
// FindByAuthor and FindByProcess do not return it; they return an empty
// result instead.
var ErrNotFound = errors.New("store: not found")

// Store is a handle to one .scribe/scribe.db database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and runs
// pending migrations. The returned Store uses a single connection for all
// reads and writes, matching SQLite's single-writer model.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer at a time.

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, scribeerr.Wrap(scribeerr.KindDB, "ping sqlite database", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers (tests, the objects blob
// store) that need direct access beyond Store's API.
func (s *Store) DB() *sql.DB {
	return s.db
}
