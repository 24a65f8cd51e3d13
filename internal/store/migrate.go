package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/wildmix/scribe/internal/scribeerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every embedded *.sql file in lexical order, each
// inside its own transaction, tracking applied filenames in a
// schema_migrations table so re-running is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	) STRICT`); err != nil {
		return scribeerr.Wrap(scribeerr.KindDB, "create schema_migrations table", err)
	}

	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return scribeerr.Wrap(scribeerr.KindIO, "list embedded migrations", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&exists); err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, "check applied migrations", err)
		}
		if exists > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return scribeerr.Wrap(scribeerr.KindIO, fmt.Sprintf("read migration %s", name), err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, "begin migration transaction", err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return scribeerr.Wrap(scribeerr.KindDB, fmt.Sprintf("apply migration %s", name), err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name, applied_at) VALUES (?, unixepoch())`, name); err != nil {
			_ = tx.Rollback()
			return scribeerr.Wrap(scribeerr.KindDB, fmt.Sprintf("record migration %s", name), err)
		}
		if err := tx.Commit(); err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, fmt.Sprintf("commit migration %s", name), err)
		}
	}
	return nil
}
