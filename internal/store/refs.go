package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/scribeerr"
)

// HeadRef is the conventional name of the ref tracking the tip of history.
const HeadRef = "HEAD"

// GetRef returns the commit hash a named ref currently points to.
func (s *Store) GetRef(ctx context.Context, name string) (digest.Hash, error) {
	var target string
	err := s.db.QueryRowContext(ctx, `SELECT target FROM refs WHERE name = ?`, name).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.Zero, ErrNotFound
	}
	if err != nil {
		return digest.Zero, scribeerr.Wrap(scribeerr.KindDB, "get ref "+name, err)
	}
	return digest.ParseHash(target)
}

// SetRef points name at target. It is a transaction distinct from
// StoreCommit: callers must StoreCommit first so the ref never points at a
// commit the store doesn't have.
func (s *Store) SetRef(ctx context.Context, name string, target digest.Hash) error {
	exists, err := s.CommitExists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return scribeerr.New(scribeerr.KindInvalidArg, "cannot point ref "+name+" at an unstored commit "+target.String())
	}

	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO refs(name, target, updated_at) VALUES (?, ?, unixepoch())
			ON CONFLICT(name) DO UPDATE SET target = excluded.target, updated_at = excluded.updated_at`,
			name, target.String())
		if err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, "set ref "+name, err)
		}
		return nil
	})
}
