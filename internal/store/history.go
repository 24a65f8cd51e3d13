package store

import (
	"context"
	"errors"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/scribeerr"
)

// GetHistory walks the parent chain starting at head, returning up to limit
// commits in newest-first order. limit <= 0 means unbounded. It stops early
// (without error) at the first commit whose ParentHash is the zero hash.
func (s *Store) GetHistory(ctx context.Context, head digest.Hash, limit int) ([]*envelope.Envelope, error) {
	var out []*envelope.Envelope
	cur := head
	for !cur.IsZero() {
		if limit > 0 && len(out) >= limit {
			break
		}
		env, err := s.LoadCommit(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			return out, scribeerr.New(scribeerr.KindRepoCorrupt, "history references a missing commit: "+cur.String())
		}
		if err != nil {
			return out, err
		}
		out = append(out, env)
		cur = env.ParentHash
	}
	return out, nil
}

// FindByAuthor returns commits whose author id matches id, most recent
// first.
func (s *Store) FindByAuthor(ctx context.Context, id string) ([]*envelope.Envelope, error) {
	return s.queryByColumn(ctx, "author_id", id)
}

// FindByProcess returns commits whose process name matches name, most
// recent first.
func (s *Store) FindByProcess(ctx context.Context, name string) ([]*envelope.Envelope, error) {
	return s.queryByColumn(ctx, "process_name", name)
}

func (s *Store) queryByColumn(ctx context.Context, column, value string) ([]*envelope.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM commits WHERE `+column+` = ? ORDER BY timestamp DESC`, value)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "query commits by "+column, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindDB, "scan commit row", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "iterate commit rows", err)
	}

	var out []*envelope.Envelope
	for _, h := range hashes {
		hash, err := digest.ParseHash(h)
		if err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindDB, "parse stored hash", err)
		}
		env, err := s.LoadCommit(ctx, hash)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// VerifyChain walks the history from head to the root, verifying every
// envelope's own content address (envelope.Verify) and that each
// ParentHash actually resolves to a stored commit. It returns the first
// error encountered, tagged KindRepoCorrupt for a broken link or
// KindHashMismatch for a tampered envelope.
func (s *Store) VerifyChain(ctx context.Context, head digest.Hash) error {
	cur := head
	for !cur.IsZero() {
		env, err := s.LoadCommit(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			return scribeerr.New(scribeerr.KindRepoCorrupt, "chain references a missing commit: "+cur.String())
		}
		if err != nil {
			return err
		}
		if err := envelope.Verify(env); err != nil {
			return scribeerr.Wrap(scribeerr.KindHashMismatch, "commit failed verification: "+cur.String(), err)
		}
		cur = env.ParentHash
	}
	return nil
}
