package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/scribeerr"
)

// StoreCommit persists env's envelope and all of its changes in a single
// transaction. It does not touch any ref — advancing HEAD is the caller's
// separate responsibility via SetRef, per the two-phase durability model
// described in the package doc.
//
// env must already be finalized (env.CommitID non-zero); StoreCommit does
// not compute or verify the commit id, only persists it.
//
// No copy of the canonical envelope bytes is stored alongside the row: the
// commits/changes columns ARE the envelope's storage (SPEC_FULL.md §4.4), so
// that tampering with any one of them — not just a denormalized blob — is
// detectable by LoadCommit + envelope.Verify.
func (s *Store) StoreCommit(ctx context.Context, env *envelope.Envelope) error {
	if env.CommitID.IsZero() {
		return scribeerr.New(scribeerr.KindInvalidArg, "cannot store an unfinalized envelope")
	}

	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, "begin store-commit transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `INSERT INTO commits
			(hash, parent_hash, tree_hash, author_id, author_role, author_email,
			 process_name, process_version, process_params, process_source,
			 timestamp, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			env.CommitID.String(), hashStringOrEmpty(env.ParentHash), env.TreeHash.String(),
			env.Author.ID, env.Author.Role, env.Author.Email,
			env.Process.Name, env.Process.Version, env.Process.Params, env.Process.Source,
			env.Timestamp.Unix(), env.Message, time.Now().Unix())
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return scribeerr.Wrap(scribeerr.KindDB, "insert commit", err)
		}

		for i, c := range env.Changes {
			_, err = tx.ExecContext(ctx, `INSERT INTO changes
				(commit_hash, seq, table_name, operation, primary_key, before_hash, after_hash)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				env.CommitID.String(), i, c.Table, string(c.Operation), c.PrimaryKey,
				hashStringOrEmpty(c.BeforeHash), hashStringOrEmpty(c.AfterHash))
			if err != nil {
				return scribeerr.Wrap(scribeerr.KindDB, "insert change", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return scribeerr.Wrap(scribeerr.KindDB, "commit store-commit transaction", err)
		}
		return nil
	})
}

// LoadCommit reads back a commit by hash, re-materializing its envelope
// entirely from the normalized commits/changes columns rather than from any
// self-contained serialized copy. This is what makes the header columns
// authoritative: corrupting any one of them (e.g. `message`) changes the
// CommitID envelope.Verify recomputes from the loaded fields, so corruption
// is caught instead of silently passing against an untouched blob.
func (s *Store) LoadCommit(ctx context.Context, hash digest.Hash) (*envelope.Envelope, error) {
	row := s.db.QueryRowContext(ctx, `SELECT parent_hash, tree_hash, author_id, author_role,
		author_email, process_name, process_version, process_params, process_source,
		timestamp, message FROM commits WHERE hash = ?`, hash.String())

	var (
		parentHash, treeHash                                string
		authorID, authorRole, authorEmail                   string
		processName, processVersion, processParams, procSrc string
		ts                                                   int64
		message                                              string
	)
	err := row.Scan(&parentHash, &treeHash, &authorID, &authorRole, &authorEmail,
		&processName, &processVersion, &processParams, &procSrc, &ts, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "load commit", err)
	}

	parent, err := parseHashOrZero(parentHash)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "parse stored parent_hash", err)
	}
	tree, err := parseHashOrZero(treeHash)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "parse stored tree_hash", err)
	}

	changes, err := s.loadChanges(ctx, hash)
	if err != nil {
		return nil, err
	}

	env := &envelope.Envelope{
		CommitID:   hash,
		ParentHash: parent,
		TreeHash:   tree,
		Author:     envelope.Author{ID: authorID, Role: authorRole, Email: authorEmail},
		Process: envelope.Process{
			Name: processName, Version: processVersion, Params: processParams, Source: procSrc,
		},
		Timestamp: time.Unix(ts, 0).UTC(),
		Message:   message,
		Changes:   changes,
	}
	return env, nil
}

// loadChanges reads back the changes belonging to commit hash, in the
// original sequence order recorded at StoreCommit time.
func (s *Store) loadChanges(ctx context.Context, hash digest.Hash) ([]envelope.Change, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name, operation, primary_key, before_hash, after_hash
		FROM changes WHERE commit_hash = ? ORDER BY seq ASC`, hash.String())
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "load changes", err)
	}
	defer rows.Close()

	var changes []envelope.Change
	for rows.Next() {
		var table, operation, pk, before, after string
		if err := rows.Scan(&table, &operation, &pk, &before, &after); err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindDB, "scan change row", err)
		}
		beforeHash, err := parseHashOrZero(before)
		if err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindDB, "parse stored before_hash", err)
		}
		afterHash, err := parseHashOrZero(after)
		if err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindDB, "parse stored after_hash", err)
		}
		changes = append(changes, envelope.Change{
			Table:      table,
			Operation:  envelope.Operation(operation),
			PrimaryKey: pk,
			BeforeHash: beforeHash,
			AfterHash:  afterHash,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "iterate change rows", err)
	}
	return changes, nil
}

// CommitExists reports whether hash is already present, without paying for
// a full envelope deserialization.
func (s *Store) CommitExists(ctx context.Context, hash digest.Hash) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE hash = ?`, hash.String()).Scan(&n)
	if err != nil {
		return false, scribeerr.Wrap(scribeerr.KindDB, "check commit existence", err)
	}
	return n > 0, nil
}

// CommitCount returns the total number of stored commits.
func (s *Store) CommitCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, scribeerr.Wrap(scribeerr.KindDB, "count commits", err)
	}
	return n, nil
}

func hashStringOrEmpty(h digest.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}

// parseHashOrZero parses s as a digest.Hash, treating an empty string as the
// zero hash rather than a parse error (parent_hash/before_hash/after_hash
// are all stored as "" when absent).
func parseHashOrZero(s string) (digest.Hash, error) {
	if s == "" {
		return digest.Zero, nil
	}
	return digest.ParseHash(s)
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps the sqlite3 result code in its error
	// message; there is no typed sentinel to errors.As against, so match
	// the constraint-violation text the driver produces.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
