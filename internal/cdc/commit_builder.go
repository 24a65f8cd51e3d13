package cdc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/scribeerr"
	"github.com/wildmix/scribe/internal/store"
)

// CommitBuilder turns a batch of observed Changes into a single finalized
// commit, stores it, and advances HEAD — the sequence described in
// SPEC_FULL.md §4.5. Submitting the same batch twice (e.g. after a crash
// between StoreCommit and SetRef) is safe: StoreCommit's ErrAlreadyExists
// is treated as success, and SetRef is naturally idempotent.
type CommitBuilder struct {
	st               *store.Store
	authorID         string
	authorRole       string
	processNameFixed string
	processSource    string
	instanceID       string
}

// NewCommitBuilder returns a CommitBuilder that attributes every commit it
// applies to authorID/authorRole. If processName is non-empty, it is used
// as every commit's Process.Name; otherwise Process.Name is derived per
// batch from the observed transaction id, falling back to "scribe-watch".
//
// Each CommitBuilder is stamped with a random instance id (process.params)
// so commits from one running watch process, across however many poll
// cycles it lives for, can be told apart from a restarted instance of the
// same process name when a query spans process restarts.
//
// authorID/authorRole fall back to "service:scribe-watch"/"automated" when
// left empty, mirroring the per-batch fallback processName applies to the
// process name.
func NewCommitBuilder(st *store.Store, authorID, authorRole, processName, processSource string) *CommitBuilder {
	if authorID == "" {
		authorID = "service:scribe-watch"
	}
	if authorRole == "" {
		authorRole = "automated"
	}
	return &CommitBuilder{
		st:               st,
		authorID:         authorID,
		authorRole:       authorRole,
		processNameFixed: processName,
		processSource:    processSource,
		instanceID:       uuid.NewString(),
	}
}

// Apply builds an envelope from changes, finalizes it, stores it, and
// advances HEAD to point at it. It returns the finalized envelope whether
// or not it was newly stored.
func (b *CommitBuilder) Apply(ctx context.Context, changes []Change, message string) (*envelope.Envelope, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	parent, err := b.st.GetRef(ctx, store.HeadRef)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "read current HEAD", err)
	}

	builder := envelope.New().
		SetAuthor(b.authorID).
		SetAuthorRole(b.authorRole).
		SetProcess(b.processName(changes)).
		SetProcessParams(b.instanceID).
		SetProcessSource(b.processSource).
		SetParent(parent).
		SetMessage(message)

	for _, c := range changes {
		builder.AddChange(envelope.Change{
			Table:      c.Table,
			Operation:  c.Operation,
			PrimaryKey: c.PrimaryKey,
			BeforeHash: c.BeforeHash,
			AfterHash:  c.AfterHash,
		})
	}

	env := builder.Build()
	if err := envelope.Finalize(env); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindCrypto, "finalize commit envelope", err)
	}

	if err := b.st.StoreCommit(ctx, env); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, err
	}
	if err := b.st.SetRef(ctx, store.HeadRef, env.CommitID); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindDB, "advance HEAD", err)
	}
	return env, nil
}

// processName returns the configured fixed process name, or derives one
// from the upstream transaction id of the batch per SPEC_FULL.md §4.5's
// "pg_txid:<xid>" fallback.
func (b *CommitBuilder) processName(changes []Change) string {
	if b.processNameFixed != "" {
		return b.processNameFixed
	}
	for _, c := range changes {
		if c.TxID != "" {
			return fmt.Sprintf("pg_txid:%s", c.TxID)
		}
	}
	return "scribe-watch"
}
