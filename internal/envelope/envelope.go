package envelope

import (
	"fmt"
	"time"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/merkle"
)

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// computeTreeHash builds the Merkle root over the non-zero before/after
// hashes of every change, in change order, with before preceding after
// within a single change. Each hash is used verbatim as a leaf digest (via
// merkle.Builder.AddHash), not re-hashed through HashLeaf: the before/after
// hashes are already content digests computed by the CDC source, and the
// tree's job is only to fold them, not to re-derive them.
func computeTreeHash(changes []Change) digest.Hash {
	b := merkle.NewBuilder()
	for _, c := range changes {
		if !c.BeforeHash.IsZero() {
			b.AddHash(c.BeforeHash)
		}
		if !c.AfterHash.IsZero() {
			b.AddHash(c.AfterHash)
		}
	}
	return b.Root()
}

// Finalize computes TreeHash (if not already set) and CommitID, making e
// content-addressed. It is idempotent: calling it twice on an unmodified
// envelope yields the same CommitID both times.
//
// CommitID is the plain SHA-256 (digest.HashBytes, no leaf/node domain
// separation) of the envelope's canonical serialization with CommitID
// itself cleared — the commit's own identity can never be part of its own
// pre-image.
func Finalize(e *Envelope) error {
	if e.TreeHash.IsZero() {
		e.TreeHash = computeTreeHash(e.Changes)
	}

	saved := e.CommitID
	e.CommitID = digest.Zero
	data, err := MarshalCanonical(e)
	if err != nil {
		e.CommitID = saved
		return fmt.Errorf("envelope: finalize: %w", err)
	}
	e.CommitID = digest.HashBytes(data)
	return nil
}

// Verify recomputes TreeHash and CommitID from e's current fields and
// reports whether they match the values already stored on e. It does not
// mutate e.
func Verify(e *Envelope) error {
	if want := computeTreeHash(e.Changes); want != e.TreeHash {
		return fmt.Errorf("envelope: tree_hash mismatch: stored %s, recomputed %s", e.TreeHash, want)
	}

	probe := *e
	probe.Changes = append([]Change(nil), e.Changes...)
	want := probe.CommitID
	probe.CommitID = digest.Zero
	data, err := MarshalCanonical(&probe)
	if err != nil {
		return fmt.Errorf("envelope: verify: %w", err)
	}
	got := digest.HashBytes(data)
	if got != want {
		return fmt.Errorf("envelope: commit_id mismatch: stored %s, recomputed %s", want, got)
	}
	return nil
}
