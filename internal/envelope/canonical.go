package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/wildmix/scribe/internal/digest"
)

// Canonicalisation profile ("canon/v1"): a compact JSON encoding with a
// fixed field order and omission of zero-valued fields. There is no
// indentation, no space after ':' or ',', and no trailing newline — the
// exact byte sequence encoding/json's default Marshal produces for a struct
// whose field order IS the wire order. This is deliberately simpler to
// reproduce byte-for-byte than a pretty-printer's whitespace rules.
//
// Field order is fixed by the struct declaration below and must never
// change; reordering fields changes every CommitID in existence.
type canonicalEnvelope struct {
	CommitID  string            `json:"commit_id,omitempty"`
	ParentID  string            `json:"parent_id,omitempty"`
	TreeHash  string            `json:"tree_hash,omitempty"`
	Author    *canonicalAuthor  `json:"author,omitempty"`
	Process   *canonicalProcess `json:"process,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Changes   []canonicalChange `json:"changes,omitempty"`
}

type canonicalAuthor struct {
	ID    string `json:"id"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

type canonicalProcess struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Params  string `json:"params,omitempty"`
	Source  string `json:"source,omitempty"`
}

type canonicalChange struct {
	Table      string `json:"table"`
	Operation  string `json:"operation"`
	PrimaryKey string `json:"pk,omitempty"`
	BeforeHash string `json:"before_hash,omitempty"`
	AfterHash  string `json:"after_hash,omitempty"`
}

func hashString(h digest.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}

func toCanonical(e *Envelope) canonicalEnvelope {
	ce := canonicalEnvelope{
		CommitID:  hashString(e.CommitID),
		ParentID:  hashString(e.ParentHash),
		TreeHash:  hashString(e.TreeHash),
		Timestamp: e.Timestamp.Unix(),
		Message:   e.Message,
	}
	if a := (canonicalAuthor{ID: e.Author.ID, Role: e.Author.Role, Email: e.Author.Email}); a != (canonicalAuthor{}) {
		ce.Author = &a
	}
	if p := (canonicalProcess{Name: e.Process.Name, Version: e.Process.Version, Params: e.Process.Params, Source: e.Process.Source}); p != (canonicalProcess{}) {
		ce.Process = &p
	}
	for _, c := range e.Changes {
		ce.Changes = append(ce.Changes, canonicalChange{
			Table:      c.Table,
			Operation:  string(c.Operation),
			PrimaryKey: c.PrimaryKey,
			BeforeHash: hashString(c.BeforeHash),
			AfterHash:  hashString(c.AfterHash),
		})
	}
	return ce
}

// MarshalCanonical serializes e using the fixed canon/v1 profile. The
// CommitID field is included as-is — callers that want the pre-image used
// to compute CommitID must zero it first, which Finalize does internally.
func MarshalCanonical(e *Envelope) ([]byte, error) {
	b, err := json.Marshal(toCanonical(e))
	if err != nil {
		return nil, fmt.Errorf("envelope: canonical marshal: %w", err)
	}
	return b, nil
}

// UnmarshalCanonical parses canon/v1 JSON back into an Envelope.
func UnmarshalCanonical(data []byte) (*Envelope, error) {
	var ce canonicalEnvelope
	if err := json.Unmarshal(data, &ce); err != nil {
		return nil, fmt.Errorf("envelope: canonical unmarshal: %w", err)
	}

	e := &Envelope{Message: ce.Message}
	if ce.Author != nil {
		e.Author = Author{ID: ce.Author.ID, Role: ce.Author.Role, Email: ce.Author.Email}
	}
	if ce.Process != nil {
		e.Process = Process{
			Name:    ce.Process.Name,
			Version: ce.Process.Version,
			Params:  ce.Process.Params,
			Source:  ce.Process.Source,
		}
	}
	e.Timestamp = unixTime(ce.Timestamp)

	var err error
	if e.CommitID, err = parseOptionalHash(ce.CommitID); err != nil {
		return nil, fmt.Errorf("envelope: commit_id: %w", err)
	}
	if e.ParentHash, err = parseOptionalHash(ce.ParentID); err != nil {
		return nil, fmt.Errorf("envelope: parent_id: %w", err)
	}
	if e.TreeHash, err = parseOptionalHash(ce.TreeHash); err != nil {
		return nil, fmt.Errorf("envelope: tree_hash: %w", err)
	}

	for i, cc := range ce.Changes {
		c := Change{
			Table:      cc.Table,
			Operation:  Operation(cc.Operation),
			PrimaryKey: cc.PrimaryKey,
		}
		if c.BeforeHash, err = parseOptionalHash(cc.BeforeHash); err != nil {
			return nil, fmt.Errorf("envelope: changes[%d].before_hash: %w", i, err)
		}
		if c.AfterHash, err = parseOptionalHash(cc.AfterHash); err != nil {
			return nil, fmt.Errorf("envelope: changes[%d].after_hash: %w", i, err)
		}
		e.Changes = append(e.Changes, c)
	}
	return e, nil
}

func parseOptionalHash(s string) (digest.Hash, error) {
	if s == "" {
		return digest.Zero, nil
	}
	return digest.ParseHash(s)
}
