package envelope

import (
	"time"

	"github.com/wildmix/scribe/internal/digest"
)

// Operation identifies the kind of row mutation a Change records.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Author identifies who (or what service) produced a commit. ID follows
// the "<kind>:<name>" convention, e.g. "user:alice" or "service:etl".
type Author struct {
	ID    string
	Role  string
	Email string
}

// Process identifies the process that observed and recorded the change,
// e.g. a CDC watcher instance or a manual CLI invocation.
type Process struct {
	Name    string
	Version string
	Params  string
	Source  string
}

// Change is a single row-level mutation captured inside a commit. BeforeHash
// and AfterHash are digests of the row's canonical text representation, not
// the row data itself — the commit never carries the row's actual values.
type Change struct {
	Table      string
	Operation  Operation
	PrimaryKey string
	BeforeHash digest.Hash
	AfterHash  digest.Hash
}

// Envelope is the content-addressed unit of history: one or more Changes,
// attributed to an Author and Process, linked to a parent commit, and
// identified by CommitID — the hash of its own canonical serialization.
//
// CommitID and TreeHash are zero until Finalize is called.
type Envelope struct {
	CommitID   digest.Hash
	ParentHash digest.Hash
	TreeHash   digest.Hash
	Author     Author
	Process    Process
	Timestamp  time.Time
	Message    string
	Changes    []Change
}

// Builder assembles an Envelope field by field before Finalize computes its
// content address. It exists mainly for readability at call sites; Envelope
// itself has no hidden state, so Builder is a thin wrapper.
type Builder struct {
	env Envelope
}

// New starts a Builder with the current time as the commit timestamp.
func New() *Builder {
	return &Builder{env: Envelope{Timestamp: time.Now().UTC()}}
}

// SetAuthor sets the author's id, e.g. "user:alice" or "service:etl".
func (b *Builder) SetAuthor(id string) *Builder {
	b.env.Author.ID = id
	return b
}

func (b *Builder) SetAuthorRole(role string) *Builder {
	b.env.Author.Role = role
	return b
}

func (b *Builder) SetAuthorEmail(email string) *Builder {
	b.env.Author.Email = email
	return b
}

func (b *Builder) SetProcess(name string) *Builder {
	b.env.Process.Name = name
	return b
}

func (b *Builder) SetProcessVersion(version string) *Builder {
	b.env.Process.Version = version
	return b
}

func (b *Builder) SetProcessParams(params string) *Builder {
	b.env.Process.Params = params
	return b
}

func (b *Builder) SetProcessSource(source string) *Builder {
	b.env.Process.Source = source
	return b
}

func (b *Builder) SetParent(h digest.Hash) *Builder {
	b.env.ParentHash = h
	return b
}

func (b *Builder) SetMessage(msg string) *Builder {
	b.env.Message = msg
	return b
}

func (b *Builder) SetTimestamp(t time.Time) *Builder {
	b.env.Timestamp = t.UTC()
	return b
}

// SetTreeHash overrides the computed tree hash. Only useful for tests and
// for replaying an already-finalized envelope; Finalize computes this from
// Changes when it is left zero.
func (b *Builder) SetTreeHash(h digest.Hash) *Builder {
	b.env.TreeHash = h
	return b
}

func (b *Builder) AddChange(c Change) *Builder {
	b.env.Changes = append(b.env.Changes, c)
	return b
}

// Build returns the assembled, not-yet-finalized Envelope. Call Finalize on
// the result before storing or hashing it.
func (b *Builder) Build() *Envelope {
	env := b.env
	env.Changes = append([]Change(nil), b.env.Changes...)
	return &env
}
