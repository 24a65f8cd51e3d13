// Package cdc implements the change-data-capture ingestion loop: it watches
// a set of tables in an upstream PostgreSQL database and turns observed row
// mutations into finalized, stored commits.
//
// Two capture modes are supported. ModeTrigger installs an audit trigger
// and polling table and works on any PostgreSQL 11+ without special
// server configuration. ModeLogical uses a logical replication slot and
// publication and requires wal_level = logical; it decodes the
// already-text-formatted output of pg_logical_slot_peek_changes and
// advances the slot with pg_replication_slot_advance, rather than reading
// a raw pgoutput binary stream, which this module does not implement
// (see logicalSource).
package cdc

import (
	"context"
	"time"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
)

// Mode selects how the upstream database is watched for changes.
type Mode string

const (
	ModeTrigger Mode = "trigger"
	ModeLogical Mode = "logical"
)

// Config controls one Monitor's upstream connection and capture behavior.
//
// AuthorID/AuthorRole identify the operator or service running this
// Monitor and fall back to "service:scribe-watch" / "automated" per
// SPEC_FULL.md §4.5. ProcessName, when left empty, is derived per commit
// from the observed transaction id ("pg_txid:<xid>"); set it to pin every
// commit from this Monitor to a fixed process name instead.
type Config struct {
	ConnString      string
	Tables          []string
	Mode            Mode
	PollInterval    time.Duration
	SlotName        string
	PublicationName string

	AuthorID      string
	AuthorRole    string
	ProcessName   string
	ProcessSource string

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

// WithDefaults returns a copy of c with zero-valued fields replaced by
// their defaults.
func (c Config) WithDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.SlotName == "" {
		c.SlotName = "scribe_slot"
	}
	if c.PublicationName == "" {
		c.PublicationName = "scribe_pub"
	}
	if c.AuthorID == "" {
		c.AuthorID = "service:scribe-watch"
	}
	if c.AuthorRole == "" {
		c.AuthorRole = "automated"
	}
	if c.ProcessSource == "" {
		c.ProcessSource = "postgresql-cdc"
	}
	if c.Mode == "" {
		c.Mode = ModeTrigger
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	return c
}

// State is a Monitor's position in the ingestion loop's lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSetup
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Change is one row mutation observed upstream, before it has been folded
// into a commit envelope.
type Change struct {
	Table      string
	Operation  envelope.Operation
	PrimaryKey string
	BeforeHash digest.Hash
	AfterHash  digest.Hash
	TxID       string
	ObservedAt time.Time
}

// source is the minimal interface both capture modes implement. Keeping it
// narrow lets Monitor's reconnect/poll/commit machinery stay agnostic to
// which mode is active.
type source interface {
	// Setup prepares the upstream database for capture (creates the audit
	// trigger and table, or the replication slot and publication) and is
	// safe to call repeatedly.
	Setup(ctx context.Context) error

	// Poll fetches at most one batch of pending changes without
	// acknowledging them upstream. The batch remains visible to a future
	// Poll (e.g. after a restart) until Ack is called for it.
	Poll(ctx context.Context) ([]Change, error)

	// Ack acknowledges the most recently Poll'd batch, advancing the
	// source's upstream position so it is not redelivered. Callers must
	// only call Ack after the batch has been durably persisted and HEAD
	// has been advanced (SPEC_FULL.md §4.5), so that a crash between Poll
	// and Ack loses nothing — the unacknowledged batch simply replays.
	Ack(ctx context.Context) error

	// Cleanup tears down whatever Setup installed (the audit trigger and
	// table, or the replication slot and publication), for operator
	// teardown via `scribe watch -C`.
	Cleanup(ctx context.Context) error

	// Close releases the source's upstream connection.
	Close(ctx context.Context) error
}
