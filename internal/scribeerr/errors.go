// Package scribeerr implements this module's error taxonomy: a small
// Kind enum plus a wrapped error carrying a human-readable detail string.
//
// The reference implementation this module was distilled from used a
// thread-local "last error detail" string that callers read back after a
// function returned a bare error code. That pattern does not translate to
// Go, where errors are values: Error carries its own detail and Cause, so
// it can be passed across goroutines and inspected with errors.As/Is
// without any hidden per-thread state.
package scribeerr

import (
	"errors"
	"fmt"
)

// Kind classifies the broad category of failure. Callers that need to
// decide whether to retry (e.g. the CDC monitor) switch on Kind rather than
// matching error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArg
	KindNotFound
	KindOutOfMemory
	KindNotARepo
	KindRepoExists
	KindRepoCorrupt
	KindIO
	KindDB
	KindObjectMissing
	KindHashMismatch
	KindCrypto
	KindPgConnect
	KindPgQuery
	KindPgReplication
	KindJSONParse
	KindJSONSchema
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "invalid_arg"
	case KindNotFound:
		return "not_found"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindNotARepo:
		return "not_a_repo"
	case KindRepoExists:
		return "repo_exists"
	case KindRepoCorrupt:
		return "repo_corrupt"
	case KindIO:
		return "io"
	case KindDB:
		return "db"
	case KindObjectMissing:
		return "object_missing"
	case KindHashMismatch:
		return "hash_mismatch"
	case KindCrypto:
		return "crypto"
	case KindPgConnect:
		return "pg_connect"
	case KindPgQuery:
		return "pg_query"
	case KindPgReplication:
		return "pg_replication"
	case KindJSONParse:
		return "json_parse"
	case KindJSONSchema:
		return "json_schema"
	default:
		return "unknown"
	}
}

// Error is the concrete error type this module returns. Detail is meant for
// humans (logs, CLI output); Kind is meant for code (retry decisions,
// exit-code mapping).
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns an *Error with no wrapped cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap returns an *Error that wraps cause. If cause is nil, Wrap returns
// nil, so it is safe to use as `return scribeerr.Wrap(KindDB, "...", err)`
// in an `if err != nil` block guarding the call.
func Wrap(kind Kind, detail string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err represents a transient upstream
// connectivity failure that the CDC monitor should reconnect and retry
// rather than treat as loop-ending.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindPgConnect, KindPgQuery, KindPgReplication:
		return true
	default:
		return false
	}
}
