package scribeerr

import (
	"errors"
	"testing"
)

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(KindDB, "detail", nil); err != nil {
		t.Fatalf("Wrap(nil) should return nil, got %v", err)
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindPgConnect, "dial upstream", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the wrapped cause")
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindNotARepo, "no .scribe directory")
	if KindOf(err) != KindNotARepo {
		t.Fatalf("expected KindNotARepo, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors should report KindUnknown")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindPgConnect, true},
		{KindPgQuery, true},
		{KindPgReplication, true},
		{KindRepoCorrupt, false},
		{KindInvalidArg, false},
	}
	for _, c := range cases {
		err := New(c.kind, "x")
		if got := IsRetryable(err); got != c.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(KindPgQuery, "poll changes", cause)
	msg := err.Error()
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
}
