package objects

import (
	"context"
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	h, err := s.Put(ctx, []byte("hello world"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(h) {
		t.Fatal("Has should report true after Put")
	}
	got, err := s.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestPutIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	h1, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("Put should be deterministic on content")
	}
}

func TestGetMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), [32]byte{}); err == nil {
		t.Fatal("expected error for missing object")
	}
}
