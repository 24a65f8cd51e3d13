package cdc

import "testing"

func TestParseTestDecodingLineUpdate(t *testing.T) {
	line := `table public.orders: UPDATE: id[integer]:1 total[numeric]:9.50`
	c, ok := parseTestDecodingLine(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if c.Table != "orders" {
		t.Fatalf("expected table 'orders', got %q", c.Table)
	}
	if c.Operation != "update" {
		t.Fatalf("expected operation 'update', got %q", c.Operation)
	}
	if c.PrimaryKey != "1" {
		t.Fatalf("expected primary key '1', got %q", c.PrimaryKey)
	}
	if c.AfterHash.IsZero() {
		t.Fatal("expected non-zero after hash for update")
	}
	if !c.BeforeHash.IsZero() {
		t.Fatal("expected zero before hash for update (test_decoding has no old tuple by default)")
	}
}

func TestParseTestDecodingLineDelete(t *testing.T) {
	line := `table public.orders: DELETE: id[integer]:2`
	c, ok := parseTestDecodingLine(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if c.Operation != "delete" {
		t.Fatalf("expected operation 'delete', got %q", c.Operation)
	}
	if c.BeforeHash.IsZero() {
		t.Fatal("expected non-zero before hash for delete")
	}
}

func TestParseTestDecodingLineIgnoresBegin(t *testing.T) {
	if _, ok := parseTestDecodingLine("BEGIN 123"); ok {
		t.Fatal("BEGIN lines must not parse as a change")
	}
}

func TestParseTestDecodingLineIgnoresCommit(t *testing.T) {
	if _, ok := parseTestDecodingLine("COMMIT 123"); ok {
		t.Fatal("COMMIT lines must not parse as a change")
	}
}

func TestExtractField(t *testing.T) {
	tuple := `id[integer]:42 name[text]:'alice' total[numeric]:9.50`
	if got := extractField(tuple, "id"); got != "42" {
		t.Fatalf("expected '42', got %q", got)
	}
	if got := extractField(tuple, "name"); got != "alice" {
		t.Fatalf("expected 'alice', got %q", got)
	}
	if got := extractField(tuple, "missing"); got != "" {
		t.Fatalf("expected empty string for missing field, got %q", got)
	}
}
