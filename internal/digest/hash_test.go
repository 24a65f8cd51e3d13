package digest

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	if a != b {
		t.Fatalf("HashBytes not deterministic: %s != %s", a, b)
	}
}

func TestHashLeafDiffersFromHashBytes(t *testing.T) {
	data := []byte("row-1")
	if HashLeaf(data) == HashBytes(data) {
		t.Fatal("HashLeaf must differ from HashBytes due to domain separation")
	}
}

func TestHashNodeNotCommutative(t *testing.T) {
	left := HashLeaf([]byte("a"))
	right := HashLeaf([]byte("b"))
	if HashNode(left, right) == HashNode(right, left) {
		t.Fatal("HashNode(left, right) must differ from HashNode(right, left)")
	}
}

func TestHashNodeNoLengthFraming(t *testing.T) {
	// HashNode must be exactly SHA256(0x01 || left || right), with no
	// length-prefixing of the operands.
	left := HashLeaf([]byte("x"))
	right := HashLeaf([]byte("y"))
	want := HashBytes(append([]byte{0x01}, append(left.Bytes(), right.Bytes()...)...))
	got := HashNode(left, right)
	if got != want {
		t.Fatalf("HashNode does not match unframed construction: got %s want %s", got, want)
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := HashBytes([]byte("round trip"))
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %s != %s", parsed, h)
	}
}

func TestParseHashCaseInsensitive(t *testing.T) {
	h := HashBytes([]byte("case"))
	upper := strings.ToUpper(h.String())
	parsed, err := ParseHash(upper)
	if err != nil {
		t.Fatalf("ParseHash(upper): %v", err)
	}
	if parsed != h {
		t.Fatal("ParseHash should accept uppercase hex")
	}
}

func TestParseHashRejectsWrongLength(t *testing.T) {
	if _, err := ParseHash("ab"); err == nil {
		t.Fatal("expected error for short hash")
	}
}

func TestParseHashRejectsNonHex(t *testing.T) {
	bad := strings.Repeat("zz", Size)
	if _, err := ParseHash(bad); err == nil {
		t.Fatal("expected error for non-hex input")
	}
}

func TestZeroHash(t *testing.T) {
	var z Hash
	if !z.IsZero() {
		t.Fatal("zero value of Hash must be IsZero")
	}
	if !Zero.IsZero() {
		t.Fatal("Zero must be IsZero")
	}
	if HashBytes(nil).IsZero() {
		t.Fatal("hash of empty input is not the zero hash")
	}
}

func TestBytesIsCopy(t *testing.T) {
	h := HashBytes([]byte("copy"))
	b := h.Bytes()
	b[0] ^= 0xff
	if bytes.Equal(b, h.Bytes()) {
		t.Fatal("Bytes() must return a copy, not an alias")
	}
}
