package merkle

import (
	"testing"

	"github.com/wildmix/scribe/internal/digest"
)

func TestEmptyTreeIsZeroHash(t *testing.T) {
	b := NewBuilder()
	if root := b.Root(); !root.IsZero() {
		t.Fatalf("expected zero hash for empty tree, got %s", root)
	}
}

func TestSingleLeafIsItsOwnRoot(t *testing.T) {
	b := NewBuilder()
	b.AddLeaf([]byte("only"))
	want := digest.HashLeaf([]byte("only"))
	if got := b.Root(); got != want {
		t.Fatalf("single-leaf root should equal the leaf hash: got %s want %s", got, want)
	}
}

func TestTwoLeavesFold(t *testing.T) {
	b := NewBuilder()
	b.AddLeaf([]byte("a"))
	b.AddLeaf([]byte("b"))
	want := digest.HashNode(digest.HashLeaf([]byte("a")), digest.HashLeaf([]byte("b")))
	if got := b.Root(); got != want {
		t.Fatalf("two-leaf root mismatch: got %s want %s", got, want)
	}
}

func TestOddLeafSelfPairs(t *testing.T) {
	b := NewBuilder()
	b.AddLeaf([]byte("a"))
	b.AddLeaf([]byte("b"))
	b.AddLeaf([]byte("c"))

	la := digest.HashLeaf([]byte("a"))
	lb := digest.HashLeaf([]byte("b"))
	lc := digest.HashLeaf([]byte("c"))
	level1 := []digest.Hash{digest.HashNode(la, lb), digest.HashNode(lc, lc)}
	want := digest.HashNode(level1[0], level1[1])

	if got := b.Root(); got != want {
		t.Fatalf("odd-leaf root mismatch: got %s want %s", got, want)
	}
}

func TestRootDeterministicOnOrder(t *testing.T) {
	b1 := NewBuilder()
	b1.AddLeaf([]byte("x"))
	b1.AddLeaf([]byte("y"))

	b2 := NewBuilder()
	b2.AddLeaf([]byte("y"))
	b2.AddLeaf([]byte("x"))

	if b1.Root() == b2.Root() {
		t.Fatal("root should depend on leaf order")
	}
}

func TestInclusionProofVerifiesForEveryLeaf(t *testing.T) {
	b := NewBuilder()
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for _, w := range words {
		b.AddLeaf([]byte(w))
	}
	root := b.Root()

	for i, w := range words {
		proof, err := b.Proof(i)
		if err != nil {
			t.Fatalf("Proof(%d): %v", i, err)
		}
		leaf := digest.HashLeaf([]byte(w))
		if !VerifyProof(leaf, proof, root) {
			t.Fatalf("inclusion proof failed to verify for leaf %d (%q)", i, w)
		}
	}
}

func TestInclusionProofRejectsWrongLeaf(t *testing.T) {
	b := NewBuilder()
	b.AddLeaf([]byte("one"))
	b.AddLeaf([]byte("two"))
	b.AddLeaf([]byte("three"))
	root := b.Root()

	proof, err := b.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	wrongLeaf := digest.HashLeaf([]byte("not-one"))
	if VerifyProof(wrongLeaf, proof, root) {
		t.Fatal("proof should not verify against the wrong leaf")
	}
}

func TestProofOutOfRange(t *testing.T) {
	b := NewBuilder()
	b.AddLeaf([]byte("only"))
	if _, err := b.Proof(5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if _, err := b.Proof(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestAddHashMatchesAddLeaf(t *testing.T) {
	b1 := NewBuilder()
	b1.AddLeaf([]byte("same"))

	b2 := NewBuilder()
	b2.AddHash(digest.HashLeaf([]byte("same")))

	if b1.Root() != b2.Root() {
		t.Fatal("AddHash with a precomputed leaf digest should match AddLeaf")
	}
}
