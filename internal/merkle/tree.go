// Package merkle builds Merkle roots and inclusion proofs over an ordered
// sequence of leaf digests. The builder keeps only the flat leaf vector, not
// a pointer tree: the root and any proof are derived from that vector on
// demand, which keeps the representation simple and avoids the allocation
// and GC pressure of a tree of node objects for trees that may have
// thousands of leaves per commit.
package merkle

import (
	"fmt"

	"github.com/wildmix/scribe/internal/digest"
)

// Builder accumulates leaf digests in insertion order and folds them into a
// Merkle root.
type Builder struct {
	leaves []digest.Hash
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddLeaf hashes data as a leaf (via digest.HashLeaf) and appends it.
func (b *Builder) AddLeaf(data []byte) {
	b.leaves = append(b.leaves, digest.HashLeaf(data))
}

// AddHash appends an already-computed leaf digest, for callers that hash
// their own content (e.g. change records hashed once and reused for both
// the leaf and a stored field).
func (b *Builder) AddHash(h digest.Hash) {
	b.leaves = append(b.leaves, h)
}

// Len returns the number of leaves accumulated so far.
func (b *Builder) Len() int {
	return len(b.leaves)
}

// Leaves returns a copy of the accumulated leaf digests in insertion order.
func (b *Builder) Leaves() []digest.Hash {
	out := make([]digest.Hash, len(b.leaves))
	copy(out, b.leaves)
	return out
}

// Root folds the accumulated leaves bottom-up into a single Merkle root.
// An empty builder returns the zero hash. A builder with one leaf returns
// that leaf unchanged (it is never re-hashed as a node). At every level
// with an odd number of nodes, the last node is paired with itself.
func (b *Builder) Root() digest.Hash {
	return Root(b.leaves)
}

// Root computes the Merkle root of an already-hashed, ordered leaf slice
// without requiring a Builder. It implements the same folding rules as
// Builder.Root.
func Root(leaves []digest.Hash) digest.Hash {
	if len(leaves) == 0 {
		return digest.Zero
	}
	level := make([]digest.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]digest.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, digest.HashNode(level[i], level[i+1]))
			} else {
				next = append(next, digest.HashNode(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// ProofStep is one step of an inclusion proof: the sibling digest to fold
// in, and whether that sibling sits to the left or right of the running
// hash.
type ProofStep struct {
	Sibling digest.Hash
	Left    bool // true if Sibling belongs on the left of the current hash
}

// InclusionProof is the ordered sequence of steps needed to recompute the
// Merkle root from a single leaf.
type InclusionProof struct {
	LeafIndex int
	Steps     []ProofStep
}

// Proof builds an inclusion proof for the leaf at index, derived from the
// current leaf vector. It reports an error if index is out of range.
func (b *Builder) Proof(index int) (InclusionProof, error) {
	return ProofFor(b.leaves, index)
}

// ProofFor builds an inclusion proof for leaves[index] without requiring a
// Builder.
func ProofFor(leaves []digest.Hash, index int) (InclusionProof, error) {
	if index < 0 || index >= len(leaves) {
		return InclusionProof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(leaves))
	}
	level := make([]digest.Hash, len(leaves))
	copy(level, leaves)
	proof := InclusionProof{LeafIndex: index}

	for len(level) > 1 {
		next := make([]digest.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var left, right digest.Hash
			left = level[i]
			if i+1 < len(level) {
				right = level[i+1]
			} else {
				right = level[i]
			}
			next = append(next, digest.HashNode(left, right))

			if i == index || i+1 == index {
				if i == index {
					proof.Steps = append(proof.Steps, ProofStep{Sibling: right, Left: false})
				} else {
					proof.Steps = append(proof.Steps, ProofStep{Sibling: left, Left: true})
				}
			}
		}
		index /= 2
		level = next
	}
	return proof, nil
}

// VerifyProof recomputes the root implied by leaf and proof, and reports
// whether it equals root.
func VerifyProof(leaf digest.Hash, proof InclusionProof, root digest.Hash) bool {
	cur := leaf
	for _, step := range proof.Steps {
		if step.Left {
			cur = digest.HashNode(step.Sibling, cur)
		} else {
			cur = digest.HashNode(cur, step.Sibling)
		}
	}
	return cur == root
}
