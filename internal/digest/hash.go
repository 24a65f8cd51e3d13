// Package digest implements the content-addressing primitives that every
// other package in this module builds on: a plain hash over bytes, a
// domain-separated leaf hash, and a domain-separated node hash used to fold
// two child digests into one.
//
// The domain separation bytes (0x00 for leaves, 0x01 for interior nodes)
// prevent a second-preimage attack where a leaf's bytes are crafted to equal
// the concatenation of two other leaves' hashes.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of a Hash.
const Size = sha256.Size

// Hash is a 32-byte SHA-256 digest. Unlike a []byte, it is comparable with
// == and safe to use as a map key.
type Hash [Size]byte

// Zero is the all-zero hash, used to mark an unset commit parent, an empty
// Merkle tree, or a not-yet-finalized envelope field.
var Zero Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// ParseHash decodes a hex-encoded digest. It accepts both upper and lower
// case hex and rejects any string that does not decode to exactly Size
// bytes.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != Size*2 {
		return h, fmt.Errorf("digest: hash %q has length %d, want %d", s, len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("digest: hash %q is not valid hex: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// HashBytes returns the plain SHA-256 digest of data, with no domain separation.
// It is used for content that is never part of the Merkle tree itself, e.g.
// hashing a row's canonical text representation before it becomes a Merkle
// leaf via HashLeaf.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashLeaf returns the domain-separated leaf digest SHA256(0x00 || data).
func HashLeaf(data []byte) Hash {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(data)
	var out Hash
	h.Sum(out[:0])
	return out
}

// HashNode folds two child digests into their parent: SHA256(0x01 || left
// || right). There is no length framing of the operands — both are always
// exactly Size bytes, so framing would be redundant.
func HashNode(left, right Hash) Hash {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	h.Sum(out[:0])
	return out
}
