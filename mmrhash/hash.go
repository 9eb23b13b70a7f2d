// Package mmrhash provides the opaque 32-byte digest type used throughout
// the MMR packages, backed by crypto/sha256.
package mmrhash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Size is the fixed width, in bytes, of a Hash.
const Size = sha256.Size

// Hash is an opaque 32-byte digest.
type Hash [Size]byte

// Zero is the all-zero digest, used as the root of an empty MMR.
var Zero = Hash{}

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Bytes returns the digest bytes.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String renders the digest as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// FromBytes copies b into a Hash. b must be exactly Size bytes long.
func FromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != Size {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// NewHasher returns the concrete streaming hasher used to build digests.
func NewHasher() hash.Hash {
	return sha256.New()
}

// Builder chains byte slices into a single digest by writing them into a
// stdlib hash.Hash and finalizing once.
type Builder struct {
	h hash.Hash
}

// NewBuilder returns an empty streaming digest builder.
func NewBuilder() *Builder {
	return &Builder{h: NewHasher()}
}

// Chain feeds data into the digest and returns the builder for chaining.
func (b *Builder) Chain(data []byte) *Builder {
	b.h.Write(data)
	return b
}

// Finalize returns the digest of everything written so far.
func (b *Builder) Finalize() Hash {
	var out Hash
	copy(out[:], b.h.Sum(nil))
	return out
}

// HashWith returns H(self || other), i.e. hashes the concatenation of two
// hashes in left-then-right order. This is the building block for
// parent-node hashes; peak bagging instead chains every peak through a
// single Builder.
func (h Hash) HashWith(other Hash) Hash {
	return NewBuilder().Chain(h[:]).Chain(other[:]).Finalize()
}
