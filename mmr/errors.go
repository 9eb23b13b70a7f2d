package mmr

import "errors"

// Sentinel errors surfaced by this package.
var (
	// ErrCorruptDataStructure is returned when a structural invariant is
	// broken: a pushed position has non-zero height where a leaf was
	// expected, or validate cannot read a node it expects to exist.
	ErrCorruptDataStructure = errors.New("mmr: corrupt data structure")
	// ErrInvalidMerkleTree is returned when a parent hash does not match
	// the hash of its recorded children.
	ErrInvalidMerkleTree = errors.New("mmr: parent hash does not match its children")
	// ErrBackend is a sentinel for storage failures. This package does not
	// return or wrap it: errors from the Store are returned unchanged.
	ErrBackend = errors.New("mmr: backend error")
)
