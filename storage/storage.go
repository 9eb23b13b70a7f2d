// Package storage defines the abstract array-of-hashes backend consumed by
// the mmr, mutablemmr, prunedhashset and changetracker packages, plus a
// slice-backed implementation and a thread-shareable variant used for
// checkpoint logs.
package storage

import "errors"

// ErrBackend is a sentinel for storage failures. No code in this module
// returns or wraps it: the in-memory backends here never fail, and the
// packages built on Store return a backend's errors unchanged.
var ErrBackend = errors.New("storage backend error")

// Store is a generic array-like backend: append, random read, length, clear.
// Every MMR variant in this module is polymorphic over Store rather than
// over a concrete slice type.
type Store[V any] interface {
	// Len returns the number of items stored.
	Len() (int, error)
	// Push stores a new item and returns its index.
	Push(value V) (int, error)
	// Get returns the item at index, or ok=false if absent.
	Get(index int) (value V, ok bool, err error)
	// GetOrPanic returns the item at index. Callers must only invoke this
	// at indices proven to exist (a known peak, or a position already
	// bounds-checked); an absent index is a contract violation and panics.
	GetOrPanic(index int) V
	// Clear removes all stored items.
	Clear() error
}

// Extended is the optional capability set used by checkpoint logs: prefix
// truncation, dropping a prefix, and streaming iteration.
type Extended[V any] interface {
	Store[V]
	// Truncate keeps the first n items and drops the rest. n >= Len() is a
	// no-op.
	Truncate(n int) error
	// Shift drops the first n items, shifting the rest down. n > Len()
	// clamps to Len().
	Shift(n int) error
	// ForEach calls fn with every stored item in order. fn's error does not
	// stop iteration; ForEach itself only fails on a backend error.
	ForEach(fn func(value V, err error)) error
}
