// Package mutablemmr layers leaf deletion onto an append-only mmr.MMR. The
// underlying tree never shrinks; deletion only marks a leaf index in a
// compressed bitmap, and that bitmap's serialization is mixed into the
// root so two mutable MMRs with different deletions never collide.
package mutablemmr

import (
	"errors"
	"math"

	"github.com/ekame-archive/gomerkleforest/bitmap"
	"github.com/ekame-archive/gomerkleforest/mmr"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/storage"
)

// ErrMaximumSizeReached is returned by Push once size has reached the
// 32-bit leaf index ceiling the deletion bitmap imposes.
var ErrMaximumSizeReached = errors.New("mutablemmr: maximum size reached")

// MutableMmr is a drop-in MMR replacement whose leaves can be marked
// deleted without ever removing them from the underlying append-only tree.
type MutableMmr struct {
	mmr     *mmr.MMR
	deleted *bitmap.Bitmap
	size    uint32
}

// New wraps backend in a fresh, empty mutable MMR.
func New(backend storage.Store[mmrhash.Hash]) *MutableMmr {
	return &MutableMmr{mmr: mmr.New(backend), deleted: bitmap.New()}
}

// From wraps an existing MMR, counting its current leaves and starting
// with nothing marked deleted.
func From(m *mmr.MMR) (*MutableMmr, error) {
	n, err := m.Len()
	if err != nil {
		return nil, err
	}
	return &MutableMmr{mmr: m, deleted: bitmap.New(), size: uint32(mmr.NLeaves(n))}, nil
}

// LeafNodes is a restorable snapshot of a mutable MMR: the leaf hashes,
// in order, and the bitmap of leaves marked deleted.
type LeafNodes struct {
	LeafHashes []mmrhash.Hash
	Deleted    *bitmap.Bitmap
}

// Combine merges next into l: next's leaf hashes are appended, and its
// deletions are unioned in.
func (l *LeafNodes) Combine(next LeafNodes) {
	l.LeafHashes = append(l.LeafHashes, next.LeafHashes...)
	if l.Deleted == nil {
		l.Deleted = bitmap.New()
	}
	l.Deleted.OrInPlace(next.Deleted)
}

// Restore clears m and rebuilds it from state.
func (m *MutableMmr) Restore(state LeafNodes) error {
	if err := m.mmr.Restore(state.LeafHashes); err != nil {
		return err
	}
	if state.Deleted == nil {
		state.Deleted = bitmap.New()
	}
	m.deleted = state.Deleted
	n, err := m.mmr.GetLeafCount()
	if err != nil {
		return err
	}
	m.size = uint32(n)
	return nil
}

// Len returns the count of leaves that are not marked deleted. This is not
// the same as the underlying mmr's node count.
func (m *MutableMmr) Len() uint32 {
	return m.size - uint32(m.deleted.Cardinality())
}

// IsEmpty reports whether the mmr has no nodes, or every leaf has been
// marked deleted.
func (m *MutableMmr) IsEmpty() (bool, error) {
	empty, err := m.mmr.IsEmpty()
	if err != nil {
		return false, err
	}
	return empty || m.deleted.Cardinality() == uint64(m.size), nil
}

// GetLeafHash returns the hash of the given leaf, or ok=false if it is
// absent or has been marked deleted.
func (m *MutableMmr) GetLeafHash(leafIndex uint32) (mmrhash.Hash, bool, error) {
	if m.deleted.Contains(leafIndex) {
		return mmrhash.Hash{}, false, nil
	}
	return m.mmr.GetNodeHash(mmr.LeafIndexToPos(uint64(leafIndex)))
}

// GetLeafStatus returns a leaf's hash (if present) and whether it has been
// marked deleted.
func (m *MutableMmr) GetLeafStatus(leafIndex uint32) (mmrhash.Hash, bool, bool, error) {
	hash, ok, err := m.mmr.GetNodeHash(mmr.LeafIndexToPos(uint64(leafIndex)))
	if err != nil {
		return mmrhash.Hash{}, false, false, err
	}
	return hash, ok, m.deleted.Contains(leafIndex), nil
}

// GetLeafCount returns the number of leaves ever pushed, regardless of
// deletion status.
func (m *MutableMmr) GetLeafCount() uint32 {
	return m.size
}

// GetMerkleRoot mixes the mmr root with the compressed serialization of
// the deletion bitmap. Callers that have been deferring compression
// (see DeleteAndCompress) must call Compress first, or this root will
// not match what a compressed peer computes for the same state.
func (m *MutableMmr) GetMerkleRoot() (mmrhash.Hash, error) {
	mmrRoot, err := m.mmr.GetMerkleRoot()
	if err != nil {
		return mmrhash.Hash{}, err
	}
	bitmapBytes, err := m.deleted.Serialize()
	if err != nil {
		return mmrhash.Hash{}, err
	}
	return mmrhash.NewBuilder().Chain(mmrRoot.Bytes()).Chain(bitmapBytes).Finalize(), nil
}

// GetMmrOnlyRoot returns the root of the underlying mmr, without mixing in
// the deletion bitmap.
func (m *MutableMmr) GetMmrOnlyRoot() (mmrhash.Hash, error) {
	return m.mmr.GetMerkleRoot()
}

// FindLeafNode delegates to the underlying mmr.
func (m *MutableMmr) FindLeafNode(hash mmrhash.Hash) (uint64, bool, error) {
	return m.mmr.FindLeafNode(hash)
}

// Push appends a new leaf and returns the new leaf count, regardless of
// any deletions.
func (m *MutableMmr) Push(hash mmrhash.Hash) (uint32, error) {
	if m.size >= math.MaxUint32 {
		return 0, ErrMaximumSizeReached
	}
	if _, err := m.mmr.Push(hash); err != nil {
		return 0, err
	}
	m.size++
	return m.size, nil
}

// DeleteAndCompress marks leafIndex as deleted, optionally compressing the
// bitmap afterward. It reports whether anything changed: an out-of-range
// or already-deleted index is a no-op returning false.
//
// Skip compression only inside a tight batch-delete loop, and always
// compress before the next call to GetMerkleRoot.
func (m *MutableMmr) DeleteAndCompress(leafIndex uint32, compress bool) bool {
	if leafIndex >= m.size || m.deleted.Contains(leafIndex) {
		return false
	}
	m.deleted.Add(leafIndex)
	if compress {
		m.Compress()
	}
	return true
}

// Delete marks leafIndex as deleted and compresses the bitmap.
func (m *MutableMmr) Delete(leafIndex uint32) bool {
	return m.DeleteAndCompress(leafIndex, true)
}

// Compress runs the deletion bitmap's run-length compression.
func (m *MutableMmr) Compress() bool {
	return m.deleted.RunOptimize()
}

// Validate delegates to the underlying mmr; it cannot tell you whether the
// deletion bitmap correctly reflects application-level intent, only that
// the tree's own hashes are internally consistent.
func (m *MutableMmr) Validate() error {
	return m.mmr.Validate()
}

// MMR exposes the underlying append-only mmr, e.g. for building inclusion
// proofs.
func (m *MutableMmr) MMR() *mmr.MMR {
	return m.mmr
}

// Deleted returns the bitmap of leaves marked deleted.
func (m *MutableMmr) Deleted() *bitmap.Bitmap {
	return m.deleted
}

// Clear resets the mutable MMR to empty.
func (m *MutableMmr) Clear() error {
	if err := m.mmr.Restore(nil); err != nil {
		return err
	}
	m.deleted = bitmap.New()
	m.size = 0
	return nil
}

// subBitmap returns the deletion bitmap restricted to leaves
// [index, index+count), for use by ToLeafNodes.
func (m *MutableMmr) subBitmap(index, count int) (*bitmap.Bitmap, error) {
	deleted := m.deleted.Clone()
	if index > 0 {
		deleted.RemoveRangeClosed(0, uint32(index-1))
	}
	leafCount, err := m.mmr.GetLeafCount()
	if err != nil {
		return nil, err
	}
	if leafCount > 1 {
		lastIndex := index + count - 1
		if uint64(lastIndex) < leafCount-1 {
			deleted.RemoveRangeClosed(uint32(lastIndex+1), uint32(leafCount-1))
		}
	}
	return deleted, nil
}

// ToLeafNodes snapshots count leaf hashes starting at index, plus the
// portion of the deletion bitmap relevant to that window.
func (m *MutableMmr) ToLeafNodes(index, count int) (LeafNodes, error) {
	leafHashes, err := m.mmr.GetLeafHashes(uint64(index), uint64(count))
	if err != nil {
		return LeafNodes{}, err
	}
	deleted, err := m.subBitmap(index, count)
	if err != nil {
		return LeafNodes{}, err
	}
	return LeafNodes{LeafHashes: leafHashes, Deleted: deleted}, nil
}

// Equal reports whether m and other compute the same merkle root.
func (m *MutableMmr) Equal(other *MutableMmr) (bool, error) {
	a, err := m.GetMerkleRoot()
	if err != nil {
		return false, err
	}
	b, err := other.GetMerkleRoot()
	if err != nil {
		return false, err
	}
	return a == b, nil
}
