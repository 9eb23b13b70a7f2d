// Package mmr implements an append-only Merkle Mountain Range: a forest of
// perfect binary hash trees built by repeated leaf insertion, whose root is
// the streaming chain-hash of its current peaks. See index.go for the
// position algebra and mmr.go for the tree itself.
package mmr

import (
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/storage"
)

// MMR is an append-only Merkle Mountain Range over any Store backend: a
// full in-memory Slice, a pruned hash set, or any other Store
// implementation is read the same way.
type MMR struct {
	hashes storage.Store[mmrhash.Hash]
}

// New wraps backend as an MMR. The backend's existing contents, if any,
// become the MMR's initial state as-is.
func New(backend storage.Store[mmrhash.Hash]) *MMR {
	return &MMR{hashes: backend}
}

// Len returns the total node count, not just the leaf count.
func (m *MMR) Len() (uint64, error) {
	n, err := m.hashes.Len()
	return uint64(n), err
}

// IsEmpty reports whether the MMR holds no nodes at all.
func (m *MMR) IsEmpty() (bool, error) {
	n, err := m.Len()
	return n == 0, err
}

// GetNodeHash returns the hash stored at the given zero-based node
// position, or ok=false if nothing has been written there.
func (m *MMR) GetNodeHash(pos uint64) (mmrhash.Hash, bool, error) {
	return m.hashes.Get(int(pos))
}

// GetLeafHash returns the hash of the k-th leaf.
func (m *MMR) GetLeafHash(k uint64) (mmrhash.Hash, bool, error) {
	return m.GetNodeHash(LeafIndexToPos(k))
}

// GetLeafCount returns the number of leaves pushed so far.
func (m *MMR) GetLeafCount() (uint64, error) {
	n, err := m.Len()
	if err != nil {
		return 0, err
	}
	return NLeaves(n), nil
}

// GetLeafHashes returns up to count leaf hashes starting at leaf index
// index. Fewer than count are returned once the leaf count is exhausted;
// requesting an out-of-range index returns an empty, non-nil slice. A count
// of 0 is treated as 1.
func (m *MMR) GetLeafHashes(index uint64, count uint64) ([]mmrhash.Hash, error) {
	leafCount, err := m.GetLeafCount()
	if err != nil {
		return nil, err
	}
	if index >= leafCount {
		return []mmrhash.Hash{}, nil
	}
	if count < 1 {
		count = 1
	}
	last := index + count - 1
	if last >= leafCount {
		last = leafCount - 1
	}
	out := make([]mmrhash.Hash, 0, last-index+1)
	for i := index; i <= last; i++ {
		h, ok, err := m.GetLeafHash(i)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// GetMerkleRoot returns the zero hash for an empty MMR, and otherwise the
// streaming chain-hash of the current peaks, left to right. Unlike many MMR
// implementations this never mixes node position into the accumulation: it
// is exactly H(peak_0 || peak_1 || ... || peak_k).
func (m *MMR) GetMerkleRoot() (mmrhash.Hash, error) {
	empty, err := m.IsEmpty()
	if err != nil {
		return mmrhash.Hash{}, err
	}
	if empty {
		return mmrhash.Zero, nil
	}
	return m.bagPeaks()
}

func (m *MMR) bagPeaks() (mmrhash.Hash, error) {
	size, err := m.Len()
	if err != nil {
		return mmrhash.Hash{}, err
	}
	builder := mmrhash.NewBuilder()
	for _, pos := range FindPeaks(size) {
		h, ok, err := m.GetNodeHash(pos)
		if err != nil {
			return mmrhash.Hash{}, err
		}
		if !ok {
			return mmrhash.Hash{}, ErrCorruptDataStructure
		}
		builder.Chain(h.Bytes())
	}
	return builder.Finalize(), nil
}

// Push appends leafHash as a new leaf, backfilling any interior nodes the
// new leaf completes, and returns the position at which the last node
// written (the new top-most backfilled node, or the leaf itself if no
// backfill happened) now sits.
func (m *MMR) Push(leafHash mmrhash.Hash) (uint64, error) {
	empty, err := m.IsEmpty()
	if err != nil {
		return 0, err
	}
	if empty {
		idx, err := m.hashes.Push(leafHash)
		return uint64(idx), err
	}

	pos, err := m.Len()
	if err != nil {
		return 0, err
	}
	peakMap, height := PeakMapHeight(pos)
	if height != 0 {
		return 0, ErrCorruptDataStructure
	}

	if _, err := m.hashes.Push(leafHash); err != nil {
		return 0, err
	}

	peak := uint64(1)
	for peakMap&peak != 0 {
		leftSibling := pos + 1 - 2*peak
		leftHash := m.hashes.GetOrPanic(int(leftSibling))
		peak *= 2
		pos++

		n, err := m.hashes.Len()
		if err != nil {
			return 0, err
		}
		lastHash := m.hashes.GetOrPanic(n - 1)

		newHash := leftHash.HashWith(lastHash)
		if _, err := m.hashes.Push(newHash); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// Validate walks every interior node and recomputes its hash from its
// recorded children, failing fast on the first mismatch or missing node.
func (m *MMR) Validate() error {
	size, err := m.Len()
	if err != nil {
		return err
	}
	for n := uint64(0); n < size; n++ {
		height := BintreeHeight(n)
		if height == 0 {
			continue
		}
		hash, ok, err := m.GetNodeHash(n)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCorruptDataStructure
		}
		leftPos := n - (uint64(1) << height)
		rightPos := n - 1
		left, ok, err := m.GetNodeHash(leftPos)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCorruptDataStructure
		}
		right, ok, err := m.GetNodeHash(rightPos)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCorruptDataStructure
		}
		if left.HashWith(right) != hash {
			return ErrInvalidMerkleTree
		}
	}
	return nil
}

// FindLeafNode searches for hash among the leaves only, returning its leaf
// index. This is O(n) in the number of nodes; callers that can cache the
// index when they store the leaf should do so instead of calling this.
func (m *MMR) FindLeafNode(hash mmrhash.Hash) (uint64, bool, error) {
	size, err := m.Len()
	if err != nil {
		return 0, false, err
	}
	leafCount := NLeaves(size)
	for i := uint64(0); i < leafCount; i++ {
		h, ok, err := m.GetLeafHash(i)
		if err != nil {
			return 0, false, err
		}
		if ok && h == hash {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// Restore clears the backend and replays leafHashes through Push, leaving
// the MMR in the state that results from having pushed exactly those
// leaves in order.
func (m *MMR) Restore(leafHashes []mmrhash.Hash) error {
	if err := m.hashes.Clear(); err != nil {
		return err
	}
	for _, h := range leafHashes {
		if _, err := m.Push(h); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether m and other have the same Merkle root. Two MMRs
// with different backends (a full Slice and a pruned hash set, say) still
// compare equal once they've seen the same leaves.
func (m *MMR) Equal(other *MMR) (bool, error) {
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
