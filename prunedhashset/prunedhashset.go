// Package prunedhashset provides a Storage backend that retains only the
// accumulator peaks of a base MMR plus whatever hashes have been pushed
// since. Dropping it into mmr.New gives back a fully functional MMR that
// can keep growing without ever having materialized, or without still
// holding, the hashes before the base point.
package prunedhashset

import (
	"fmt"
	"sort"

	"github.com/ekame-archive/gomerkleforest/mmr"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/mutablemmr"
)

// ErrHashNotFound reports a base-mmr position expected to be a peak (and
// therefore readable) that turned out to be absent.
type ErrHashNotFound struct {
	Pos uint64
}

func (e ErrHashNotFound) Error() string {
	return fmt.Sprintf("prunedhashset: hash not found at position %d", e.Pos)
}

// PrunedHashSet is a Store[mmrhash.Hash] holding only a base MMR's peak
// hashes plus a tail of hashes pushed after the base point. Positions
// below the base offset resolve only if they are one of the retained
// peaks; everything else there returns ok=false, matching what a pruned
// MMR is supposed to do: forget the interior, keep the accumulator.
type PrunedHashSet struct {
	baseOffset  int
	peakIndices []int
	peakHashes  []mmrhash.Hash
	hashes      []mmrhash.Hash
}

// FromMMR snapshots base's current peaks into a new pruned hash set.
func FromMMR(base *mmr.MMR) (*PrunedHashSet, error) {
	n, err := base.Len()
	if err != nil {
		return nil, err
	}
	peaks := mmr.FindPeaks(n)
	peakIndices := make([]int, 0, len(peaks))
	peakHashes := make([]mmrhash.Hash, 0, len(peaks))
	for _, p := range peaks {
		h, ok, err := base.GetNodeHash(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrHashNotFound{Pos: p}
		}
		peakIndices = append(peakIndices, int(p))
		peakHashes = append(peakHashes, h)
	}
	return &PrunedHashSet{baseOffset: int(n), peakIndices: peakIndices, peakHashes: peakHashes}, nil
}

func (p *PrunedHashSet) Len() (int, error) {
	return p.baseOffset + len(p.hashes), nil
}

func (p *PrunedHashSet) Push(value mmrhash.Hash) (int, error) {
	p.hashes = append(p.hashes, value)
	return p.baseOffset + len(p.hashes) - 1, nil
}

func (p *PrunedHashSet) Get(index int) (mmrhash.Hash, bool, error) {
	if index < 0 {
		return mmrhash.Hash{}, false, nil
	}
	if index < p.baseOffset {
		i := sort.SearchInts(p.peakIndices, index)
		if i < len(p.peakIndices) && p.peakIndices[i] == index {
			return p.peakHashes[i], true, nil
		}
		return mmrhash.Hash{}, false, nil
	}
	i := index - p.baseOffset
	if i >= len(p.hashes) {
		return mmrhash.Hash{}, false, nil
	}
	return p.hashes[i], true, nil
}

func (p *PrunedHashSet) GetOrPanic(index int) mmrhash.Hash {
	v, ok, _ := p.Get(index)
	if !ok {
		panic("prunedhashset: GetOrPanic called on an absent index")
	}
	return v
}

func (p *PrunedHashSet) Clear() error {
	p.baseOffset = 0
	p.peakIndices = nil
	p.peakHashes = nil
	p.hashes = nil
	return nil
}

// Prune builds a pruned MMR backed by base's current peaks. The result is
// a fully functional mmr.MMR that can keep growing; leaf hashes before the
// base point are simply gone.
func Prune(base *mmr.MMR) (*mmr.MMR, error) {
	backend, err := FromMMR(base)
	if err != nil {
		return nil, err
	}
	return mmr.New(backend), nil
}

// PruneMutable is Prune for a mutablemmr.MutableMmr: the deletion bitmap
// and leaf count carry over unchanged, only the underlying mmr is pruned.
func PruneMutable(m *mutablemmr.MutableMmr) (*mutablemmr.MutableMmr, error) {
	pruned, err := Prune(m.MMR())
	if err != nil {
		return nil, err
	}
	result, err := mutablemmr.From(pruned)
	if err != nil {
		return nil, err
	}
	result.Deleted().OrInPlace(m.Deleted())
	return result, nil
}

// CalculatePrunedMmrRoot computes the root that would result from applying
// additions and deletions to src, without mutating src: it prunes a
// scratch copy, applies the changes there, and reads off the root.
func CalculatePrunedMmrRoot(src *mutablemmr.MutableMmr, additions []mmrhash.Hash, deletions []uint32) (mmrhash.Hash, error) {
	scratch, err := PruneMutable(src)
	if err != nil {
		return mmrhash.Hash{}, err
	}
	for _, h := range additions {
		if _, err := scratch.Push(h); err != nil {
			return mmrhash.Hash{}, err
		}
	}
	for _, idx := range deletions {
		scratch.Delete(idx)
	}
	return scratch.GetMerkleRoot()
}

// CalculateMmrRoot is CalculatePrunedMmrRoot for a plain mmr.MMR: only
// additions are possible.
func CalculateMmrRoot(src *mmr.MMR, additions []mmrhash.Hash) (mmrhash.Hash, error) {
	scratch, err := Prune(src)
	if err != nil {
		return mmrhash.Hash{}, err
	}
	for _, h := range additions {
		if _, err := scratch.Push(h); err != nil {
			return mmrhash.Hash{}, err
		}
	}
	return scratch.GetMerkleRoot()
}
