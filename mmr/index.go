package mmr

// This file is the position algebra underlying the whole package: given
// nothing but an integer, it tells you a node's height, its peaks, its
// family, and the leaf it corresponds to. No hash ever enters into it.

import "math/bits"

// BintreeHeight returns the height of node p. Leaves have height 0.
func BintreeHeight(p uint64) uint64 {
	return posHeight(p + 1)
}

// posHeight walks a one-based position down to the nearest "all ones"
// position, which by construction sits at the top of a perfect subtree; the
// bit length of what's left, minus one, is the height.
func posHeight(pos uint64) uint64 {
	for !allOnes(pos) {
		pos = jumpLeftPerfect(pos)
	}
	return bitLength64(pos) - 1
}

func jumpLeftPerfect(pos uint64) uint64 {
	msb := uint64(1) << (bitLength64(pos) - 1)
	return pos - (msb - 1)
}

func bitLength64(n uint64) uint64 { return uint64(bits.Len64(n)) }

func allOnes(n uint64) bool {
	return (uint64(1)<<bits.OnesCount64(n))-1 == n
}

// IsLeaf reports whether p is a leaf position.
func IsLeaf(p uint64) bool {
	return BintreeHeight(p) == 0
}

// PeakMapHeight treats p as the next slot to be written in an MMR and
// returns a bitmask whose set bits mark the heights of the peaks that would
// exist immediately before that write, along with the height at which the
// write would land. For any p that is a legally-reached MMR size, that
// height is always 0; a non-zero remainder means p is not a valid size.
func PeakMapHeight(p uint64) (peakMap uint64, height uint64) {
	if p == 0 {
		return 0, 0
	}
	peakSize := ^uint64(0) >> bits.LeadingZeros64(p)
	rem := p
	for peakSize != 0 {
		peakMap <<= 1
		if rem >= peakSize {
			rem -= peakSize
			peakMap |= 1
		}
		peakSize >>= 1
	}
	return peakMap, rem
}

// NLeaves returns the number of leaves present in an MMR of the given size.
// The peak map bitmap and the leaf count are the same integer: each set bit
// at height h contributes a peak covering 2^h leaves, and the 1-bits of a
// leaf count are exactly the heights of the peaks that hold it.
func NLeaves(size uint64) uint64 {
	peakMap, _ := PeakMapHeight(size)
	return peakMap
}

// FindPeaks returns the zero-based positions of an MMR's peaks, ordered
// left to right (tallest first). It returns nil if size is zero or is not
// a position reachable by Push.
func FindPeaks(size uint64) []uint64 {
	if size == 0 {
		return nil
	}
	peakMap, rem := PeakMapHeight(size)
	if rem != 0 {
		return nil
	}
	var peaks []uint64
	pos := uint64(0)
	for bit := 63; bit >= 0; bit-- {
		if peakMap&(uint64(1)<<uint(bit)) != 0 {
			pos += (uint64(1) << (uint(bit) + 1)) - 1
			peaks = append(peaks, pos-1)
		}
	}
	return peaks
}

// LeafIndexToPos returns the node position of the k-th leaf (k zero-based).
func LeafIndexToPos(k uint64) uint64 {
	sum := uint64(0)
	for k > 0 {
		h := uint64(bits.Len64(k))
		sum += (uint64(1) << h) - 1
		k -= uint64(1) << (h - 1)
	}
	return sum
}

// Family returns the parent and sibling positions of p, and whether p is
// the left-hand child of that parent. It is undefined for p that is
// currently a peak: callers establish that by walking FamilyBranch or by
// checking p against FindPeaks first.
func Family(p uint64) (parent uint64, sibling uint64, isLeft bool) {
	height := BintreeHeight(p)
	if BintreeHeight(p+1) > height {
		// p is the right child; p+1 sits one level up.
		parent = p + 1
		sibling = p - siblingOffset(height)
		return parent, sibling, false
	}
	sibling = p + siblingOffset(height)
	parent = sibling + 1
	return parent, sibling, true
}

func siblingOffset(height uint64) uint64 {
	return (uint64(2) << height) - 1
}

// FamilyStep is one hop on the path from a node to its local peak.
type FamilyStep struct {
	Parent  uint64
	Sibling uint64
	IsLeft  bool
}

// FamilyBranch walks from p up to (but not including) the peak of the MMR
// of the given size, returning the ordered parent/sibling pairs along the
// way. The walk stops as soon as the computed parent would fall outside the
// tree, which is exactly when p is itself a peak.
func FamilyBranch(p uint64, size uint64) []FamilyStep {
	var path []FamilyStep
	pos := p
	for pos < size {
		parent, sibling, isLeft := Family(pos)
		if parent >= size {
			break
		}
		path = append(path, FamilyStep{Parent: parent, Sibling: sibling, IsLeft: isLeft})
		pos = parent
	}
	return path
}

// LeftAncestors returns, from lowest to highest, the position of the
// left-hand sibling subtree rooted at each step up from p to the top of
// p's own perfect subtree. It does not cross into a different peak's
// subtree: unlike FamilyBranch it is a pure function of p (no size bound),
// so it is only meaningful for reasoning about p's interior structure, not
// for walking an inclusion path.
func LeftAncestors(p uint64) []uint64 {
	height := BintreeHeight(p)
	if height < 1 {
		return nil
	}
	height--

	var ancestors []uint64
	pos := p
	for BintreeHeight(pos) > height {
		ancestors = append(ancestors, pos-(uint64(2)<<height))
		pos++
		height++
	}
	return ancestors
}
