// Package bitmap wraps a compressed bitmap of 32-bit leaf indices, used to
// track deletions. The concrete implementation is
// github.com/RoaringBitmap/roaring/v2.
package bitmap

import "github.com/RoaringBitmap/roaring/v2"

// Bitmap is an opaque, compressible set of uint32 values.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.NewBitmap()}
}

// Add marks i as a member of the set.
func (b *Bitmap) Add(i uint32) {
	b.rb.Add(i)
}

// Contains reports whether i is a member of the set.
func (b *Bitmap) Contains(i uint32) bool {
	return b.rb.Contains(i)
}

// Cardinality returns the number of members in the set.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// OrInPlace unions other into b.
func (b *Bitmap) OrInPlace(other *Bitmap) {
	b.rb.Or(other.rb)
}

// RemoveRangeClosed removes every member in [lo, hi], inclusive of both
// ends.
func (b *Bitmap) RemoveRangeClosed(lo, hi uint32) {
	if lo > hi {
		return
	}
	b.rb.RemoveRange(uint64(lo), uint64(hi)+1)
}

// RunOptimize compresses runs of consecutive members. The root-bearing
// serialization of a mutable MMR is only deterministic once this has been
// called: an uncompressed and a compressed bitmap holding the same members
// serialize differently.
func (b *Bitmap) RunOptimize() bool {
	return b.rb.RunOptimize()
}

// Clone returns an independent copy of b.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone()}
}

// Serialize returns the portable binary encoding of b.
func (b *Bitmap) Serialize() ([]byte, error) {
	return b.rb.MarshalBinary()
}

// Deserialize reconstructs a bitmap from the portable encoding produced by
// Serialize.
func Deserialize(data []byte) (*Bitmap, error) {
	rb := roaring.NewBitmap()
	if err := rb.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &Bitmap{rb: rb}, nil
}
