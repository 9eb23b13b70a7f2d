package mutablemmr

import (
	"testing"

	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/storage"
)

func leafHash(b byte) mmrhash.Hash {
	var h mmrhash.Hash
	h[0] = b
	return h
}

func TestPushIncrementsLeafCountRegardlessOfDeletion(t *testing.T) {
	m := New(storage.NewSlice[mmrhash.Hash]())
	for i := byte(0); i < 5; i++ {
		if _, err := m.Push(leafHash(i)); err != nil {
			t.Fatal(err)
		}
	}
	if m.GetLeafCount() != 5 {
		t.Fatalf("GetLeafCount() = %d, want 5", m.GetLeafCount())
	}
	if m.Len() != 5 {
		t.Fatalf("Len() = %d, want 5 before any deletion", m.Len())
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := New(storage.NewSlice[mmrhash.Hash]())
	for i := byte(0); i < 4; i++ {
		m.Push(leafHash(i))
	}
	if !m.Delete(1) {
		t.Fatalf("Delete(1) first call returned false")
	}
	if m.Delete(1) {
		t.Fatalf("Delete(1) second call returned true, want false (idempotent)")
	}
	if m.Len() != 3 {
		t.Fatalf("Len() after deleting one of four leaves = %d, want 3", m.Len())
	}
	_, ok, _ := m.GetLeafHash(1)
	if ok {
		t.Fatalf("GetLeafHash(1) reported present after deletion")
	}
}

func TestDeleteOutOfRange(t *testing.T) {
	m := New(storage.NewSlice[mmrhash.Hash]())
	m.Push(leafHash(0))
	if m.Delete(99) {
		t.Fatalf("Delete(99) on a 1-leaf mmr returned true, want false")
	}
}

func TestRootChangesWithDeletion(t *testing.T) {
	m := New(storage.NewSlice[mmrhash.Hash]())
	for i := byte(0); i < 4; i++ {
		m.Push(leafHash(i))
	}
	before, err := m.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	m.Delete(2)
	after, err := m.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Fatalf("GetMerkleRoot() unchanged after a deletion")
	}
	mmrOnly, err := m.GetMmrOnlyRoot()
	if err != nil {
		t.Fatal(err)
	}
	if mmrOnly == after {
		t.Fatalf("GetMmrOnlyRoot() should differ from GetMerkleRoot() once something is deleted")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	src := New(storage.NewSlice[mmrhash.Hash]())
	for i := byte(0); i < 6; i++ {
		src.Push(leafHash(i))
	}
	src.Delete(2)
	src.Delete(4)

	state, err := src.ToLeafNodes(0, 6)
	if err != nil {
		t.Fatal(err)
	}

	dst := New(storage.NewSlice[mmrhash.Hash]())
	if err := dst.Restore(state); err != nil {
		t.Fatal(err)
	}

	equal, err := src.Equal(dst)
	if err != nil || !equal {
		t.Fatalf("Equal() after Restore = (%v, %v), want (true, nil)", equal, err)
	}
}

func TestCombineMergesLeafNodes(t *testing.T) {
	a := LeafNodes{LeafHashes: []mmrhash.Hash{leafHash(1), leafHash(2)}}
	b := New(storage.NewSlice[mmrhash.Hash]())
	b.Push(leafHash(3))
	b.Delete(0)
	bs, err := b.ToLeafNodes(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	a.Combine(bs)
	if len(a.LeafHashes) != 3 {
		t.Fatalf("Combine() produced %d leaf hashes, want 3", len(a.LeafHashes))
	}
}

func TestClearResetsState(t *testing.T) {
	m := New(storage.NewSlice[mmrhash.Hash]())
	m.Push(leafHash(1))
	m.Delete(0)
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	empty, err := m.IsEmpty()
	if err != nil || !empty {
		t.Fatalf("IsEmpty() after Clear() = (%v, %v), want (true, nil)", empty, err)
	}
	if m.GetLeafCount() != 0 {
		t.Fatalf("GetLeafCount() after Clear() = %d, want 0", m.GetLeafCount())
	}
}
