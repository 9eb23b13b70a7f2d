package bitmap

import "testing"

func TestAddContainsCardinality(t *testing.T) {
	b := New()
	b.Add(1)
	b.Add(5)
	b.Add(9)
	if !b.Contains(5) || b.Contains(6) {
		t.Fatalf("Contains mismatch")
	}
	if b.Cardinality() != 3 {
		t.Fatalf("Cardinality() = %d, want 3", b.Cardinality())
	}
}

func TestOrInPlace(t *testing.T) {
	a := New()
	a.Add(1)
	other := New()
	other.Add(2)
	other.Add(3)
	a.OrInPlace(other)
	if a.Cardinality() != 3 || !a.Contains(2) || !a.Contains(3) {
		t.Fatalf("OrInPlace did not union correctly")
	}
}

func TestRemoveRangeClosedIsInclusive(t *testing.T) {
	b := New()
	for i := uint32(0); i < 10; i++ {
		b.Add(i)
	}
	b.RemoveRangeClosed(3, 5)
	for _, i := range []uint32{3, 4, 5} {
		if b.Contains(i) {
			t.Fatalf("RemoveRangeClosed(3,5) left %d present", i)
		}
	}
	if !b.Contains(2) || !b.Contains(6) {
		t.Fatalf("RemoveRangeClosed(3,5) removed neighbours outside the range")
	}
}

func TestSerializeDeterministicAfterCompression(t *testing.T) {
	a := New()
	for i := uint32(0); i < 100; i += 2 {
		a.Add(i)
	}
	b := a.Clone()

	a.RunOptimize()
	b.RunOptimize()

	sa, err := a.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	sb, err := b.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if string(sa) != string(sb) {
		t.Fatalf("two equal, independently-compressed bitmaps serialized differently")
	}

	restored, err := Deserialize(sa)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Cardinality() != a.Cardinality() {
		t.Fatalf("Deserialize round trip lost members: got %d, want %d", restored.Cardinality(), a.Cardinality())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New()
	a.Add(1)
	b := a.Clone()
	b.Add(2)
	if a.Contains(2) {
		t.Fatalf("Clone() shares state with the original")
	}
}
