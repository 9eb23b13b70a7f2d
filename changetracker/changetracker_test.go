package changetracker

import (
	"testing"

	"github.com/ekame-archive/gomerkleforest/checkpoint"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/mutablemmr"
	"github.com/ekame-archive/gomerkleforest/storage"
)

func leafHash(b byte) mmrhash.Hash {
	var h mmrhash.Hash
	h[0] = b
	return h
}

func newTracker(t *testing.T, cfg Config) *ChangeTracker {
	t.Helper()
	base := mutablemmr.New(storage.NewSlice[mmrhash.Hash]())
	ct, err := New(base, storage.NewSlice[checkpoint.Checkpoint](), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return ct
}

func TestNewRejectsInvertedHistoryBounds(t *testing.T) {
	base := mutablemmr.New(storage.NewSlice[mmrhash.Hash]())
	_, err := New(base, storage.NewSlice[checkpoint.Checkpoint](), Config{MinHistory: 5, MaxHistory: 2})
	if err != ErrInvalidConfig {
		t.Fatalf("New with MaxHistory < MinHistory = %v, want ErrInvalidConfig", err)
	}
}

func TestCommitMakesPendingDurable(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	ct.Push(leafHash(0))
	ct.Push(leafHash(1))
	ct.Delete(0)

	if err := ct.Commit(); err != nil {
		t.Fatal(err)
	}
	n, err := ct.CheckpointCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("CheckpointCount() = %d, want 1", n)
	}
	if ct.GetLeafCount() != 2 {
		t.Fatalf("GetLeafCount() = %d, want 2", ct.GetLeafCount())
	}
}

func TestRewindUndoesCommits(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	ct.Push(leafHash(0))
	if err := ct.Commit(); err != nil {
		t.Fatal(err)
	}
	rootAfterFirst, err := ct.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}

	ct.Push(leafHash(1))
	if err := ct.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := ct.Rewind(1); err != nil {
		t.Fatal(err)
	}
	rootAfterRewind, err := ct.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	if rootAfterFirst != rootAfterRewind {
		t.Fatalf("root after Rewind(1) = %x, want %x", rootAfterRewind, rootAfterFirst)
	}
	if ct.GetLeafCount() != 1 {
		t.Fatalf("GetLeafCount() after rewind = %d, want 1", ct.GetLeafCount())
	}
}

func TestResetDiscardsPendingOnly(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	ct.Push(leafHash(0))
	if err := ct.Commit(); err != nil {
		t.Fatal(err)
	}
	committedRoot, err := ct.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}

	ct.Push(leafHash(1))
	ct.Delete(0)

	if err := ct.Reset(); err != nil {
		t.Fatal(err)
	}
	root, err := ct.GetMerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root != committedRoot {
		t.Fatalf("root after Reset = %x, want %x", root, committedRoot)
	}
}

func TestRewindToStartIgnoresLog(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	ct.Push(leafHash(0))
	if err := ct.Commit(); err != nil {
		t.Fatal(err)
	}
	ct.Push(leafHash(1))

	if err := ct.RewindToStart(); err != nil {
		t.Fatal(err)
	}
	if !(ct.GetLeafCount() == 0) {
		t.Fatalf("GetLeafCount() after RewindToStart = %d, want 0", ct.GetLeafCount())
	}
	n, err := ct.CheckpointCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("RewindToStart must not touch the log, got CheckpointCount() = %d, want 1", n)
	}
}

func TestCommitPromotesPastMaxHistory(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 1, MaxHistory: 2})
	for i := byte(0); i < 5; i++ {
		ct.Push(leafHash(i))
		if err := ct.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	n, err := ct.CheckpointCount()
	if err != nil {
		t.Fatal(err)
	}
	if n > ct.config.MaxHistory {
		t.Fatalf("CheckpointCount() = %d, exceeds MaxHistory %d", n, ct.config.MaxHistory)
	}
	if ct.GetLeafCount() != 5 {
		t.Fatalf("GetLeafCount() = %d, want 5 (promotion must not lose leaves)", ct.GetLeafCount())
	}
}

func TestGetCheckpointOutOfRange(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	if _, err := ct.GetCheckpoint(0); err != ErrOutOfRange {
		t.Fatalf("GetCheckpoint(0) on empty log = %v, want ErrOutOfRange", err)
	}
	ct.Push(leafHash(0))
	ct.Commit()
	cp, err := ct.GetCheckpoint(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.NodesAdded) != 1 || cp.NodesAdded[0] != leafHash(0) {
		t.Fatalf("GetCheckpoint(0) = %+v, want a single added leaf %x", cp, leafHash(0))
	}
}

func TestRestoreClearsLogAndResetsBase(t *testing.T) {
	ct := newTracker(t, Config{MinHistory: 10, MaxHistory: 20})
	ct.Push(leafHash(0))
	ct.Commit()
	ct.Push(leafHash(1))
	ct.Commit()

	if err := ct.Restore(mutablemmr.LeafNodes{}); err != nil {
		t.Fatal(err)
	}
	n, err := ct.CheckpointCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("CheckpointCount() after Restore = %d, want 0", n)
	}
	if ct.GetLeafCount() != 0 {
		t.Fatalf("GetLeafCount() after Restore = %d, want 0", ct.GetLeafCount())
	}
}

// Pushing straight onto log simulates a second writer appending to the
// backing checkpoint log behind the tracker's back, the scenario Update is
// for.
func TestUpdateAdvanceBranchPromotesPastMinHistory(t *testing.T) {
	base := mutablemmr.New(storage.NewSlice[mmrhash.Hash]())
	log := storage.NewSlice[checkpoint.Checkpoint]()
	ct, err := New(base, log, Config{MinHistory: 1, MaxHistory: 100})
	if err != nil {
		t.Fatal(err)
	}

	for i := byte(0); i < 3; i++ {
		cp := checkpoint.New([]mmrhash.Hash{leafHash(i)}, nil)
		if _, err := log.Push(cp); err != nil {
			t.Fatal(err)
		}
	}

	if err := ct.Update(); err != nil {
		t.Fatal(err)
	}
	if ct.GetLeafCount() != 3 {
		t.Fatalf("GetLeafCount() after Update = %d, want 3", ct.GetLeafCount())
	}
	if ct.baseCpIndex == 0 {
		t.Fatalf("Update did not promote any checkpoints toward base despite exceeding MinHistory")
	}
	if ct.baseCpIndex >= 3 {
		t.Fatalf("Update promoted the full log, want at least MinHistory=1 left unpromoted")
	}
}

func TestUpdateShortReorgRebuildsCurr(t *testing.T) {
	base := mutablemmr.New(storage.NewSlice[mmrhash.Hash]())
	log := storage.NewSlice[checkpoint.Checkpoint]()
	ct, err := New(base, log, Config{MinHistory: 10, MaxHistory: 100})
	if err != nil {
		t.Fatal(err)
	}

	for i := byte(0); i < 3; i++ {
		log.Push(checkpoint.New([]mmrhash.Hash{leafHash(i)}, nil))
	}
	if err := ct.Update(); err != nil {
		t.Fatal(err)
	}
	if ct.GetLeafCount() != 3 {
		t.Fatalf("GetLeafCount() = %d, want 3", ct.GetLeafCount())
	}

	if err := log.Truncate(1); err != nil {
		t.Fatal(err)
	}
	if err := ct.Update(); err != nil {
		t.Fatal(err)
	}
	if ct.GetLeafCount() != 1 {
		t.Fatalf("GetLeafCount() after short reorg = %d, want 1", ct.GetLeafCount())
	}
}
