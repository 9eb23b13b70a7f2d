// Package changetracker wraps a mutable MMR with a replayable log of
// checkpoints. It plays two roles at once: a write-side tracker that
// commits/rewinds/replays its own history, and a read-side cache that
// reconciles its view of a checkpoint log another writer is appending to.
// Think of it as version control for an MMR: base is the oldest state you
// can still reach, curr is HEAD, and the checkpoint log is the commit
// history in between.
package changetracker

import (
	"errors"

	"github.com/ekame-archive/gomerkleforest/bitmap"
	"github.com/ekame-archive/gomerkleforest/checkpoint"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/mutablemmr"
	"github.com/ekame-archive/gomerkleforest/prunedhashset"
	"github.com/ekame-archive/gomerkleforest/storage"
)

// ErrInvalidConfig is returned by New when MaxHistory < MinHistory.
var ErrInvalidConfig = errors.New("changetracker: max_history must be >= min_history")

// ErrOutOfRange is returned by GetCheckpoint for an index past the end of
// the log.
var ErrOutOfRange = errors.New("changetracker: checkpoint index out of range")

// Config bounds how much committed history the checkpoint log is allowed
// to hold before the oldest entries are folded into base.
type Config struct {
	// MinHistory is the minimum number of checkpoints kept in the log
	// after a promotion.
	MinHistory uint64
	// MaxHistory is the longest the log may be after a commit; a commit
	// that takes it past this length triggers a promotion.
	MaxHistory uint64
}

// ChangeTracker is an mmr whose history can be committed, rewound, and
// replayed. Read-only mmr operations address curr, the current head state;
// see the passthrough methods below.
type ChangeTracker struct {
	base *mutablemmr.MutableMmr
	curr *mutablemmr.MutableMmr

	checkpoints storage.Extended[checkpoint.Checkpoint]

	pendingAdds []mmrhash.Hash
	pendingDels *bitmap.Bitmap

	// baseCpIndex is how many of the log's current entries are already
	// folded into base. currCpIndex is how many are folded into curr.
	// In the self-contained write path (Commit/Rewind/Replay) promoted
	// entries are shifted off the log immediately, so baseCpIndex stays
	// at 0; Update, used when the log is shared with another writer,
	// advances it without truncating shared storage.
	baseCpIndex uint64
	currCpIndex uint64

	config Config
}

// New wraps base in a change tracker backed by the given checkpoint log.
// curr starts as a pruned copy of base with no checkpoints replayed.
func New(base *mutablemmr.MutableMmr, checkpoints storage.Extended[checkpoint.Checkpoint], cfg Config) (*ChangeTracker, error) {
	if cfg.MaxHistory < cfg.MinHistory {
		return nil, ErrInvalidConfig
	}
	curr, err := prunedhashset.PruneMutable(base)
	if err != nil {
		return nil, err
	}
	return &ChangeTracker{
		base:        base,
		curr:        curr,
		checkpoints: checkpoints,
		pendingDels: bitmap.New(),
		config:      cfg,
	}, nil
}

// CheckpointCount returns the number of committed checkpoints in the log.
func (t *ChangeTracker) CheckpointCount() (uint64, error) {
	n, err := t.checkpoints.Len()
	return uint64(n), err
}

// Push appends a leaf to curr and records it in the pending change set.
func (t *ChangeTracker) Push(hash mmrhash.Hash) (uint32, error) {
	n, err := t.curr.Push(hash)
	if err != nil {
		return 0, err
	}
	t.pendingAdds = append(t.pendingAdds, hash)
	return n, nil
}

// DeleteAndCompress marks leafIndex deleted in curr and records it in the
// pending change set. See mutablemmr.MutableMmr.DeleteAndCompress for the
// compress flag's meaning.
func (t *ChangeTracker) DeleteAndCompress(leafIndex uint32, compress bool) bool {
	ok := t.curr.DeleteAndCompress(leafIndex, compress)
	if ok {
		t.pendingDels.Add(leafIndex)
	}
	return ok
}

// Delete marks leafIndex deleted and compresses curr's deletion bitmap.
func (t *ChangeTracker) Delete(leafIndex uint32) bool {
	return t.DeleteAndCompress(leafIndex, true)
}

// Compress compresses curr's deletion bitmap.
func (t *ChangeTracker) Compress() bool {
	return t.curr.Compress()
}

// Commit moves the pending change set into a new checkpoint appended to
// the log. If the log then exceeds MaxHistory, the oldest
// MaxHistory-MinHistory+1 checkpoints are folded into base and shifted off
// the log's front.
func (t *ChangeTracker) Commit() error {
	added := t.pendingAdds
	t.pendingAdds = nil
	deleted := t.pendingDels
	t.pendingDels = bitmap.New()

	cp := checkpoint.New(added, deleted)
	if _, err := t.checkpoints.Push(cp); err != nil {
		return err
	}
	t.currCpIndex++

	n, err := t.CheckpointCount()
	if err != nil {
		return err
	}
	if n <= t.config.MaxHistory {
		return nil
	}

	histCommitCount := t.config.MaxHistory - t.config.MinHistory + 1
	for i := uint64(0); i < histCommitCount; i++ {
		v, ok, err := t.checkpoints.Get(int(i))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := v.Apply(t.base); err != nil {
			return err
		}
	}
	t.base.Compress()
	if err := t.checkpoints.Shift(int(histCommitCount)); err != nil {
		return err
	}
	t.currCpIndex -= histCommitCount
	return nil
}

// Reset discards the pending change set, keeping all committed history.
func (t *ChangeTracker) Reset() error {
	n, err := t.CheckpointCount()
	if err != nil {
		return err
	}
	return t.Replay(n)
}

// Rewind discards the pending change set and moves curr back stepsBack
// committed checkpoints, truncating the log to match.
func (t *ChangeTracker) Rewind(stepsBack uint64) error {
	n, err := t.CheckpointCount()
	if err != nil {
		return err
	}
	if stepsBack > n {
		stepsBack = n
	}
	return t.Replay(n - stepsBack)
}

// RewindToStart replaces curr with a pruned copy of base and discards the
// pending change set. The log itself is untouched.
func (t *ChangeTracker) RewindToStart() error {
	curr, err := prunedhashset.PruneMutable(t.base)
	if err != nil {
		return err
	}
	t.curr = curr
	t.pendingAdds = nil
	t.pendingDels = bitmap.New()
	t.currCpIndex = t.baseCpIndex
	return nil
}

// Replay truncates the log to its first n entries, rebuilds curr from a
// pruned copy of base, and applies those n checkpoints in order. It
// returns the first error encountered while applying; truncation is not
// undone if a later checkpoint fails to apply.
func (t *ChangeTracker) Replay(n uint64) error {
	if err := t.checkpoints.Truncate(int(n)); err != nil {
		return err
	}

	curr, err := prunedhashset.PruneMutable(t.base)
	if err != nil {
		return err
	}
	t.pendingAdds = nil
	t.pendingDels = bitmap.New()

	var firstErr error
	applyErr := t.checkpoints.ForEach(func(cp checkpoint.Checkpoint, err error) {
		if firstErr != nil {
			return
		}
		if err != nil {
			firstErr = err
			return
		}
		if err := cp.Apply(curr); err != nil {
			firstErr = err
		}
	})
	if applyErr != nil {
		return applyErr
	}

	curr.Compress()
	t.curr = curr
	t.currCpIndex = n
	return firstErr
}

// Update reconciles curr and base against a checkpoint log that may have
// grown, shrunk, or been replaced by another writer since the last call:
//
//   - if the log is now shorter than what base already reflects, base is
//     rebuilt from scratch and curr follows;
//   - if it's shorter than what curr reflects but not base, only curr is
//     rebuilt;
//   - if it has grown, checkpoints beyond MinHistory of the new tail are
//     folded into base (without truncating the shared log) before curr is
//     rebuilt.
func (t *ChangeTracker) Update() error {
	logLen, err := t.CheckpointCount()
	if err != nil {
		return err
	}

	switch {
	case logLen < t.baseCpIndex:
		if err := t.base.Clear(); err != nil {
			return err
		}
		if err := t.applyRange(t.base, 0, logLen); err != nil {
			return err
		}
		t.base.Compress()
		t.baseCpIndex = logLen
	case logLen > t.currCpIndex:
		promotable := uint64(0)
		if logLen > t.config.MinHistory {
			promotable = logLen - t.config.MinHistory
		}
		if promotable > t.baseCpIndex {
			if err := t.applyRange(t.base, t.baseCpIndex, promotable); err != nil {
				return err
			}
			t.base.Compress()
			t.baseCpIndex = promotable
		}
	}
	// logLen < currCpIndex (short reorg) and the full-rebuild and advance
	// branches above all fall through to a curr rebuild; logLen == currCpIndex
	// with nothing promoted needs none.
	if logLen != t.currCpIndex {
		return t.rebuildCurr()
	}
	return nil
}

func (t *ChangeTracker) applyRange(m *mutablemmr.MutableMmr, from, to uint64) error {
	for i := from; i < to; i++ {
		cp, ok, err := t.checkpoints.Get(int(i))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := cp.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (t *ChangeTracker) rebuildCurr() error {
	curr, err := prunedhashset.PruneMutable(t.base)
	if err != nil {
		return err
	}
	logLen, err := t.CheckpointCount()
	if err != nil {
		return err
	}
	if err := t.applyRange(curr, t.baseCpIndex, logLen); err != nil {
		return err
	}
	curr.Compress()
	t.curr = curr
	t.currCpIndex = logLen
	t.pendingAdds = nil
	t.pendingDels = bitmap.New()
	return nil
}

// GetCheckpoint returns the i-th committed checkpoint.
func (t *ChangeTracker) GetCheckpoint(i uint64) (checkpoint.Checkpoint, error) {
	cp, ok, err := t.checkpoints.Get(int(i))
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if !ok {
		return checkpoint.Checkpoint{}, ErrOutOfRange
	}
	return cp, nil
}

// Restore replaces base with baseState, clears the checkpoint log, and
// rebuilds curr from the restored base.
func (t *ChangeTracker) Restore(baseState mutablemmr.LeafNodes) error {
	if err := t.base.Restore(baseState); err != nil {
		return err
	}
	if err := t.checkpoints.Clear(); err != nil {
		return err
	}
	t.baseCpIndex = 0
	return t.RewindToStart()
}

// The following passthrough methods address curr, the current head
// state.

func (t *ChangeTracker) Len() uint32 { return t.curr.Len() }

func (t *ChangeTracker) IsEmpty() (bool, error) { return t.curr.IsEmpty() }

func (t *ChangeTracker) GetLeafHash(leafIndex uint32) (mmrhash.Hash, bool, error) {
	return t.curr.GetLeafHash(leafIndex)
}

func (t *ChangeTracker) GetLeafStatus(leafIndex uint32) (mmrhash.Hash, bool, bool, error) {
	return t.curr.GetLeafStatus(leafIndex)
}

func (t *ChangeTracker) GetLeafCount() uint32 { return t.curr.GetLeafCount() }

func (t *ChangeTracker) GetMerkleRoot() (mmrhash.Hash, error) { return t.curr.GetMerkleRoot() }

func (t *ChangeTracker) GetMmrOnlyRoot() (mmrhash.Hash, error) { return t.curr.GetMmrOnlyRoot() }

func (t *ChangeTracker) Validate() error { return t.curr.Validate() }

func (t *ChangeTracker) FindLeafNode(hash mmrhash.Hash) (uint64, bool, error) {
	return t.curr.FindLeafNode(hash)
}

// Curr exposes the current head mutable mmr directly, e.g. for building
// inclusion proofs against it.
func (t *ChangeTracker) Curr() *mutablemmr.MutableMmr { return t.curr }

// Base exposes the anchor mutable mmr directly.
func (t *ChangeTracker) Base() *mutablemmr.MutableMmr { return t.base }
