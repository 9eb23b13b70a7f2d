// Package proof builds and verifies Merkle inclusion proofs against an mmr
// accumulator. A proof is the sibling path from a candidate leaf up to its
// local peak, plus the remaining accumulator peaks; verifying recombines
// them and compares against a claimed root.
package proof

import (
	"errors"
	"fmt"

	"github.com/ekame-archive/gomerkleforest/mmr"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
)

var (
	// ErrNonLeafNode is returned by ForNode when pos does not name a leaf.
	ErrNonLeafNode = errors.New("proof: position is not a leaf node")
	// ErrIncorrectPeakMap is returned by Verify when the proof's peak count
	// does not match the canonical peak list for its recorded mmr size.
	ErrIncorrectPeakMap = errors.New("proof: incorrect peak map")
	// ErrRootMismatch is returned by Verify when the recombined root does
	// not equal the claimed root.
	ErrRootMismatch = errors.New("proof: root mismatch")
	// ErrUnexpected covers a structurally inconsistent proof: a parent
	// position that runs past the recorded mmr size.
	ErrUnexpected = errors.New("proof: inconsistent proof structure")
)

// ErrHashNotFound reports a node position whose hash could not be read
// while building or verifying a proof.
type ErrHashNotFound struct {
	Pos uint64
}

func (e ErrHashNotFound) Error() string {
	return fmt.Sprintf("proof: hash not found at position %d", e.Pos)
}

// MerkleProof proves that a leaf's hash is included in the mmr that had
// MMRSize nodes when the proof was built.
type MerkleProof struct {
	MMRSize uint64
	// Path holds the sibling hashes from the candidate node up to (but not
	// including) its local peak.
	Path []mmrhash.Hash
	// Peaks holds every accumulator peak hash except the local peak
	// committing the candidate node.
	Peaks []mmrhash.Hash
}

// ForLeafNode builds a proof for the leafPos-th leaf.
func ForLeafNode(m *mmr.MMR, leafPos uint64) (MerkleProof, error) {
	return generateProof(m, mmr.LeafIndexToPos(leafPos))
}

// ForNode builds a proof for the node at the given mmr position. pos must
// name a leaf; use ForLeafNode when you have a leaf index instead.
func ForNode(m *mmr.MMR, pos uint64) (MerkleProof, error) {
	if !mmr.IsLeaf(pos) {
		return MerkleProof{}, ErrNonLeafNode
	}
	return generateProof(m, pos)
}

func generateProof(m *mmr.MMR, pos uint64) (MerkleProof, error) {
	if _, ok, err := m.GetNodeHash(pos); err != nil {
		return MerkleProof{}, err
	} else if !ok {
		return MerkleProof{}, ErrHashNotFound{Pos: pos}
	}

	size, err := m.Len()
	if err != nil {
		return MerkleProof{}, err
	}

	branch := mmr.FamilyBranch(pos, size)

	path := make([]mmrhash.Hash, 0, len(branch))
	for _, step := range branch {
		h, ok, err := m.GetNodeHash(step.Sibling)
		if err != nil {
			return MerkleProof{}, err
		}
		if !ok {
			return MerkleProof{}, ErrHashNotFound{Pos: step.Sibling}
		}
		path = append(path, h)
	}

	peakPos := pos
	if len(branch) > 0 {
		peakPos = branch[len(branch)-1].Parent
	}

	peakPositions := mmr.FindPeaks(size)
	peakHashes := make([]mmrhash.Hash, 0, len(peakPositions))
	for _, p := range peakPositions {
		if p == peakPos {
			continue
		}
		h, ok, err := m.GetNodeHash(p)
		if err != nil {
			return MerkleProof{}, err
		}
		if !ok {
			return MerkleProof{}, ErrHashNotFound{Pos: p}
		}
		peakHashes = append(peakHashes, h)
	}

	return MerkleProof{MMRSize: size, Path: path, Peaks: peakHashes}, nil
}

// VerifyLeaf verifies that hash is the leafPos-th leaf committed by root.
func (p MerkleProof) VerifyLeaf(root mmrhash.Hash, hash mmrhash.Hash, leafPos uint64) error {
	return p.Verify(root, hash, mmr.LeafIndexToPos(leafPos))
}

// Verify verifies that hash, at mmr position pos, is committed by root
// through this proof.
func (p MerkleProof) Verify(root mmrhash.Hash, hash mmrhash.Hash, pos uint64) error {
	peaks := mmr.FindPeaks(p.MMRSize)

	path := p.Path
	for len(path) > 0 {
		sibling := path[0]
		path = path[1:]

		parentPos, _, isLeft := mmr.Family(pos)
		if parentPos > p.MMRSize {
			return ErrUnexpected
		}

		var parent mmrhash.Hash
		if isLeft {
			parent = hash.HashWith(sibling)
		} else {
			parent = sibling.HashWith(hash)
		}
		hash = parent
		pos = parentPos
	}

	calculated, err := p.checkRoot(hash, pos, peaks)
	if err != nil {
		return err
	}
	if calculated != root {
		return ErrRootMismatch
	}
	return nil
}

// checkRoot bags peaks together, substituting hash at position pos: the
// proof's peak list is always one shorter than the canonical list, since
// the local peak is reconstructed from the sibling path instead of carried
// explicitly.
func (p MerkleProof) checkRoot(hash mmrhash.Hash, pos uint64, peaks []uint64) (mmrhash.Hash, error) {
	if len(peaks) != len(p.Peaks)+1 {
		return mmrhash.Hash{}, ErrIncorrectPeakMap
	}

	builder := mmrhash.NewBuilder()
	remaining := p.Peaks
	for _, peakPos := range peaks {
		if peakPos == pos {
			builder.Chain(hash.Bytes())
			continue
		}
		builder.Chain(remaining[0].Bytes())
		remaining = remaining[1:]
	}
	return builder.Finalize(), nil
}

// String renders the proof for diagnostics: the mmr size it was built
// against, followed by the sibling path and peak list in hex.
func (p MerkleProof) String() string {
	s := fmt.Sprintf("MMR Size: %d\nSiblings:\n", p.MMRSize)
	for i, h := range p.Path {
		s += fmt.Sprintf("%3d: %s\n", i, h)
	}
	s += "Peaks:\n"
	for i, h := range p.Peaks {
		s += fmt.Sprintf("%3d: %s\n", i, h)
	}
	return s
}
