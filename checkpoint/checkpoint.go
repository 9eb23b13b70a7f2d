// Package checkpoint defines the unit of history a change tracker commits:
// the hashes pushed and the leaves deleted since the previous checkpoint.
// Its wire form is CBOR, chosen because it supports both compact
// array-style and self-describing map-style records, which is exactly
// what interoperating with generic (de)serialization frameworks requires.
package checkpoint

import (
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/ekame-archive/gomerkleforest/bitmap"
	"github.com/ekame-archive/gomerkleforest/mmrhash"
	"github.com/ekame-archive/gomerkleforest/mutablemmr"
)

// ErrDuplicateField and ErrMissingField report malformed map-style records:
// a field given twice, or a required field never given.
var (
	ErrDuplicateField = errors.New("checkpoint: duplicate field in encoded record")
	ErrMissingField   = errors.New("checkpoint: required field missing from encoded record")
)

// mapDecMode rejects duplicate map keys outright instead of silently
// keeping the last value, so a map-style record with a repeated field
// decodes as ErrDuplicateField rather than quietly collapsing.
var mapDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Checkpoint is the recorded diff between two change tracker states: the
// leaf hashes added and the bitmap of leaf indices deleted.
type Checkpoint struct {
	NodesAdded   []mmrhash.Hash
	NodesDeleted *bitmap.Bitmap
}

// New builds a checkpoint from its parts. A nil deleted bitmap is treated
// as empty.
func New(nodesAdded []mmrhash.Hash, nodesDeleted *bitmap.Bitmap) Checkpoint {
	if nodesDeleted == nil {
		nodesDeleted = bitmap.New()
	}
	return Checkpoint{NodesAdded: nodesAdded, NodesDeleted: nodesDeleted}
}

// Apply replays this checkpoint onto m: every added hash is pushed, and
// the deletion bitmap is unioned in directly (not compressed; callers
// applying several checkpoints in a row should compress once at the end).
func (c Checkpoint) Apply(m *mutablemmr.MutableMmr) error {
	for _, h := range c.NodesAdded {
		if _, err := m.Push(h); err != nil {
			return err
		}
	}
	m.Deleted().OrInPlace(c.NodesDeleted)
	return nil
}

// sequence is the compact, array-encoded wire record: [nodes_added,
// nodes_deleted].
type sequence struct {
	_            struct{} `cbor:",toarray"`
	NodesAdded   [][]byte
	NodesDeleted []byte
}

// MarshalCBOR encodes c as a compact two-element CBOR array. See
// UnmarshalCBOR for the matching map-style acceptance.
func (c Checkpoint) MarshalCBOR() ([]byte, error) {
	added := make([][]byte, len(c.NodesAdded))
	for i, h := range c.NodesAdded {
		added[i] = append([]byte(nil), h.Bytes()...)
	}
	deleted := c.NodesDeleted
	if deleted == nil {
		deleted = bitmap.New()
	}
	deletedBytes, err := deleted.Serialize()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(sequence{NodesAdded: added, NodesDeleted: deletedBytes})
}

// UnmarshalCBOR decodes c from either the compact array form MarshalCBOR
// produces, or an equivalent CBOR map keyed by "nodes_added"/
// "nodes_deleted". A duplicate or missing field in the map form is a hard
// error.
func (c *Checkpoint) UnmarshalCBOR(data []byte) error {
	if isCBORArray(data) {
		var seq sequence
		if err := cbor.Unmarshal(data, &seq); err != nil {
			return err
		}
		return c.fromParts(seq.NodesAdded, seq.NodesDeleted)
	}

	var raw map[string]cbor.RawMessage
	if err := mapDecMode.Unmarshal(data, &raw); err != nil {
		if isDupMapKeyError(err) {
			return ErrDuplicateField
		}
		return err
	}

	v, haveAdded := raw["nodes_added"]
	var addedRaw [][]byte
	if haveAdded {
		if err := cbor.Unmarshal(v, &addedRaw); err != nil {
			return err
		}
	}
	v, haveDeleted := raw["nodes_deleted"]
	var deletedRaw []byte
	if haveDeleted {
		if err := cbor.Unmarshal(v, &deletedRaw); err != nil {
			return err
		}
	}
	if !haveAdded || !haveDeleted {
		return ErrMissingField
	}
	return c.fromParts(addedRaw, deletedRaw)
}

func (c *Checkpoint) fromParts(addedRaw [][]byte, deletedRaw []byte) error {
	added := make([]mmrhash.Hash, 0, len(addedRaw))
	for _, b := range addedRaw {
		h, ok := mmrhash.FromBytes(b)
		if !ok {
			return errors.New("checkpoint: malformed hash in nodes_added")
		}
		added = append(added, h)
	}
	deleted, err := bitmap.Deserialize(deletedRaw)
	if err != nil {
		return err
	}
	c.NodesAdded = added
	c.NodesDeleted = deleted
	return nil
}

// isCBORArray reports whether the outermost CBOR item is an array (major
// type 4), as opposed to a map (major type 5).
func isCBORArray(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return data[0]>>5 == 4
}

// isDupMapKeyError reports whether err is the decoder's signal that a
// map-style record repeated a key, as configured by mapDecMode's
// DupMapKeyEnforcedAPF.
func isDupMapKeyError(err error) bool {
	var dupErr *cbor.DupMapKeyError
	return errors.As(err, &dupErr)
}
