package proof

import (
	"encoding/binary"
	"errors"

	"github.com/ekame-archive/gomerkleforest/mmrhash"
)

// ErrTruncatedWireData is returned by Decode when the input ends before a
// length it has already committed to reading.
var ErrTruncatedWireData = errors.New("proof: truncated wire data")

// Encode serializes p as:
//
//	u64     mmr_size
//	varint  path_len
//	path_len x 32-byte hash
//	varint  peaks_len
//	peaks_len x 32-byte hash
func (p MerkleProof) Encode() []byte {
	buf := make([]byte, 8, 8+9+len(p.Path)*mmrhash.Size+9+len(p.Peaks)*mmrhash.Size)
	binary.BigEndian.PutUint64(buf, p.MMRSize)

	buf = appendVarint(buf, uint64(len(p.Path)))
	for _, h := range p.Path {
		buf = append(buf, h.Bytes()...)
	}
	buf = appendVarint(buf, uint64(len(p.Peaks)))
	for _, h := range p.Peaks {
		buf = append(buf, h.Bytes()...)
	}
	return buf
}

// Decode parses the layout written by Encode.
func Decode(data []byte) (MerkleProof, error) {
	if len(data) < 8 {
		return MerkleProof{}, ErrTruncatedWireData
	}
	size := binary.BigEndian.Uint64(data[:8])
	rest := data[8:]

	pathLen, rest, err := readVarint(rest)
	if err != nil {
		return MerkleProof{}, err
	}
	path, rest, err := readHashes(rest, pathLen)
	if err != nil {
		return MerkleProof{}, err
	}

	peaksLen, rest, err := readVarint(rest)
	if err != nil {
		return MerkleProof{}, err
	}
	peaks, _, err := readHashes(rest, peaksLen)
	if err != nil {
		return MerkleProof{}, err
	}

	return MerkleProof{MMRSize: size, Path: path, Peaks: peaks}, nil
}

func readHashes(data []byte, n uint64) ([]mmrhash.Hash, []byte, error) {
	out := make([]mmrhash.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		if uint64(len(data)) < uint64(mmrhash.Size) {
			return nil, nil, ErrTruncatedWireData
		}
		h, _ := mmrhash.FromBytes(data[:mmrhash.Size])
		out = append(out, h)
		data = data[mmrhash.Size:]
	}
	return out, data, nil
}

// appendVarint writes v using the standard small-value-in-one-byte
// encoding, escaping to 0xFD/0xFE/0xFF for 16/32/64-bit widths.
func appendVarint(buf []byte, v uint64) []byte {
	switch {
	case v < 0xFD:
		return append(buf, byte(v))
	case v <= 0xFFFF:
		buf = append(buf, 0xFD)
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(v))
		return append(buf, tmp[:]...)
	case v <= 0xFFFFFFFF:
		buf = append(buf, 0xFE)
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	default:
		buf = append(buf, 0xFF)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		return append(buf, tmp[:]...)
	}
}

func readVarint(data []byte) (uint64, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrTruncatedWireData
	}
	switch b := data[0]; {
	case b < 0xFD:
		return uint64(b), data[1:], nil
	case b == 0xFD:
		if len(data) < 3 {
			return 0, nil, ErrTruncatedWireData
		}
		return uint64(binary.LittleEndian.Uint16(data[1:3])), data[3:], nil
	case b == 0xFE:
		if len(data) < 5 {
			return 0, nil, ErrTruncatedWireData
		}
		return uint64(binary.LittleEndian.Uint32(data[1:5])), data[5:], nil
	default:
		if len(data) < 9 {
			return 0, nil, ErrTruncatedWireData
		}
		return binary.LittleEndian.Uint64(data[1:9]), data[9:], nil
	}
}
