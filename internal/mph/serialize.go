package mph

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// magic identifies a serialized CHD artifact. Distinct from storage.Magic:
// this is an embedded artifact, not a standalone file.
const magic uint32 = 0x4D504843 // "MPHC"

// ErrCorruptArtifact is returned by Deserialize when the byte stream is too
// short, carries the wrong magic, or an unrecognized seed width.
var ErrCorruptArtifact = errors.New("mph: corrupt serialized artifact")

// header layout: magic(4) | keyCount(8) | numBuckets(8) | salt(8) | width(1) | seedCount(8) | rankWords(8)
const serializedHeaderSize = 4 + 8 + 8 + 8 + 1 + 8 + 8

// Serialize encodes h as a byte-exact, deterministic artifact. Deserializing
// the result yields a Hasher with identical SlotFor behavior. The rank
// bitset is serialized alongside the seed table; its prefix-sum index is
// cheap enough to recompute on Deserialize rather than store.
func (h *Hasher) Serialize() []byte {
	seedBytes := h.seedTable.bytes()
	rankWords := h.rank.occ.words
	rankBytes := make([]byte, len(rankWords)*8)
	for i, w := range rankWords {
		binary.LittleEndian.PutUint64(rankBytes[i*8:], w)
	}

	out := make([]byte, serializedHeaderSize+len(seedBytes)+len(rankBytes))

	binary.LittleEndian.PutUint32(out[0:], magic)
	binary.LittleEndian.PutUint64(out[4:], h.keyCount)
	binary.LittleEndian.PutUint64(out[12:], h.numBuckets)
	binary.LittleEndian.PutUint64(out[20:], h.salt)
	out[28] = h.seedTable.width
	binary.LittleEndian.PutUint64(out[29:], uint64(h.seedTable.len()))
	binary.LittleEndian.PutUint64(out[37:], uint64(len(rankWords)))
	copy(out[serializedHeaderSize:], seedBytes)
	copy(out[serializedHeaderSize+len(seedBytes):], rankBytes)

	return out
}

// Deserialize decodes an artifact previously produced by Serialize.
func Deserialize(data []byte) (*Hasher, error) {
	if len(data) < serializedHeaderSize {
		return nil, fmt.Errorf("%w: too short", ErrCorruptArtifact)
	}
	if got := binary.LittleEndian.Uint32(data[0:]); got != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptArtifact, got)
	}

	keyCount := binary.LittleEndian.Uint64(data[4:])
	numBuckets := binary.LittleEndian.Uint64(data[12:])
	salt := binary.LittleEndian.Uint64(data[20:])
	width := data[28]
	seedCount := binary.LittleEndian.Uint64(data[29:])
	rankWordCount := binary.LittleEndian.Uint64(data[37:])

	if width != 1 && width != 2 && width != 4 {
		return nil, fmt.Errorf("%w: unrecognized seed width %d", ErrCorruptArtifact, width)
	}

	rest := data[serializedHeaderSize:]
	seedWant := int(seedCount) * int(width)
	if len(rest) < seedWant {
		return nil, fmt.Errorf("%w: truncated seed table", ErrCorruptArtifact)
	}
	rest = rest[seedWant:]
	rankWant := int(rankWordCount) * 8
	if len(rest) < rankWant {
		return nil, fmt.Errorf("%w: truncated rank bitset", ErrCorruptArtifact)
	}

	rankWords := make([]uint64, rankWordCount)
	for i := range rankWords {
		rankWords[i] = binary.LittleEndian.Uint64(rest[i*8:])
	}

	return &Hasher{
		keyCount:   keyCount,
		numBuckets: numBuckets,
		salt:       salt,
		seedTable:  unpackSeeds(width, int(seedCount), data[serializedHeaderSize:serializedHeaderSize+seedWant]),
		rank:       newRanker(&bitset{words: rankWords}),
	}, nil
}
