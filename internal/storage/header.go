package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/theflywheel/maph/internal/slot"
)

// Magic identifies a maph store file, matching the "MAPH" constant from the
// original C++ implementation's file format (spec.md §6).
const Magic uint32 = 0x4D415048

// FormatVersion is the on-disk format version written by this package.
const FormatVersion uint32 = 1

// HeaderSize is the size in bytes of the header block. It is exactly one
// slot's worth of space, so slot addressing stays a simple multiple of
// slot.Size.
const HeaderSize = slot.Size

const (
	offMagic      = 0
	offVersion    = 4
	offNumSlots   = 8
	offSlotSize   = 16
	offGeneration = 24
	offFlags      = 32
)

const flagOptimized = 1 << 0

// header is the decoded view of the first HeaderSize bytes of a store file.
// It is always backed by a live byte slice (header.raw) so that Generation
// and IsOptimized changes are visible immediately to every mapping of the
// same file.
type header struct {
	raw []byte
}

func newHeader(raw []byte, numSlots uint64) header {
	h := header{raw: raw}
	binary.LittleEndian.PutUint32(raw[offMagic:], Magic)
	binary.LittleEndian.PutUint32(raw[offVersion:], FormatVersion)
	binary.LittleEndian.PutUint64(raw[offNumSlots:], numSlots)
	binary.LittleEndian.PutUint64(raw[offSlotSize:], uint64(slot.Size))
	binary.LittleEndian.PutUint64(raw[offGeneration:], 0)
	binary.LittleEndian.PutUint32(raw[offFlags:], 0)
	return h
}

func openHeader(raw []byte) (header, error) {
	h := header{raw: raw}
	if len(raw) < HeaderSize {
		return header{}, fmt.Errorf("%w: file too small for a header", ErrInvalidFormat)
	}
	if magic := binary.LittleEndian.Uint32(raw[offMagic:]); magic != Magic {
		return header{}, fmt.Errorf("%w: bad magic %#x", ErrInvalidFormat, magic)
	}
	if v := binary.LittleEndian.Uint32(raw[offVersion:]); v != FormatVersion {
		return header{}, fmt.Errorf("%w: unsupported format version %d", ErrInvalidFormat, v)
	}
	if ss := binary.LittleEndian.Uint64(raw[offSlotSize:]); ss != uint64(slot.Size) {
		return header{}, fmt.Errorf("%w: slot size %d != %d", ErrInvalidFormat, ss, slot.Size)
	}
	return h, nil
}

func (h header) numSlots() uint64 {
	return binary.LittleEndian.Uint64(h.raw[offNumSlots:])
}

func (h header) generation() uint64 {
	return binary.LittleEndian.Uint64(h.raw[offGeneration:])
}

func (h header) bumpGeneration() {
	g := binary.LittleEndian.Uint64(h.raw[offGeneration:])
	binary.LittleEndian.PutUint64(h.raw[offGeneration:], g+1)
}

func (h header) isOptimized() bool {
	return binary.LittleEndian.Uint32(h.raw[offFlags:])&flagOptimized != 0
}

func (h header) setOptimized(v bool) {
	flags := binary.LittleEndian.Uint32(h.raw[offFlags:])
	if v {
		flags |= flagOptimized
	} else {
		flags &^= flagOptimized
	}
	binary.LittleEndian.PutUint32(h.raw[offFlags:], flags)
}
