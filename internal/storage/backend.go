// Package storage implements component C2: the byte-addressable slot array
// that backs a table, either as an anonymous in-memory allocation or as a
// memory-mapped file shared across processes. Both backends expose the same
// Backend interface so the table and store facade never need to know which
// one they are talking to.
package storage

import (
	"errors"

	"github.com/theflywheel/maph/internal/slot"
)

// Sentinel errors returned by Backend implementations. Table and store code
// matches against these with errors.Is.
var (
	ErrInvalidFormat    = errors.New("storage: invalid file format")
	ErrPermissionDenied = errors.New("storage: permission denied")
	ErrIO               = errors.New("storage: io error")
)

// Backend is the storage capability set from spec.md §4.2. Index i must
// satisfy i < SlotCount() for every method below; callers (the table) are
// responsible for bounds-checking against the hasher's output.
type Backend interface {
	// SlotCount returns the number of slots, fixed for the life of the
	// backend.
	SlotCount() uint32

	// Read returns the committed (fingerprint, payload) for slot i, or
	// ok=false if the slot is empty.
	Read(i uint32) (fingerprint uint64, payload []byte, ok bool)

	// Write stores fingerprint/payload at slot i. Returns ErrValueTooLarge
	// (via slot.ErrValueTooLarge) if payload exceeds slot.PayloadMax, or
	// ErrPermissionDenied if the backend is read-only.
	Write(i uint32, fingerprint uint64, payload []byte) error

	// Clear empties slot i.
	Clear(i uint32) error

	// IsEmpty reports whether slot i currently holds no value.
	IsEmpty(i uint32) bool

	// FingerprintAt returns the fingerprint stored at slot i without
	// decoding the payload.
	FingerprintAt(i uint32) uint64

	// Sync requests durability of all prior writes. Fire-and-forget: it
	// issues the flush but does not block for the OS to confirm the data
	// reached physical media.
	Sync() error

	// Close releases the backend's resources (unmap, close file handle).
	Close() error

	// Generation returns the header-level monotonic write counter.
	Generation() uint64

	// ReadOnly reports whether the backend rejects mutation.
	ReadOnly() bool

	// IsOptimized reports the header's is_optimized flag.
	IsOptimized() bool

	// SetOptimized flips the header's is_optimized flag. Used only by the
	// store facade's optimize() pipeline.
	SetOptimized(bool) error
}

func slotOffset(i uint32) int64 {
	return int64(HeaderSize) + int64(i)*int64(slot.Size)
}
