package storage

import (
	"github.com/theflywheel/maph/internal/slot"
)

// Memory is the in-memory Backend variant: a single heap-allocated,
// zero-initialized byte array holding the header followed by num_slots
// slots. It never touches disk, so Sync and Close are no-ops beyond
// releasing the reference.
type Memory struct {
	data     []byte
	numSlots uint32
	readOnly bool
}

// NewMemory allocates an in-memory backend with numSlots zeroed slots.
func NewMemory(numSlots uint32) *Memory {
	data := make([]byte, HeaderSize+int(numSlots)*slot.Size)
	newHeader(data[:HeaderSize], uint64(numSlots))
	return &Memory{data: data, numSlots: numSlots}
}

func (m *Memory) header() header { return header{raw: m.data[:HeaderSize]} }

func (m *Memory) slotBytes(i uint32) []byte {
	off := slotOffset(i)
	return m.data[off : off+int64(slot.Size)]
}

func (m *Memory) SlotCount() uint32 { return m.numSlots }

func (m *Memory) Read(i uint32) (uint64, []byte, bool) {
	return slot.Read(m.slotBytes(i))
}

func (m *Memory) Write(i uint32, fingerprint uint64, payload []byte) error {
	if m.readOnly {
		return ErrPermissionDenied
	}
	if err := slot.Write(m.slotBytes(i), fingerprint, payload); err != nil {
		return err
	}
	m.header().bumpGeneration()
	return nil
}

func (m *Memory) Clear(i uint32) error {
	if m.readOnly {
		return ErrPermissionDenied
	}
	slot.Clear(m.slotBytes(i))
	m.header().bumpGeneration()
	return nil
}

func (m *Memory) IsEmpty(i uint32) bool { return slot.IsEmpty(m.slotBytes(i)) }

func (m *Memory) FingerprintAt(i uint32) uint64 { return slot.FingerprintAt(m.slotBytes(i)) }

func (m *Memory) Sync() error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) Generation() uint64 { return m.header().generation() }

func (m *Memory) ReadOnly() bool { return m.readOnly }

func (m *Memory) IsOptimized() bool { return m.header().isOptimized() }

func (m *Memory) SetOptimized(v bool) error {
	if m.readOnly {
		return ErrPermissionDenied
	}
	m.header().setOptimized(v)
	return nil
}

var _ Backend = (*Memory)(nil)
