package storage

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"github.com/theflywheel/maph/internal/slot"
)

// File is the memory-mapped Backend variant. The backing file is exactly
// HeaderSize + numSlots*slot.Size bytes, mapped MAP_SHARED so that every
// process mapping the same file observes the same writes (spec.md §4.2 and
// §5's "hybrid direct-read consumers" contract). This mirrors the teacher's
// own syscall.Mmap usage almost verbatim; the additions are read-only
// mapping support and the header/flags bookkeeping from spec.md §6.
type File struct {
	f        *os.File
	data     []byte
	numSlots uint32
	readOnly bool
}

// Create truncates (or creates) path to the right size, writes a fresh
// header, and maps it read-write.
func Create(path string, numSlots uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}

	size := int64(HeaderSize) + int64(numSlots)*int64(slot.Size)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: truncate %s: %v", ErrIO, path, err)
	}

	data, err := mmap(f, size, false)
	if err != nil {
		f.Close()
		return nil, err
	}

	newHeader(data[:HeaderSize], uint64(numSlots))

	return &File{f: f, data: data, numSlots: numSlots}, nil
}

// Open maps an existing store file. readOnly selects a read-only mapping
// that rejects mutation with ErrPermissionDenied instead of touching the
// file.
func Open(path string, readOnly bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}

	data, err := mmap(f, fi.Size(), readOnly)
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr, err := openHeader(data)
	if err != nil {
		syscall.Munmap(data)
		f.Close()
		return nil, err
	}

	return &File{
		f:        f,
		data:     data,
		numSlots: uint32(hdr.numSlots()),
		readOnly: readOnly,
	}, nil
}

func mmap(f *os.File, size int64, readOnly bool) ([]byte, error) {
	prot := syscall.PROT_READ
	if !readOnly {
		prot |= syscall.PROT_WRITE
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), prot, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrIO, err)
	}
	return data, nil
}

func (s *File) header() header { return header{raw: s.data[:HeaderSize]} }

func (s *File) slotBytes(i uint32) []byte {
	off := slotOffset(i)
	return s.data[off : off+int64(slot.Size)]
}

func (s *File) SlotCount() uint32 { return s.numSlots }

func (s *File) Read(i uint32) (uint64, []byte, bool) {
	return slot.Read(s.slotBytes(i))
}

func (s *File) Write(i uint32, fingerprint uint64, payload []byte) error {
	if s.readOnly {
		return ErrPermissionDenied
	}
	if err := slot.Write(s.slotBytes(i), fingerprint, payload); err != nil {
		return err
	}
	s.header().bumpGeneration()
	return nil
}

func (s *File) Clear(i uint32) error {
	if s.readOnly {
		return ErrPermissionDenied
	}
	slot.Clear(s.slotBytes(i))
	s.header().bumpGeneration()
	return nil
}

func (s *File) IsEmpty(i uint32) bool { return slot.IsEmpty(s.slotBytes(i)) }

func (s *File) FingerprintAt(i uint32) uint64 { return slot.FingerprintAt(s.slotBytes(i)) }

// Sync requests an asynchronous flush of the mapping to disk, matching the
// reference maph.hpp's use of msync(..., MS_ASYNC): it does not block for
// the OS to confirm data reached physical media.
func (s *File) Sync() error {
	if s.readOnly {
		return nil
	}
	if len(s.data) == 0 {
		return nil
	}
	_, _, errno := syscall.Syscall(syscall.SYS_MSYNC, uintptr(unsafe.Pointer(&s.data[0])), uintptr(len(s.data)), syscall.MS_ASYNC)
	if errno != 0 {
		return fmt.Errorf("%w: msync: %v", ErrIO, errno)
	}
	return nil
}

func (s *File) Close() error {
	if err := syscall.Munmap(s.data); err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrIO, err)
	}
	return s.f.Close()
}

func (s *File) Generation() uint64 { return s.header().generation() }

func (s *File) ReadOnly() bool { return s.readOnly }

func (s *File) IsOptimized() bool { return s.header().isOptimized() }

func (s *File) SetOptimized(v bool) error {
	if s.readOnly {
		return ErrPermissionDenied
	}
	s.header().setOptimized(v)
	return nil
}

var _ Backend = (*File)(nil)
