// Package journal implements component C5: an append-only, checksummed log
// of every key ever inserted, used to recover the key set for a later
// optimize() pass without embedding keys in the slot array itself. The
// record format and torn-write recovery are grounded on the pack's WAL
// example (checksum | length | payload, truncate-at-first-bad-record).
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

const (
	checksumSize     = 4
	lengthSize       = 4
	recordHeaderSize = checksumSize + lengthSize
)

// Journal is an append-only key log. It is safe for concurrent Append
// calls; Keys/Truncate are meant for the optimize() pipeline, which already
// serializes against concurrent writers at the store layer.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Open opens (creating if necessary) the journal at path and recovers it,
// truncating any torn tail left by a crash mid-append.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{file: f}
	if err := j.recover(); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: recovery failed: %w", err)
	}
	j.w = bufio.NewWriter(f)
	return j, nil
}

// Append records key. Writes are buffered; call Flush before relying on the
// record surviving a crash.
func (j *Journal) Append(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	frame := make([]byte, recordHeaderSize+len(key))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(key)))
	copy(frame[recordHeaderSize:], key)
	checksum := crc32.ChecksumIEEE(frame[4:])
	binary.LittleEndian.PutUint32(frame[0:4], checksum)

	if _, err := j.w.Write(frame); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Flush guarantees every prior Append is durable on the journal's backing
// storage: it drains the buffered writer and fsyncs the file.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	return j.file.Sync()
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Truncate drops all records, reclaiming space after a clean MPH build
// has captured the key set elsewhere.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Truncate(0); err != nil {
		return fmt.Errorf("journal: truncate: %w", err)
	}
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("journal: seek: %w", err)
	}
	j.w = bufio.NewWriter(j.file)
	return nil
}

// Keys returns every distinct key recorded in the journal, deduplicated.
// It calls Flush first so a concurrently-buffered Append is included.
func (j *Journal) Keys() ([][]byte, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}

	it, err := j.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]struct{})
	var keys [][]byte
	for {
		key, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		k := string(key)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

// recover scans the log and truncates any partial or corrupted record at
// the tail, matching the grounding WAL example's torn-write recovery.
func (j *Journal) recover() error {
	stat, err := j.file.Stat()
	if err != nil {
		return err
	}

	size := stat.Size()
	var lastValid, pos int64

	for {
		if pos+recordHeaderSize > size {
			break
		}

		header := make([]byte, recordHeaderSize)
		if _, err := j.file.ReadAt(header, pos); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		expectedChecksum := binary.LittleEndian.Uint32(header[0:4])
		keyLen := binary.LittleEndian.Uint32(header[4:8])

		if pos+recordHeaderSize+int64(keyLen) > size {
			break
		}

		key := make([]byte, keyLen)
		if _, err := j.file.ReadAt(key, pos+recordHeaderSize); err != nil {
			return err
		}

		h := crc32.NewIEEE()
		h.Write(header[4:8])
		h.Write(key)
		if h.Sum32() != expectedChecksum {
			break
		}

		pos += recordHeaderSize + int64(keyLen)
		lastValid = pos
	}

	if lastValid < size {
		if err := j.file.Truncate(lastValid); err != nil {
			return fmt.Errorf("journal: truncate torn tail: %w", err)
		}
	}

	_, err = j.file.Seek(0, io.SeekEnd)
	return err
}

// Iterator replays journal records one at a time without deduplicating.
type Iterator struct {
	file *os.File
	pos  int64
	size int64
}

// Iterator returns a fresh replay cursor over the journal's current
// (recovered) contents. It calls Flush first.
func (j *Journal) Iterator() (*Iterator, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	stat, err := j.file.Stat()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(j.file.Name())
	if err != nil {
		return nil, err
	}

	return &Iterator{file: f, size: stat.Size()}, nil
}

// Next returns the next record's key, or io.EOF once exhausted.
func (it *Iterator) Next() ([]byte, error) {
	if it.pos+recordHeaderSize > it.size {
		return nil, io.EOF
	}

	header := make([]byte, recordHeaderSize)
	if _, err := it.file.ReadAt(header, it.pos); err != nil {
		return nil, err
	}

	expectedChecksum := binary.LittleEndian.Uint32(header[0:4])
	keyLen := binary.LittleEndian.Uint32(header[4:8])

	if it.pos+recordHeaderSize+int64(keyLen) > it.size {
		return nil, io.EOF
	}

	key := make([]byte, keyLen)
	if _, err := it.file.ReadAt(key, it.pos+recordHeaderSize); err != nil {
		return nil, err
	}

	h := crc32.NewIEEE()
	h.Write(header[4:8])
	h.Write(key)
	if h.Sum32() != expectedChecksum {
		return nil, fmt.Errorf("journal: checksum mismatch at offset %d", it.pos)
	}

	it.pos += recordHeaderSize + int64(keyLen)
	return key, nil
}

// Close releases the iterator's file handle.
func (it *Iterator) Close() error {
	return it.file.Close()
}
