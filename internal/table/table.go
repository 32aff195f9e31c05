// Package table implements component C6: a table composes a probe-sequence
// hasher with a storage backend to give get/set/remove/contains semantics
// over arbitrary byte keys, plus the batch and statistics operations the
// store facade needs. Cross-slot writer concurrency is serialized here with
// a single mutex, matching spec.md §5's requirement that callers serialize
// writes across slots themselves.
package table

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/theflywheel/maph/internal/hasher"
	"github.com/theflywheel/maph/internal/slot"
	"github.com/theflywheel/maph/internal/storage"
)

// Sentinel errors for table-level operations.
var (
	ErrKeyNotFound      = errors.New("table: key not found")
	ErrTableFull        = errors.New("table: probe sequence exhausted")
	ErrPermissionDenied = storage.ErrPermissionDenied
	ErrValueTooLarge    = slot.ErrValueTooLarge
)

// Pair is one key/value entry for SetBatch.
type Pair struct {
	Key   []byte
	Value []byte
}

// Result is one entry of a GetBatch response, position-aligned with the
// input keys slice.
type Result struct {
	Value []byte
	Found bool
}

// Stats mirrors spec.md §4.6's table statistics.
type Stats struct {
	TotalSlots    uint32
	UsedSlots     uint32
	LoadFactor    float64
	Generation    uint64
	CollisionRate float64
}

// Table composes a probe-sequence hasher with a storage backend.
type Table struct {
	// setsIssued/probesIssuedOnSet are accessed via sync/atomic and kept
	// first in the struct so 64-bit alignment holds on 32-bit platforms
	// too (see the sync/atomic package docs).
	setsIssued        uint64
	probesIssuedOnSet uint64

	backend storage.Backend
	probe   *hasher.ProbeSequence

	mu        sync.Mutex
	usedSlots uint32
}

// New returns a Table over backend addressed by probe. The backend and
// probe's underlying index hasher must agree on slot count.
func New(backend storage.Backend, probe *hasher.ProbeSequence) *Table {
	t := &Table{backend: backend, probe: probe}
	t.RecountUsedSlots()
	return t
}

// Backend exposes the underlying storage backend for the store facade's
// optimize() pipeline, which must rewrite storage directly rather than
// through the probing path.
func (t *Table) Backend() storage.Backend { return t.backend }

// RecountUsedSlots rescans the backend to recompute the used-slot count.
// Called by the store facade after optimize() rewrites storage directly,
// so Table's bookkeeping never drifts from the backend's actual contents.
func (t *Table) RecountUsedSlots() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var used uint32
	n := t.backend.SlotCount()
	for i := uint32(0); i < n; i++ {
		if !t.backend.IsEmpty(i) {
			used++
		}
	}
	t.usedSlots = used
}

// Get returns the value stored for key, walking the probe sequence and
// halting at the first stably-empty slot (a miss) or the first slot whose
// fingerprint matches (a hit), per spec.md §4.6's fingerprint-then-empty
// semantics.
func (t *Table) Get(key []byte) ([]byte, bool) {
	fp := hasher.Fingerprint(key)

	var value []byte
	found := false
	t.probe.Each(key, func(i uint32) bool {
		if t.backend.IsEmpty(i) {
			return false // stably empty: miss, stop probing
		}
		if t.backend.FingerprintAt(i) != fp {
			return true // keep probing
		}
		gotFP, payload, ok := t.backend.Read(i)
		if ok && gotFP == fp {
			value = payload
			found = true
		}
		return false
	})
	return value, found
}

// Contains reports whether key is present, without decoding its payload.
func (t *Table) Contains(key []byte) bool {
	fp := hasher.Fingerprint(key)
	found := false
	t.probe.Each(key, func(i uint32) bool {
		if t.backend.IsEmpty(i) {
			return false
		}
		if t.backend.FingerprintAt(i) == fp {
			found = true
			return false
		}
		return true
	})
	return found
}

// Set writes value for key, reusing an empty slot or updating in place a
// slot whose fingerprint already matches key. Returns ErrTableFull if no
// qualifying slot is found within max_probes, or ErrValueTooLarge if value
// exceeds the slot payload capacity (the target slot is left unchanged).
func (t *Table) Set(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fp := hasher.Fingerprint(key)

	var target uint32
	targetFound := false
	atomic.AddUint64(&t.setsIssued, 1)

	t.probe.Each(key, func(i uint32) bool {
		atomic.AddUint64(&t.probesIssuedOnSet, 1)
		if t.backend.IsEmpty(i) || t.backend.FingerprintAt(i) == fp {
			target = i
			targetFound = true
			return false
		}
		return true
	})

	if !targetFound {
		return fmt.Errorf("%w", ErrTableFull)
	}

	wasEmpty := t.backend.IsEmpty(target)
	if err := t.backend.Write(target, fp, value); err != nil {
		return err
	}
	if wasEmpty {
		t.usedSlots++
	}
	return nil
}

// Remove clears the slot holding key, if present. Probe chains are not
// repacked: a later Get still halts correctly at the freshly emptied slot
// because stably-empty slots are always misses (spec.md §4.6).
func (t *Table) Remove(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fp := hasher.Fingerprint(key)

	var target uint32
	found := false
	t.probe.Each(key, func(i uint32) bool {
		if t.backend.IsEmpty(i) {
			return false
		}
		if t.backend.FingerprintAt(i) == fp {
			target = i
			found = true
			return false
		}
		return true
	})

	if !found {
		return ErrKeyNotFound
	}

	if err := t.backend.Clear(target); err != nil {
		return err
	}
	t.usedSlots--
	return nil
}

// ReadAt, WriteAt, and ClearAt give the store facade single-shot access to
// a specific slot index, used for the MPH lookup path in hybrid mode and
// during optimize()'s storage rewrite. They keep Table's used-slot
// bookkeeping consistent with direct backend mutation.
func (t *Table) ReadAt(i uint32) (uint64, []byte, bool) {
	return t.backend.Read(i)
}

func (t *Table) WriteAt(i uint32, fingerprint uint64, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasEmpty := t.backend.IsEmpty(i)
	if err := t.backend.Write(i, fingerprint, payload); err != nil {
		return err
	}
	if wasEmpty {
		t.usedSlots++
	}
	return nil
}

func (t *Table) ClearAt(i uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.backend.IsEmpty(i) {
		return nil
	}
	if err := t.backend.Clear(i); err != nil {
		return err
	}
	t.usedSlots--
	return nil
}

// GetBatch fetches every key in keys, parallelizing the (read-only) lookups
// across workers. Semantically equivalent to N sequential Get calls.
func (t *Table) GetBatch(keys [][]byte) []Result {
	results := make([]Result, len(keys))

	var g errgroup.Group
	workers := runtime.GOMAXPROCS(0)
	if workers > len(keys) {
		workers = len(keys)
	}
	if workers < 1 {
		return results
	}

	chunk := (len(keys) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(keys) {
			break
		}
		if end > len(keys) {
			end = len(keys)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				value, ok := t.Get(keys[i])
				results[i] = Result{Value: value, Found: ok}
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// SetBatch applies every pair, spreading the pairs across worker
// goroutines; each pair goes through Set, which holds Table's mutex for its
// whole hash, slot search and write, so those steps are serialized. Returns
// the number of pairs successfully written; it does not abort on the first
// failure.
func (t *Table) SetBatch(pairs []Pair) int {
	var succeeded int64

	var g errgroup.Group
	workers := runtime.GOMAXPROCS(0)
	if workers > len(pairs) {
		workers = len(pairs)
	}
	if workers < 1 {
		return 0
	}

	chunk := (len(pairs) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(pairs) {
			break
		}
		if end > len(pairs) {
			end = len(pairs)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := t.Set(pairs[i].Key, pairs[i].Value); err == nil {
					atomic.AddInt64(&succeeded, 1)
				}
			}
			return nil
		})
	}
	g.Wait()

	return int(succeeded)
}

// Stats reports the table's current statistics.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	used := t.usedSlots
	t.mu.Unlock()

	total := t.backend.SlotCount()
	var loadFactor float64
	if total > 0 {
		loadFactor = float64(used) / float64(total)
	}

	sets := atomic.LoadUint64(&t.setsIssued)
	probes := atomic.LoadUint64(&t.probesIssuedOnSet)
	var collisionRate float64
	if sets > 0 {
		collisionRate = float64(probes) / float64(sets)
	}

	return Stats{
		TotalSlots:    total,
		UsedSlots:     used,
		LoadFactor:    loadFactor,
		Generation:    t.backend.Generation(),
		CollisionRate: collisionRate,
	}
}

// ResetStats zeroes the lifetime collision-rate counters. UsedSlots is not
// affected: it reflects actual store contents, not a lifetime counter.
func (t *Table) ResetStats() {
	atomic.StoreUint64(&t.setsIssued, 0)
	atomic.StoreUint64(&t.probesIssuedOnSet, 0)
}
