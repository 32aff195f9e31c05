// Package maph provides an embeddable key-value store backed by a
// memory-mapped, fixed-slot hash table, with an optional transition to a
// minimal-perfect-hash lookup path once the key set stabilizes.
//
// Basic usage:
//
//	store, err := maph.Create("data.maph", maph.WithNumSlots(1<<20))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Set([]byte("hello"), []byte("world")); err != nil {
//		log.Fatal(err)
//	}
//	value, ok := store.Get([]byte("hello"))
package maph

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/theflywheel/maph/internal/hasher"
	"github.com/theflywheel/maph/internal/journal"
	"github.com/theflywheel/maph/internal/mph"
	"github.com/theflywheel/maph/internal/storage"
	"github.com/theflywheel/maph/internal/table"
)

// Pair is one key/value entry for SetBatch.
type Pair = table.Pair

// Result is one entry of a GetBatch response, position-aligned with the
// input keys slice.
type Result = table.Result

// Store is the facade over a table, its lifecycle, and its optional
// minimal-perfect-hash lookup path (component C7).
type Store struct {
	cfg *config

	path        string
	journalPath string

	mu      sync.RWMutex // held exclusively only during Optimize and Close
	tbl     *table.Table
	journal *journal.Journal
	perfect *mph.Hasher // nil until Optimize succeeds at least once

	logger  *zap.Logger
	metrics metricsSink
}

func mphSidecarPath(path string) string { return path + ".mph" }

func defaultJournalPath(path string) string { return path + ".journal" }

// Create initializes a new store. path may be empty for a pure in-memory
// store (no journal unless WithJournalPath is given).
func Create(path string, opts ...Option) (*Store, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, wrapErr("create", err)
	}

	var backend storage.Backend
	if path == "" {
		backend = storage.NewMemory(cfg.numSlots)
	} else {
		backend, err = storage.Create(path, cfg.numSlots)
		if err != nil {
			return nil, wrapErr("create", err)
		}
	}

	s, err := newStore(path, cfg, backend)
	if err != nil {
		return nil, err
	}
	s.logger.Info("store created", zap.String("path", path), zap.Uint32("num_slots", cfg.numSlots))
	return s, nil
}

// Open attaches to an existing store file, validating its header and
// reattaching a persisted MPH artifact if one exists.
func Open(path string, opts ...Option) (*Store, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, wrapErr("open", err)
	}

	backend, err := storage.Open(path, cfg.readOnly)
	if err != nil {
		return nil, wrapErr("open", err)
	}

	s, err := newStore(path, cfg, backend)
	if err != nil {
		return nil, err
	}

	if backend.IsOptimized() {
		data, err := os.ReadFile(mphSidecarPath(path))
		if err != nil {
			s.Close()
			return nil, wrapErr("open", fmt.Errorf("%w: is_optimized set but sidecar missing: %v", ErrInvalidFormat, err))
		}
		perfect, err := mph.Deserialize(data)
		if err != nil {
			s.Close()
			return nil, wrapErr("open", err)
		}
		s.perfect = perfect
	}

	s.logger.Info("store opened", zap.String("path", path), zap.Bool("read_only", cfg.readOnly), zap.Bool("optimized", backend.IsOptimized()))
	return s, nil
}

func newStore(path string, cfg *config, backend storage.Backend) (*Store, error) {
	if cfg.cacheSlots > 0 {
		backend = storage.NewCached(backend, cfg.cacheSlots)
	}

	idx := hasher.NewStandard(backend.SlotCount())
	probe := hasher.NewProbeSequence(idx, cfg.maxProbes)
	tbl := table.New(backend, probe)

	s := &Store{
		cfg:     cfg,
		path:    path,
		tbl:     tbl,
		logger:  cfg.logger,
		metrics: newMetricsSink(cfg.registry),
	}

	jPath := cfg.journalPath
	if jPath == "" && path != "" {
		jPath = defaultJournalPath(path)
	}
	s.journalPath = jPath

	if jPath != "" && !cfg.readOnly {
		j, err := journal.Open(jPath)
		if err != nil {
			backend.Close()
			return nil, wrapErr("open", err)
		}
		s.journal = j
	}

	return s, nil
}

// Get returns the value stored for key.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.lookup(key)
	s.metrics.incGet(ok)
	return value, ok
}

// lookup implements the hybrid read path (spec.md §4.7): consult the MPH
// artifact first when present, falling back to the probing path. Callers
// must hold s.mu (read or write).
func (s *Store) lookup(key []byte) ([]byte, bool) {
	if s.perfect != nil {
		if idx, ok := s.perfect.SlotFor(key); ok {
			if fp, payload, ok2 := s.tbl.ReadAt(idx); ok2 && fp == hasher.Fingerprint(key) {
				return payload, true
			}
		}
	}
	return s.tbl.Get(key)
}

// Contains reports whether key is present, without decoding its payload.
func (s *Store) Contains(key []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.perfect != nil {
		if idx, ok := s.perfect.SlotFor(key); ok {
			if fp := s.tbl.Backend().FingerprintAt(idx); fp == hasher.Fingerprint(key) && !s.tbl.Backend().IsEmpty(idx) {
				return true
			}
		}
	}
	return s.tbl.Contains(key)
}

// Set stores value for key. In hybrid mode (post-Optimize), a key that
// currently occupies its MPH slot (a member of the MPH's key set that has
// not been removed) is overwritten in place there; any other key is written
// through the probing path. Either way the key is journaled for a future
// Optimize.
func (s *Store) Set(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg.readOnly {
		return wrapErr("set", ErrPermissionDenied)
	}

	var err error
	if s.perfect != nil {
		fp := hasher.Fingerprint(key)
		if idx, ok := s.perfect.SlotFor(key); ok && !s.tbl.Backend().IsEmpty(idx) && s.tbl.Backend().FingerprintAt(idx) == fp {
			err = s.tbl.WriteAt(idx, fp, value)
		} else {
			err = s.tbl.Set(key, value)
		}
	} else {
		err = s.tbl.Set(key, value)
	}
	if err != nil {
		return wrapErr("set", err)
	}

	if s.journal != nil {
		if jerr := s.journal.Append(key); jerr != nil {
			s.logger.Warn("journal append failed", zap.Error(jerr))
		}
	}

	s.metrics.incSet()
	return nil
}

// Remove deletes key, if present.
func (s *Store) Remove(key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg.readOnly {
		return wrapErr("remove", ErrPermissionDenied)
	}

	var err error
	if s.perfect != nil {
		if idx, ok := s.perfect.SlotFor(key); ok {
			if fp := s.tbl.Backend().FingerprintAt(idx); fp == hasher.Fingerprint(key) && !s.tbl.Backend().IsEmpty(idx) {
				err = s.tbl.ClearAt(idx)
			} else {
				err = s.tbl.Remove(key)
			}
		} else {
			err = s.tbl.Remove(key)
		}
	} else {
		err = s.tbl.Remove(key)
	}

	s.metrics.incRemove()
	if err != nil {
		return wrapErr("remove", err)
	}
	return nil
}

// GetBatch fetches every key in keys. Equivalent to N sequential Gets.
func (s *Store) GetBatch(keys [][]byte) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, len(keys))
	for i, k := range keys {
		value, ok := s.lookup(k)
		results[i] = Result{Value: value, Found: ok}
	}
	return results
}

// SetBatch applies every pair. Returns the number succeeded; does not
// abort on first failure. Pairs that land outside the MPH key set after
// Optimize are parallelized across the probing path by the underlying
// table; MPH-member pairs are applied sequentially here since they write
// directly to a specific slot rather than searching for one.
func (s *Store) SetBatch(pairs []Pair) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg.readOnly {
		return 0
	}

	if s.perfect == nil {
		return s.tbl.SetBatch(pairs)
	}

	succeeded := 0
	var probing []Pair
	for _, p := range pairs {
		fp := hasher.Fingerprint(p.Key)
		if idx, ok := s.perfect.SlotFor(p.Key); ok && !s.tbl.Backend().IsEmpty(idx) && s.tbl.Backend().FingerprintAt(idx) == fp {
			if err := s.tbl.WriteAt(idx, fp, p.Value); err == nil {
				succeeded++
				if s.journal != nil {
					s.journal.Append(p.Key)
				}
			}
			continue
		}
		probing = append(probing, p)
	}
	succeeded += s.tbl.SetBatch(probing)
	if s.journal != nil {
		for _, p := range probing {
			s.journal.Append(p.Key)
		}
	}
	return succeeded
}

// Stats reports the store's current statistics (spec.md §4.7).
type Stats struct {
	UsedSlots      uint32
	TotalSlots     uint32
	LoadFactor     float64
	Generation     uint64
	IsOptimized    bool
	MPHKeyCount    uint64
	JournalEntries int
	CollisionRate  float64
}

// Stats returns a snapshot of the store's current statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tstats := s.tbl.Stats()
	stats := Stats{
		UsedSlots:     tstats.UsedSlots,
		TotalSlots:    tstats.TotalSlots,
		LoadFactor:    tstats.LoadFactor,
		Generation:    tstats.Generation,
		IsOptimized:   s.perfect != nil,
		CollisionRate: tstats.CollisionRate,
	}
	if s.perfect != nil {
		stats.MPHKeyCount = s.perfect.KeyCount()
	}
	if s.journal != nil {
		if keys, err := s.journal.Keys(); err == nil {
			stats.JournalEntries = len(keys)
		}
	}

	s.metrics.setUsedSlots(float64(stats.UsedSlots))
	s.metrics.setLoadFactor(stats.LoadFactor)

	return stats
}

// ResetStats zeroes the lifetime collision-rate counters.
func (s *Store) ResetStats() {
	s.tbl.ResetStats()
}

// Optimize transitions the store to (or refreshes) perfect-hash mode,
// following the strict pipeline in spec.md §4.7. It requires exclusive
// access: no concurrent Get/Set/Remove may observe a transitional state.
func (s *Store) Optimize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.readOnly {
		return wrapErr("optimize", ErrPermissionDenied)
	}

	if s.journal == nil {
		// No journal: slots carry no keys of their own, so there is no way
		// to recover a key set to optimize over. Non-error no-op.
		s.logger.Info("optimize: no journal attached, nothing to optimize")
		return nil
	}

	if err := s.journal.Flush(); err != nil {
		return wrapErr("optimize", err)
	}
	candidates, err := s.journal.Keys()
	if err != nil {
		return wrapErr("optimize", err)
	}
	if len(candidates) == 0 {
		// An empty journal gives no key set to build over; storage is left
		// as it is. Non-error no-op.
		s.logger.Info("optimize: journal holds no keys, nothing to optimize")
		return nil
	}

	// Snapshot (key, value) pairs via the pre-rewrite lookup path. Keys the
	// journal remembers but that were since Removed simply miss here and
	// are excluded from the rebuilt key set.
	pairs := make([]table.Pair, 0, len(candidates))
	for _, k := range candidates {
		if v, ok := s.lookup(k); ok {
			pairs = append(pairs, table.Pair{Key: k, Value: v})
		}
	}

	if uint64(len(pairs)) > uint64(s.tbl.Backend().SlotCount()) {
		s.metrics.incOptimize(false)
		return wrapErr("optimize", ErrOptimizationFailed)
	}

	builder := mph.NewBuilder()
	for _, p := range pairs {
		if err := builder.Add(p.Key); err != nil {
			s.metrics.incOptimize(false)
			return wrapErr("optimize", err)
		}
	}
	perfect, err := builder.Build()
	if err != nil {
		s.logger.Warn("optimize failed", zap.Error(err))
		s.metrics.incOptimize(false)
		return wrapErr("optimize", fmt.Errorf("%w: %v", ErrOptimizationFailed, err))
	}
	if perfect.MaxSlots() > uint64(s.tbl.Backend().SlotCount()) {
		s.metrics.incOptimize(false)
		return wrapErr("optimize", ErrOptimizationFailed)
	}

	backend := s.tbl.Backend()
	n := backend.SlotCount()
	for i := uint32(0); i < n; i++ {
		if err := s.tbl.ClearAt(i); err != nil {
			s.metrics.incOptimize(false)
			return wrapErr("optimize", err)
		}
	}
	for _, p := range pairs {
		idx, _ := perfect.SlotFor(p.Key)
		if err := s.tbl.WriteAt(idx, hasher.Fingerprint(p.Key), p.Value); err != nil {
			s.metrics.incOptimize(false)
			return wrapErr("optimize", err)
		}
	}
	s.tbl.RecountUsedSlots()

	if err := backend.SetOptimized(true); err != nil {
		s.metrics.incOptimize(false)
		return wrapErr("optimize", err)
	}

	if s.path != "" {
		if err := os.WriteFile(mphSidecarPath(s.path), perfect.Serialize(), 0644); err != nil {
			s.metrics.incOptimize(false)
			return wrapErr("optimize", fmt.Errorf("%w: writing mph sidecar: %v", ErrIO, err))
		}
	}

	// Compact the journal down to the rebuilt key set, so a later Optimize
	// still finds every key that is live now.
	if err := s.journal.Truncate(); err != nil {
		s.logger.Warn("journal truncate after optimize failed", zap.Error(err))
	} else {
		for _, p := range pairs {
			if err := s.journal.Append(p.Key); err != nil {
				s.logger.Warn("journal rewrite after optimize failed", zap.Error(err))
				break
			}
		}
		if err := s.journal.Flush(); err != nil {
			s.logger.Warn("journal flush after optimize failed", zap.Error(err))
		}
	}

	// A zero-key build returns a degenerate single-bucket Hasher whose
	// SlotFor always reports ok=true; attaching it would misroute every
	// future key onto slot 0. Leave the MPH path unattached when there was
	// nothing to build over.
	if perfect.KeyCount() > 0 {
		s.perfect = perfect
	}
	s.metrics.incOptimize(true)
	s.logger.Info("optimize complete", zap.Uint64("key_count", perfect.KeyCount()))
	return nil
}

// Sync requests an asynchronous durability flush of the storage backend.
// It does not block for the OS to confirm data reached physical media.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wrapErr("sync", s.tbl.Backend().Sync())
}

// Flush guarantees the journal is durable and requests a storage flush.
// Journal durability is a true fsync; storage durability still follows
// Sync's fire-and-forget semantics (see Sync).
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal != nil {
		if err := s.journal.Flush(); err != nil {
			return wrapErr("flush", err)
		}
	}
	return wrapErr("flush", s.tbl.Backend().Sync())
}

// Close releases the store's resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.journal != nil {
		if err := s.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.tbl.Backend().Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info("store closed", zap.String("path", s.path))
	return wrapErr("close", firstErr)
}
