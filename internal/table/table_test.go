package table_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/theflywheel/maph/internal/hasher"
	"github.com/theflywheel/maph/internal/storage"
	"github.com/theflywheel/maph/internal/table"
)

func newTable(slots uint32, maxProbes int) *table.Table {
	backend := storage.NewMemory(slots)
	idx := hasher.NewStandard(slots)
	probe := hasher.NewProbeSequence(idx, maxProbes)
	return table.New(backend, probe)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	tb := newTable(64, 8)
	if err := tb.Set([]byte("alpha"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok := tb.Get([]byte("alpha"))
	if !ok || string(value) != "1" {
		t.Fatalf("Get(alpha) = (%q,%v), want (1,true)", value, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	tb := newTable(64, 8)
	if _, ok := tb.Get([]byte("absent")); ok {
		t.Fatal("Get(absent) = true, want false")
	}
}

func TestUpdateInPlace(t *testing.T) {
	tb := newTable(64, 8)
	if err := tb.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tb.Set([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Set (update): %v", err)
	}
	value, ok := tb.Get([]byte("k"))
	if !ok || string(value) != "v2" {
		t.Fatalf("Get(k) = (%q,%v), want (v2,true)", value, ok)
	}
	if tb.Stats().UsedSlots != 1 {
		t.Fatalf("UsedSlots = %d, want 1 (update should not consume a new slot)", tb.Stats().UsedSlots)
	}
}

func TestIdempotentRemove(t *testing.T) {
	tb := newTable(64, 8)
	if err := tb.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tb.Remove([]byte("k")); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := tb.Remove([]byte("k")); !errors.Is(err, table.ErrKeyNotFound) {
		t.Fatalf("second Remove = %v, want ErrKeyNotFound", err)
	}
	if _, ok := tb.Get([]byte("k")); ok {
		t.Fatal("Get after Remove = true, want false")
	}
}

func TestContains(t *testing.T) {
	tb := newTable(64, 8)
	if tb.Contains([]byte("k")) {
		t.Fatal("Contains before Set = true")
	}
	if err := tb.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !tb.Contains([]byte("k")) {
		t.Fatal("Contains after Set = false")
	}
}

func TestTableFullOnProbeExhaustion(t *testing.T) {
	// 1 slot, 1 max probe: the second distinct key cannot find a home.
	tb := newTable(1, 1)
	if err := tb.Set([]byte("first"), []byte("v")); err != nil {
		t.Fatalf("Set(first): %v", err)
	}
	err := tb.Set([]byte("second-key-different-hash"), []byte("v"))
	if !errors.Is(err, table.ErrTableFull) {
		t.Fatalf("Set(second) = %v, want ErrTableFull", err)
	}
}

func TestValueTooLargeLeavesSlotUnchanged(t *testing.T) {
	tb := newTable(8, 4)
	if err := tb.Set([]byte("k"), []byte("original")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tooLarge := make([]byte, 4096)
	if err := tb.Set([]byte("k"), tooLarge); !errors.Is(err, table.ErrValueTooLarge) {
		t.Fatalf("Set(too large) = %v, want ErrValueTooLarge", err)
	}
	value, ok := tb.Get([]byte("k"))
	if !ok || string(value) != "original" {
		t.Fatalf("Get(k) after failed Set = (%q,%v), want (original,true)", value, ok)
	}
}

func TestRemoveThenReinsertReusesSlot(t *testing.T) {
	tb := newTable(4, 4)
	if err := tb.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tb.Remove([]byte("k")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tb.Set([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Set (reinsert): %v", err)
	}
	value, ok := tb.Get([]byte("k"))
	if !ok || string(value) != "v2" {
		t.Fatalf("Get(k) = (%q,%v), want (v2,true)", value, ok)
	}
}

func TestStatsTracksUsedSlotsAndLoadFactor(t *testing.T) {
	tb := newTable(10, 4)
	for i := 0; i < 5; i++ {
		if err := tb.Set([]byte(fmt.Sprintf("k%d", i)), []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	stats := tb.Stats()
	if stats.UsedSlots != 5 {
		t.Fatalf("UsedSlots = %d, want 5", stats.UsedSlots)
	}
	if stats.TotalSlots != 10 {
		t.Fatalf("TotalSlots = %d, want 10", stats.TotalSlots)
	}
	if stats.LoadFactor != 0.5 {
		t.Fatalf("LoadFactor = %f, want 0.5", stats.LoadFactor)
	}
}

func TestResetStatsZeroesCollisionCounters(t *testing.T) {
	tb := newTable(64, 8)
	for i := 0; i < 10; i++ {
		if err := tb.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	tb.ResetStats()
	stats := tb.Stats()
	if stats.CollisionRate != 0 {
		t.Fatalf("CollisionRate after ResetStats = %f, want 0", stats.CollisionRate)
	}
}

func TestGetBatchMatchesSequentialGet(t *testing.T) {
	tb := newTable(256, 8)
	keys := make([][]byte, 50)
	for i := range keys {
		key := []byte(fmt.Sprintf("batch-key-%d", i))
		keys[i] = key
		if err := tb.Set(key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	results := tb.GetBatch(keys)
	if len(results) != len(keys) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(keys))
	}
	for i, r := range results {
		want := fmt.Sprintf("value-%d", i)
		if !r.Found || string(r.Value) != want {
			t.Fatalf("results[%d] = (%q,%v), want (%s,true)", i, r.Value, r.Found, want)
		}
	}
}

func TestSetBatchReportsSucceededCount(t *testing.T) {
	tb := newTable(256, 8)
	pairs := make([]table.Pair, 20)
	for i := range pairs {
		pairs[i] = table.Pair{Key: []byte(fmt.Sprintf("sb-%d", i)), Value: []byte("v")}
	}

	succeeded := tb.SetBatch(pairs)
	if succeeded != len(pairs) {
		t.Fatalf("SetBatch succeeded = %d, want %d", succeeded, len(pairs))
	}
	if tb.Stats().UsedSlots != uint32(len(pairs)) {
		t.Fatalf("UsedSlots = %d, want %d", tb.Stats().UsedSlots, len(pairs))
	}
}

func TestRecountUsedSlotsMatchesDirectWrites(t *testing.T) {
	backend := storage.NewMemory(8)
	idx := hasher.NewStandard(8)
	probe := hasher.NewProbeSequence(idx, 4)
	tb := table.New(backend, probe)

	if err := tb.WriteAt(0, 123, []byte("direct")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := tb.WriteAt(1, 456, []byte("direct2")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if tb.Stats().UsedSlots != 2 {
		t.Fatalf("UsedSlots = %d, want 2", tb.Stats().UsedSlots)
	}

	if err := tb.ClearAt(0); err != nil {
		t.Fatalf("ClearAt: %v", err)
	}
	if tb.Stats().UsedSlots != 1 {
		t.Fatalf("UsedSlots after ClearAt = %d, want 1", tb.Stats().UsedSlots)
	}

	tb.RecountUsedSlots()
	if tb.Stats().UsedSlots != 1 {
		t.Fatalf("UsedSlots after RecountUsedSlots = %d, want 1", tb.Stats().UsedSlots)
	}
}
