package journal_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/theflywheel/maph/internal/journal"
)

func openJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.journal")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return j, path
}

func TestAppendAndKeys(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	want := []string{"alpha", "beta", "gamma"}
	for _, k := range want {
		if err := j.Append([]byte(k)); err != nil {
			t.Fatalf("Append(%q): %v", k, err)
		}
	}

	keys, err := j.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	got := stringsOf(keys)
	sort.Strings(got)
	sort.Strings(want)
	if !equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
}

func TestKeysDeduplicates(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	for i := 0; i < 3; i++ {
		if err := j.Append([]byte("dup")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Append([]byte("unique")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	keys, err := j.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(Keys()) = %d, want 2 (dup deduplicated)", len(keys))
	}
}

func TestTruncateClearsRecords(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	if err := j.Append([]byte("gone")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	keys, err := j.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("Keys() after Truncate = %v, want empty", keys)
	}

	if err := j.Append([]byte("after-truncate")); err != nil {
		t.Fatalf("Append after Truncate: %v", err)
	}
	keys, err = j.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || string(keys[0]) != "after-truncate" {
		t.Fatalf("Keys() after Truncate+Append = %v, want [after-truncate]", stringsOf(keys))
	}
}

func TestReopenRecoversCleanRecords(t *testing.T) {
	j, path := openJournal(t)
	if err := j.Append([]byte("persisted")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer reopened.Close()

	keys, err := reopened.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || string(keys[0]) != "persisted" {
		t.Fatalf("Keys() after reopen = %v, want [persisted]", stringsOf(keys))
	}
}

func TestRecoveryTruncatesTornTail(t *testing.T) {
	j, path := openJournal(t)
	if err := j.Append([]byte("good-record")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash mid-append: append a few garbage bytes that look
	// like the start of a header but never complete a valid record.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x09, 0x00, 0x00, 0x00, 'x'}); err != nil {
		t.Fatalf("Write garbage: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close garbage handle: %v", err)
	}

	recovered, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open after torn write: %v", err)
	}
	defer recovered.Close()

	keys, err := recovered.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || string(keys[0]) != "good-record" {
		t.Fatalf("Keys() after torn-tail recovery = %v, want [good-record]", stringsOf(keys))
	}

	if err := recovered.Append([]byte("after-recovery")); err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
}

func stringsOf(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
