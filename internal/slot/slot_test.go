package slot_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/theflywheel/maph/internal/slot"
)

func newSlot() []byte {
	return make([]byte, slot.Size)
}

func TestEmptySlotIsEmpty(t *testing.T) {
	b := newSlot()
	if !slot.IsEmpty(b) {
		t.Fatal("zeroed slot should be empty")
	}
	if _, _, ok := slot.Read(b); ok {
		t.Fatal("Read on empty slot should report not-found")
	}
}

func TestWriteThenRead(t *testing.T) {
	b := newSlot()
	want := []byte("hello world")
	if err := slot.Write(b, 0xdeadbeef, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	fp, payload, ok := slot.Read(b)
	if !ok {
		t.Fatal("expected a value")
	}
	if fp != 0xdeadbeef {
		t.Fatalf("fingerprint = %x, want %x", fp, 0xdeadbeef)
	}
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload = %q, want %q", payload, want)
	}
	if slot.IsEmpty(b) {
		t.Fatal("slot should not report empty after write")
	}
}

func TestWriteTooLarge(t *testing.T) {
	b := newSlot()
	oversized := make([]byte, slot.PayloadMax+1)
	if err := slot.Write(b, 1, oversized); err != slot.ErrValueTooLarge {
		t.Fatalf("err = %v, want ErrValueTooLarge", err)
	}
	if !slot.IsEmpty(b) {
		t.Fatal("failed write must not mutate the slot")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	b := newSlot()
	_ = slot.Write(b, 7, []byte("x"))
	slot.Clear(b)
	if !slot.IsEmpty(b) {
		t.Fatal("slot should be empty after Clear")
	}
	slot.Clear(b)
	if !slot.IsEmpty(b) {
		t.Fatal("Clear should be idempotent")
	}
}

func TestVersionIsEvenWhenStable(t *testing.T) {
	b := newSlot()
	_ = slot.Write(b, 1, []byte("v"))
	if v := slot.Version(b); v%2 != 0 {
		t.Fatalf("version %d should be even once stable", v)
	}
}

// TestConcurrentReadersDuringWrites exercises the seqlock under a
// single-writer/many-reader load: every snapshot a reader accepts must be
// one of the values a writer actually committed, never a torn mix of two.
func TestConcurrentReadersDuringWrites(t *testing.T) {
	b := newSlot()
	values := [][]byte{
		bytes.Repeat([]byte("A"), 50),
		bytes.Repeat([]byte("B"), 120),
		bytes.Repeat([]byte("C"), 3),
	}
	_ = slot.Write(b, 1, values[0])

	stop := make(chan struct{})
	var writerWG, readerWG sync.WaitGroup

	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := values[i%len(values)]
			_ = slot.Write(b, uint64(i), v)
		}
	}()

	for r := 0; r < 8; r++ {
		readerWG.Add(1)
		go func() {
			defer readerWG.Done()
			for i := 0; i < 2000; i++ {
				fp, payload, ok := slot.Read(b)
				if !ok {
					continue
				}
				matched := false
				for _, v := range values {
					if bytes.Equal(payload, v) {
						matched = true
						break
					}
				}
				if !matched {
					t.Errorf("torn read: fp=%d payload=%q matches no committed value", fp, payload)
				}
			}
		}()
	}

	readerWG.Wait()
	close(stop)
	writerWG.Wait()
}
