package storage

import (
	"container/list"
	"sync"
)

// cachedRead is the payload kept per hot index: a copy of the last Read
// result, invalidated on any Write/Clear of that index.
type cachedRead struct {
	fingerprint uint64
	payload     []byte
	empty       bool
}

// Cached wraps a Backend with a small LRU of recent reads, keyed by slot
// index. It is purely a read accelerator: every Write/Clear evicts its
// index from the cache after delegating, so the decorator never changes
// observable semantics (spec.md §4.2 "MUST be transparent"). Disabled by
// default; the store facade only installs it when the WithCache option is used.
type Cached struct {
	Backend
	mu       sync.Mutex
	capacity int
	entries  map[uint32]*list.Element
	order    *list.List
}

type cacheElem struct {
	index uint32
	value cachedRead
}

// NewCached wraps backend with an LRU of the given capacity (in slots).
// capacity <= 0 disables caching; NewCached then returns backend unwrapped.
func NewCached(backend Backend, capacity int) Backend {
	if capacity <= 0 {
		return backend
	}
	return &Cached{
		Backend:  backend,
		capacity: capacity,
		entries:  make(map[uint32]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *Cached) Read(i uint32) (uint64, []byte, bool) {
	c.mu.Lock()
	if el, ok := c.entries[i]; ok {
		c.order.MoveToFront(el)
		v := el.Value.(*cacheElem).value
		c.mu.Unlock()
		if v.empty {
			return 0, nil, false
		}
		out := make([]byte, len(v.payload))
		copy(out, v.payload)
		return v.fingerprint, out, true
	}
	c.mu.Unlock()

	fp, payload, ok := c.Backend.Read(i)

	cached := cachedRead{empty: !ok}
	if ok {
		cached.fingerprint = fp
		cached.payload = append([]byte(nil), payload...)
	}
	c.put(i, cached)

	return fp, payload, ok
}

func (c *Cached) put(i uint32, v cachedRead) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[i]; ok {
		el.Value.(*cacheElem).value = v
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheElem{index: i, value: v})
	c.entries[i] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheElem).index)
		}
	}
}

func (c *Cached) invalidate(i uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[i]; ok {
		c.order.Remove(el)
		delete(c.entries, i)
	}
}

func (c *Cached) Write(i uint32, fingerprint uint64, payload []byte) error {
	err := c.Backend.Write(i, fingerprint, payload)
	c.invalidate(i)
	return err
}

func (c *Cached) Clear(i uint32) error {
	err := c.Backend.Clear(i)
	c.invalidate(i)
	return err
}

func (c *Cached) FingerprintAt(i uint32) uint64 {
	// Fingerprint-only reads bypass the payload cache; they are cheap on
	// the backend directly and keeping them out of the cache avoids
	// doubling its memory footprint for a rarely-hot path.
	return c.Backend.FingerprintAt(i)
}

var _ Backend = (*Cached)(nil)
