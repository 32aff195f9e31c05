/*
Package maph provides an embeddable key-value store implementation using
memory-mapped files.

Store is designed to be a high-performance key-value store that persists
data to disk while maintaining fast in-memory access speeds. It uses memory
mapping to provide direct access to the data without copying it into user
space, and can transition a stable key set onto a minimal-perfect-hash
lookup path to eliminate probing entirely.

Basic usage:

	import "github.com/theflywheel/maph"

	// Create a new store
	store, err := maph.Create("data.maph", maph.WithNumSlots(1<<16))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Insert data
	err = store.Set([]byte("user:12345"), []byte("payload"))

	// Retrieve data
	value, ok := store.Get([]byte("user:12345"))
	if ok {
		fmt.Println("Value:", string(value))
	}

	// Once the key set stabilizes, eliminate probing entirely
	if err := store.Optimize(); err != nil {
		log.Printf("optimize: %v", err)
	}

Features:

  - Variable-length keys and values up to the configured slot payload size
  - Memory-mapped file storage for persistence and fast access
  - Thread-safe via an internal read/write mutex
  - Three lookup modes: open-addressed probing, minimal perfect hash (after
    Optimize), and a hybrid of the two that keeps accepting new keys after
    optimization
  - xxhash-based index and fingerprint derivation, with distinct seeds so
    the two are uncorrelated
  - Append-only, checksummed journal recording inserted keys (compacted to
    the live key set at each Optimize), used
    to rebuild the key set Optimize's perfect-hash construction runs over
  - Optional transparent LRU read cache and optional Prometheus metrics

Implementation Details:

The store's file format consists of a fixed-size header followed by a
configurable number of fixed-size slots. Each slot carries a seqlock-style
version word, a fingerprint, and a length-prefixed payload.

Before Optimize, lookups use open addressing with linear probing: a key's
home slot is a hash of the key, with the probe sequence resolving
collisions up to a configurable bound. After a successful Optimize, lookups
first consult the minimal perfect hash (CHD algorithm) built over the
journal's key set, falling back to probing only for keys inserted after
that snapshot.
*/
package maph
