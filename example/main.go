package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/theflywheel/maph"
)

func main() {
	// Clean up previous example
	os.Remove("example.maph")
	os.Remove("example.maph.journal")
	os.Remove("example.maph.mph")

	store, err := maph.Create("example.maph", maph.WithNumSlots(64))
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	fmt.Println("Store created successfully")

	// Insert some data
	for i := 0; i < 10; i++ {
		key := make([]byte, 8)
		value := make([]byte, 8)

		binary.BigEndian.PutUint64(key, uint64(i))
		binary.BigEndian.PutUint64(value, uint64(i*100))

		if err := store.Set(key, value); err != nil {
			log.Fatalf("Failed to insert key %d: %v", i, err)
		}
	}

	fmt.Println("Inserted 10 key-value pairs")

	// Retrieve and display some values
	for i := 0; i < 15; i += 2 {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))

		value, found := store.Get(key)
		if found {
			val := binary.BigEndian.Uint64(value)
			fmt.Printf("Key %d => Value %d\n", i, val)
		} else {
			fmt.Printf("Key %d not found\n", i)
		}
	}

	// Update a value
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(2))

	newValue := make([]byte, 8)
	binary.BigEndian.PutUint64(newValue, uint64(999))

	if err := store.Set(key, newValue); err != nil {
		log.Fatalf("Failed to update key: %v", err)
	}

	// Verify the update
	value, found := store.Get(key)
	if found {
		val := binary.BigEndian.Uint64(value)
		fmt.Printf("Updated key 2 => Value %d\n", val)
	}

	// Once the key set is stable, collapse lookups onto a perfect hash.
	if err := store.Optimize(); err != nil {
		log.Fatalf("Failed to optimize: %v", err)
	}
	stats := store.Stats()
	fmt.Printf("Optimized: used=%d total=%d mph_keys=%d\n", stats.UsedSlots, stats.TotalSlots, stats.MPHKeyCount)

	// Lookups still work after optimize, and new keys are still accepted.
	value, found = store.Get(key)
	if found {
		val := binary.BigEndian.Uint64(value)
		fmt.Printf("Post-optimize key 2 => Value %d\n", val)
	}

	fmt.Println("Example completed successfully")
}
