package maph

// errors.go collects the store's sentinel errors and a StoreError wrapper
// that attaches operation context while staying errors.Is-compatible,
// matching the teacher's own errors.New/fmt.Errorf("...: %w", err) idiom
// (no panics on user-facing paths, no third-party error library).

import (
	"fmt"

	"github.com/theflywheel/maph/internal/mph"
	"github.com/theflywheel/maph/internal/storage"
	"github.com/theflywheel/maph/internal/table"
)

// Sentinel errors returned by Store operations. Re-exported (not aliased)
// from the internal packages that originate them so callers only ever need
// to import this package to use errors.Is.
var (
	ErrKeyNotFound        = table.ErrKeyNotFound
	ErrValueTooLarge      = table.ErrValueTooLarge
	ErrTableFull          = table.ErrTableFull
	ErrPermissionDenied   = storage.ErrPermissionDenied
	ErrInvalidFormat      = storage.ErrInvalidFormat
	ErrOptimizationFailed = mph.ErrOptimizationFailed
	ErrIO                 = storage.ErrIO
)

// StoreError wraps an error with the operation that produced it, so
// Error() carries context while errors.Is(err, ErrKeyNotFound) (etc.)
// still works against the underlying sentinel via Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("maph: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
