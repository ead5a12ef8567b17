package bmalloc

import "github.com/cockroachdb/errors"

var (
	// ErrNotAllocated is returned when freeing memory the heap did not hand
	// out, or already took back.
	ErrNotAllocated = errors.New("bmalloc: not allocated")

	// ErrSizeMismatch is returned when a free names a different size than
	// the allocation.
	ErrSizeMismatch = errors.New("bmalloc: size mismatch")

	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("bmalloc: invalid config")

	// ErrOutOfMemory marks the panic value of Allocate on exhaustion.
	ErrOutOfMemory = errors.New("bmalloc: out of memory")

	// ErrClosed is returned by operations on a closed Allocator.
	ErrClosed = errors.New("bmalloc: allocator closed")
)
