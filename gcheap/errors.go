package gcheap

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory marks the panic value raised when the slow path cannot
	// map a new block.
	ErrOutOfMemory = errors.New("gcheap: out of memory")

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("gcheap: invalid options")

	// ErrCorruptFreeList reports a free list that leaves its block or loops.
	ErrCorruptFreeList = errors.New("gcheap: corrupt free list")
)
