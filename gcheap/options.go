package gcheap

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

const (
	// DefaultCollectThreshold is the number of bytes of new blocks a Space
	// maps between collections when Options.CollectThreshold is zero.
	DefaultCollectThreshold = 4 << 20

	// DefaultRetainedBlocks is a reasonable pool size for long-lived spaces.
	DefaultRetainedBlocks = 8

	maxBlockSize = 1 << 30
)

// Collector reclaims cells. It is called from the allocation slow path once
// the new-block budget is spent, and from Space.Collect.
type Collector interface {
	Collect(s *Space)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(s *Space)

// Collect calls f(s).
func (f CollectorFunc) Collect(s *Space) { f(s) }

// Options configures a Space.
type Options struct {
	// BlockSize is the size and alignment of every block. It must be a power
	// of two of at least 2*AtomSize. Zero selects DefaultBlockSize.
	BlockSize int

	// Mapper supplies block memory. Nil selects vmem.System().
	Mapper vmem.Mapper

	// Collector runs when CollectThreshold bytes of blocks were added since
	// the last collection. Nil disables collection.
	Collector Collector

	// CollectThreshold is the new-block budget in bytes. Zero selects
	// DefaultCollectThreshold.
	CollectThreshold int

	// RetainedBlocks is how many empty blocks Shrink keeps decommitted for
	// reuse instead of unmapping.
	RetainedBlocks int

	// OnOutOfMemory is called before Allocate panics on exhaustion.
	OnOutOfMemory func(error)

	Logger *slog.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if !buf.IsPowerOfTwo(o.BlockSize) || o.BlockSize < 2*AtomSize || o.BlockSize > maxBlockSize {
		return o, errors.Wrapf(ErrInvalidOptions, "block size %d", o.BlockSize)
	}
	if o.CollectThreshold < 0 {
		return o, errors.Wrapf(ErrInvalidOptions, "collect threshold %d", o.CollectThreshold)
	}
	if o.CollectThreshold == 0 {
		o.CollectThreshold = DefaultCollectThreshold
	}
	if o.RetainedBlocks < 0 {
		return o, errors.Wrapf(ErrInvalidOptions, "retained blocks %d", o.RetainedBlocks)
	}
	if o.Mapper == nil {
		o.Mapper = vmem.System()
	}
	return o, nil
}
