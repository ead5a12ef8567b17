package gcheap

const (
	// AtomSize is the minimum cell size and the step between precise classes.
	AtomSize = 16

	// PreciseCutoff is the largest request served by a precise class.
	PreciseCutoff = 256

	// ImpreciseCutoff is the largest request served by an imprecise class.
	ImpreciseCutoff = 2048

	// MaxCellSize is the largest cell any Space hands out. A Space whose blocks
	// are smaller than this caps requests at its block size instead.
	MaxCellSize = ImpreciseCutoff

	// DefaultBlockSize is the block size used when Options.BlockSize is zero.
	DefaultBlockSize = 64 << 10

	preciseStep    = AtomSize
	impreciseStep  = PreciseCutoff
	preciseCount   = PreciseCutoff / preciseStep
	impreciseCount = ImpreciseCutoff / impreciseStep
)

// NumSizeClasses is the number of buckets in every Space, precise first.
const NumSizeClasses = preciseCount + impreciseCount

// CellSizeFor returns the cell size a request of bytes is rounded up to.
// bytes must be in (0, MaxCellSize].
func CellSizeFor(bytes int) int {
	if bytes <= PreciseCutoff {
		return ((bytes-1)/preciseStep + 1) * preciseStep
	}
	return ((bytes-1)/impreciseStep + 1) * impreciseStep
}
