package bmalloc

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

const (
	// DefaultChunkSize is the granule small pages and large ranges are
	// mapped in.
	DefaultChunkSize = 1 << 20

	// DefaultScavengerInterval is how long memory must stay free before the
	// scavenger decommits it, and how often the scavenger wakes up.
	DefaultScavengerInterval = time.Second

	// EnvDebugHeap routes every allocation to the Go heap when set to a true
	// value.
	EnvDebugHeap = "HEAPKIT_DEBUG_HEAP"

	// EnvMiniMode turns on mini mode when set to a true value.
	EnvMiniMode = "HEAPKIT_MINI_MODE"
)

// Config configures an Allocator.
type Config struct {
	// Mapper supplies chunks. Nil selects vmem.System().
	Mapper vmem.Mapper

	// PageSize is the small page and commit granule. Zero selects the
	// mapper's page size. It must be a power of two above SmallMax.
	PageSize int

	// ChunkSize must be a power of two and a multiple of PageSize. Zero
	// selects DefaultChunkSize.
	ChunkSize int

	DebugHeap bool

	// MiniMode makes the scavenger decommit all free memory on every pass.
	MiniMode bool

	ScavengerInterval time.Duration

	// DisableScavenger keeps New from starting the background goroutine.
	// Scavenge still works.
	DisableScavenger bool

	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	c = c.withEnv()
	if c.Mapper == nil {
		c.Mapper = vmem.System()
	}
	if c.PageSize == 0 {
		c.PageSize = c.Mapper.PageSize()
	}
	if !buf.IsPowerOfTwo(c.PageSize) || c.PageSize <= SmallMax {
		return c, errors.Wrapf(ErrInvalidConfig, "page size %d", c.PageSize)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = max(DefaultChunkSize, c.PageSize)
	}
	if !buf.IsPowerOfTwo(c.ChunkSize) || c.ChunkSize < c.PageSize {
		return c, errors.Wrapf(ErrInvalidConfig, "chunk size %d with page size %d", c.ChunkSize, c.PageSize)
	}
	if c.ScavengerInterval < 0 {
		return c, errors.Wrapf(ErrInvalidConfig, "scavenger interval %s", c.ScavengerInterval)
	}
	if c.ScavengerInterval == 0 {
		c.ScavengerInterval = DefaultScavengerInterval
	}
	return c, nil
}

// withEnv turns on the switches requested by the environment. It never turns
// one off.
func (c Config) withEnv() Config {
	if envBool(EnvDebugHeap) {
		c.DebugHeap = true
	}
	if envBool(EnvMiniMode) {
		c.MiniMode = true
	}
	return c
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
