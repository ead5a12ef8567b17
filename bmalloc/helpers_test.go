package bmalloc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/vmem"
)

const testChunk = 64 << 10

func newTestAllocator(t *testing.T, cfg Config) *Allocator {
	t.Helper()
	if cfg.Mapper == nil {
		cfg.Mapper = vmem.GoHeap()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = testChunk
	}
	cfg.DisableScavenger = true
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// fakeClock lets tests move time forward for the scavenger's idle policy.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func withClock(a *Allocator) *fakeClock {
	c := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	a.clock = c.now
	return c
}
