package bmalloc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/vmem"
)

func Test_Scavenger_IdlePolicy(t *testing.T) {
	a := newTestAllocator(t, Config{ScavengerInterval: time.Second})
	clock := withClock(a)
	h := a.Heap(Primary)

	mem := a.TryAllocate(8192, Primary)
	require.NoError(t, a.Free(mem, Primary))
	footprint := h.Stats().FootprintBytes

	// Everything was freed just now.
	require.Zero(t, a.Scavenger().Scavenge())

	clock.advance(2 * time.Second)
	released := a.Scavenger().Scavenge()
	require.Equal(t, testChunk, released)

	st := h.Stats()
	require.Equal(t, footprint-testChunk, st.FootprintBytes)
	require.Equal(t, testChunk, st.MappedBytes, "scavenging never unmaps")
	require.Positive(t, st.Decommits)

	// A second pass finds nothing left to release.
	clock.advance(2 * time.Second)
	require.Zero(t, a.Scavenger().Scavenge())

	// Decommitted memory is committed again on reuse.
	again := a.TryAllocate(8192, Primary)
	require.NotNil(t, again)
	require.Equal(t, footprint-testChunk+8192, h.Stats().FootprintBytes)
}

func Test_Scavenger_SmallPages(t *testing.T) {
	a := newTestAllocator(t, Config{})
	clock := withClock(a)
	h := a.Heap(Primary)

	var objs [][]byte
	for i := 0; i < 300; i++ {
		objs = append(objs, a.TryAllocate(64, Primary))
	}
	for _, mem := range objs[:256] {
		require.NoError(t, a.Free(mem, Primary))
	}

	clock.advance(time.Hour)
	released := a.Scavenger().Scavenge()
	// 300 objects of 64 bytes fill four pages and a bit; the first four are
	// empty again and twelve were never used.
	require.Equal(t, 15*4096, released)
	require.Equal(t, testChunk-15*4096, h.Stats().FootprintBytes)

	for _, mem := range objs[256:] {
		require.Equal(t, byte(0), mem[0])
	}
}

func Test_Scavenger_MiniMode(t *testing.T) {
	a := newTestAllocator(t, Config{MiniMode: true})
	mem := a.TryLargeZeroedMemalignVirtual(4096, 4096, Primary)
	require.NoError(t, a.FreeLargeVirtual(mem, Primary))

	// No time passes, mini mode releases anyway.
	require.Equal(t, testChunk, a.Scavenger().Scavenge())
	require.Zero(t, a.Heap(Primary).Stats().FootprintBytes)
}

func Test_Scavenger_Disable(t *testing.T) {
	a := newTestAllocator(t, Config{MiniMode: true})
	mem := a.TryAllocate(8192, Primary)
	require.NoError(t, a.Free(mem, Primary))

	a.Scavenger().Disable()
	require.Zero(t, a.Scavenger().Scavenge())
	require.True(t, a.Scavenger().Stats().Disabled)
	require.Equal(t, testChunk, a.Heap(Primary).Stats().FootprintBytes)
}

func Test_Scavenger_RunStopsOnCancel(t *testing.T) {
	a := newTestAllocator(t, Config{ScavengerInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Scavenger().Run(ctx) }()

	a.Scavenger().Schedule()
	require.Eventually(t, func() bool {
		return a.Scavenger().Stats().Runs > 0
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func Test_Allocator_ScavengeDrainsCaches(t *testing.T) {
	a := newTestAllocator(t, Config{MiniMode: true})
	h := a.Heap(Primary)
	c := a.NewCache(Primary)

	var objs [][]byte
	for i := 0; i < 40; i++ {
		mem := c.Allocate(48)
		require.Len(t, mem, 48)
		objs = append(objs, mem)
	}
	cached, deferred := c.Cached()
	require.Equal(t, 8, cached, "three batches of 16 were taken")
	require.Zero(t, deferred)
	require.Equal(t, 48*48, h.Stats().SmallLiveBytes)

	for _, mem := range objs {
		require.NoError(t, c.Free(mem))
	}
	_, deferred = c.Cached()
	require.Equal(t, 40, deferred)
	require.Equal(t, 48*48, h.Stats().SmallLiveBytes, "frees are deferred")

	a.Scavenge()
	cached, deferred = c.Cached()
	require.Zero(t, cached)
	require.Zero(t, deferred)

	st := h.Stats()
	require.Zero(t, st.SmallLiveBytes)
	require.Zero(t, st.FootprintBytes, "mini mode releases the emptied page")
	require.NoError(t, c.Close())
}

func Test_Cache_DeferredDoubleFreeReported(t *testing.T) {
	a := newTestAllocator(t, Config{})
	c := a.NewCache(Primary)
	mem := c.Allocate(16)
	require.NoError(t, c.Free(mem))
	require.NoError(t, c.Free(mem))
	require.ErrorIs(t, c.Flush(), ErrNotAllocated)
	require.NoError(t, c.Close())
}

func Test_DebugHeap(t *testing.T) {
	a := newTestAllocator(t, Config{DebugHeap: true, Mapper: vmem.NewLimited(vmem.GoHeap(), 0)})
	require.NotNil(t, a.DebugHeap())

	mem := a.TryAllocate(100, Primary)
	require.Len(t, mem, 100)
	v := a.TryLargeZeroedMemalignVirtual(4096, 10000, Primary)
	require.Len(t, v, 12288)
	require.Zero(t, vmem.Addr(v)%4096)
	require.Equal(t, 100+12288, a.Stats().DebugLiveBytes)

	c := a.NewCache(Primary)
	cm := c.Allocate(32)
	require.NoError(t, c.Free(cm))

	require.NoError(t, a.Free(mem, Primary))
	require.ErrorIs(t, a.Free(mem, Primary), ErrNotAllocated)
	require.NoError(t, a.FreeLargeVirtual(v, Primary))
	require.ErrorIs(t, a.FreeLargeVirtual(v, Primary), ErrNotAllocated)

	a.Scavenge()
	require.Zero(t, a.Stats().DebugLiveBytes)
	require.NoError(t, c.Close())
}
