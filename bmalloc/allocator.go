package bmalloc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// Allocator is the explicit context of every bmalloc operation. It owns
// exactly one Heap per HeapKind, created by New.
type Allocator struct {
	id  uuid.UUID
	cfg Config
	log *slog.Logger

	heaps     [NumHeapKinds]*Heap
	debug     *DebugHeap
	scavenger *Scavenger

	cachesMu sync.Mutex
	caches   map[*Cache]struct{}

	closed atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	clock func() time.Time
}

// New builds an Allocator and, unless disabled, starts its scavenger.
func New(cfg Config) (*Allocator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		id:     uuid.New(),
		cfg:    cfg,
		caches: make(map[*Cache]struct{}),
		clock:  time.Now,
	}
	a.log = logger.AllocOr(cfg.Logger).With("allocator", a.id.String())

	if cfg.DebugHeap {
		a.debug = newDebugHeap()
	}
	for k := range HeapKind(NumHeapKinds) {
		a.heaps[k] = newHeap(k, cfg, a.log, a.now)
	}
	a.scavenger = newScavenger(a)

	if !cfg.DisableScavenger && a.debug == nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.done = make(chan struct{})
		go func() {
			defer close(a.done)
			_ = a.scavenger.Run(ctx)
		}()
	}

	a.log.Debug("allocator created",
		"pageSize", cfg.PageSize,
		"chunkSize", cfg.ChunkSize,
		"debugHeap", cfg.DebugHeap,
		"miniMode", cfg.MiniMode)
	return a, nil
}

func (a *Allocator) now() time.Time { return a.clock() }

// ID identifies the allocator in logs and diagnostics.
func (a *Allocator) ID() uuid.UUID { return a.id }

// PageSize returns the commit granule.
func (a *Allocator) PageSize() int { return a.cfg.PageSize }

// Config returns the effective configuration.
func (a *Allocator) Config() Config { return a.cfg }

// Heap returns the heap of kind.
func (a *Allocator) Heap(kind HeapKind) *Heap {
	if !kind.valid() {
		panic(errors.AssertionFailedf("bmalloc: invalid heap kind %d", kind))
	}
	return a.heaps[kind]
}

// Scavenger returns the allocator's scavenger.
func (a *Allocator) Scavenger() *Scavenger { return a.scavenger }

// DebugHeap returns the debug heap, or nil when it is not in use.
func (a *Allocator) DebugHeap() *DebugHeap { return a.debug }

// TryAllocate returns size zeroed bytes from the heap of kind, or nil on
// exhaustion.
func (a *Allocator) TryAllocate(size int, kind HeapKind) []byte {
	return a.TryMemalign(smallStep, size, kind)
}

// Allocate is TryAllocate for callers that cannot handle exhaustion. It
// panics with an error marked ErrOutOfMemory.
func (a *Allocator) Allocate(size int, kind HeapKind) []byte {
	mem := a.TryAllocate(size, kind)
	if mem == nil {
		err := errors.Mark(errors.Newf("bmalloc: cannot allocate %d bytes in %s heap", size, kind), ErrOutOfMemory)
		a.log.Error("out of memory", "size", size, "heap", kind.String())
		panic(err)
	}
	return mem
}

// TryMemalign returns size zeroed bytes aligned to alignment, a power of two,
// or nil on exhaustion. The slice's capacity is the reserved object size.
func (a *Allocator) TryMemalign(alignment, size int, kind HeapKind) []byte {
	checkSize(size)
	checkAlignment(alignment)
	h := a.Heap(kind)
	if a.closed.Load() {
		return nil
	}
	if a.debug != nil {
		mem := a.debug.memalign(alignment, size, false)
		if mem == nil {
			return nil
		}
		return mem[:size]
	}
	mem := h.tryAllocate(alignment, size)
	if mem == nil {
		return nil
	}
	return mem[:size]
}

// Free returns memory obtained from TryAllocate, Allocate, TryMemalign, or a
// Cache of the same kind.
func (a *Allocator) Free(mem []byte, kind HeapKind) error {
	h := a.Heap(kind)
	if a.closed.Load() {
		return ErrClosed
	}
	if a.debug != nil {
		return a.debug.free(mem, false)
	}
	addr := vmem.Addr(mem)
	if err := h.free(addr); err != nil {
		return errors.Wrapf(err, "free %#x in %s heap", addr, kind)
	}
	return nil
}

// TryLargeZeroedMemalignVirtual returns a zero-filled range of size bytes
// aligned to alignment, both rounded up to the page size, or nil on
// exhaustion. The pages are purged and booked as externally decommitted
// until FreeLargeVirtual.
func (a *Allocator) TryLargeZeroedMemalignVirtual(alignment, size int, kind HeapKind) []byte {
	checkSize(size)
	checkAlignment(alignment)
	h := a.Heap(kind)
	if a.closed.Load() {
		return nil
	}

	pageSize := a.cfg.PageSize
	alignment = max(alignment, pageSize)
	size, ok := buf.RoundUp(size, pageSize)
	if !ok {
		return nil
	}

	if a.debug != nil {
		return a.debug.memalign(alignment, size, true)
	}
	return h.tryAllocateVirtual(alignment, size)
}

// FreeLargeVirtual returns a range from TryLargeZeroedMemalignVirtual. mem
// must be the slice that call returned. Freeing a range twice returns
// ErrNotAllocated and changes nothing.
func (a *Allocator) FreeLargeVirtual(mem []byte, kind HeapKind) error {
	h := a.Heap(kind)
	if a.closed.Load() {
		return ErrClosed
	}
	if a.debug != nil {
		return a.debug.free(mem, true)
	}
	if err := h.freeVirtual(vmem.Addr(mem), len(mem)); err != nil {
		return err
	}
	a.scavenger.Schedule()
	return nil
}

// Scavenge drains every Cache, then runs one debug-heap scavenge or one
// scavenger pass.
func (a *Allocator) Scavenge() {
	a.cachesMu.Lock()
	caches := make([]*Cache, 0, len(a.caches))
	for c := range a.caches {
		caches = append(caches, c)
	}
	a.cachesMu.Unlock()

	for _, c := range caches {
		if err := c.Scavenge(); err != nil {
			a.log.Warn("cache scavenge reported bad frees", "heap", c.kind.String(), "err", err)
		}
	}

	if a.debug != nil {
		a.debug.scavenge()
		return
	}
	a.scavenger.Scavenge()
}

// NewCache returns a Cache in front of the heap of kind.
func (a *Allocator) NewCache(kind HeapKind) *Cache {
	c := &Cache{alloc: a, kind: kind}
	if a.debug == nil {
		c.heap = a.Heap(kind)
	}
	a.cachesMu.Lock()
	a.caches[c] = struct{}{}
	a.cachesMu.Unlock()
	return c
}

func (a *Allocator) unregisterCache(c *Cache) {
	a.cachesMu.Lock()
	delete(a.caches, c)
	a.cachesMu.Unlock()
}

// Stats returns a snapshot of every heap.
func (a *Allocator) Stats() Stats {
	a.cachesMu.Lock()
	caches := len(a.caches)
	a.cachesMu.Unlock()

	st := Stats{
		ID:        a.id.String(),
		DebugHeap: a.debug != nil,
		MiniMode:  a.cfg.MiniMode,
		Caches:    caches,
		Scavenger: a.scavenger.Stats(),
	}
	if a.debug != nil {
		st.DebugLiveBytes = a.debug.LiveBytes()
	}
	for _, h := range a.heaps {
		st.Heaps = append(st.Heaps, h.Stats())
	}
	return st
}

// Close stops the scavenger and unmaps every heap. Memory handed out by the
// allocator must not be used afterwards.
func (a *Allocator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.scavenger.Disable()
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	a.cachesMu.Lock()
	clear(a.caches)
	a.cachesMu.Unlock()

	var errs error
	for _, h := range a.heaps {
		errs = errors.CombineErrors(errs, h.close())
	}
	return errs
}

func checkSize(size int) {
	if size <= 0 {
		panic(errors.AssertionFailedf("bmalloc: allocation size %d must be positive", size))
	}
}

func checkAlignment(alignment int) {
	if !buf.IsPowerOfTwo(alignment) {
		panic(errors.AssertionFailedf("bmalloc: alignment %d is not a power of two", alignment))
	}
}
