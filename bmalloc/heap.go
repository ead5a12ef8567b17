package bmalloc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/pageset"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// Heap is the allocator state of one HeapKind. All fields below mu are
// guarded by it.
type Heap struct {
	kind      HeapKind
	mapper    vmem.Mapper
	pageSize  int
	chunkSize int
	log       *slog.Logger
	now       func() time.Time

	mu sync.Mutex

	// Small objects.
	partial   [numSmallClasses][]*smallPage
	freePages []*smallPage
	pages     map[uintptr]*smallPage
	chunks    []*chunk

	// Large objects.
	large       *btree.BTreeG[largeRange]
	largeLive   map[uintptr]largeRange
	virtualLive map[uintptr]largeRange
	mappings    []*mapping

	mapped    int // bytes of address space mapped
	footprint int // bytes the heap keeps committed
	external  int // bytes of virtual allocations booked as externally decommitted

	stats HeapStats
}

func newHeap(kind HeapKind, cfg Config, log *slog.Logger, now func() time.Time) *Heap {
	return &Heap{
		kind:        kind,
		mapper:      cfg.Mapper,
		pageSize:    cfg.PageSize,
		chunkSize:   cfg.ChunkSize,
		log:         log.With("heap", kind.String()),
		now:         now,
		pages:       make(map[uintptr]*smallPage),
		large:       newRangeTree(),
		largeLive:   make(map[uintptr]largeRange),
		virtualLive: make(map[uintptr]largeRange),
	}
}

// Kind returns the heap's kind.
func (h *Heap) Kind() HeapKind { return h.kind }

func (h *Heap) tryAllocate(alignment, size int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if size <= SmallMax && alignment <= smallStep {
		return h.allocateSmall(smallClassFor(size))
	}
	size, ok := buf.RoundUp(size, h.pageSize)
	if !ok {
		return nil
	}
	alignment = max(alignment, h.pageSize)

	r, ok := h.allocateLarge(alignment, size)
	if !ok {
		return nil
	}
	if !r.committed {
		if err := h.mapper.Commit(r.bytes()); err != nil {
			h.log.Warn("committing large range failed", "begin", r.begin, "err", err)
			h.deallocateLarge(r)
			return nil
		}
		r.committed = true
		h.footprint += r.size
		h.stats.Commits++
	}
	h.largeLive[r.begin] = r
	h.stats.LargeAllocs++
	h.stats.LargeLiveBytes += r.size

	mem := r.bytes()
	clear(mem)
	return mem
}

// free returns an object handed out by tryAllocate.
func (h *Heap) free(addr uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.largeLive[addr]; ok {
		delete(h.largeLive, addr)
		h.stats.LargeFrees++
		h.stats.LargeLiveBytes -= r.size
		h.deallocateLarge(r)
		return nil
	}
	return h.freeSmall(addr)
}

// tryAllocateVirtual reserves a zeroed range and books it as externally
// decommitted. The pages are purged outside the lock.
func (h *Heap) tryAllocateVirtual(alignment, size int) []byte {
	h.mu.Lock()
	r, ok := h.allocateLarge(alignment, size)
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.externalDecommit(r)
	h.virtualLive[r.begin] = r
	h.stats.VirtualAllocs++
	h.mu.Unlock()

	mem := r.bytes()
	if err := h.mapper.ZeroAndPurge(mem); err != nil {
		// The pages are still mapped; zero them by hand.
		h.log.Warn("purging virtual range failed", "begin", r.begin, "err", err)
		clear(mem)
	}
	return mem
}

// freeVirtual books the range as committed again and returns it to the free
// ranges.
func (h *Heap) freeVirtual(addr uintptr, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.virtualLive[addr]
	if !ok {
		return errors.Wrapf(ErrNotAllocated, "virtual range %#x in %s heap", addr, h.kind)
	}
	if r.size != size {
		return errors.Wrapf(ErrSizeMismatch, "virtual range %#x has %d bytes, freed with %d", addr, r.size, size)
	}
	delete(h.virtualLive, addr)
	h.externalCommit(r)
	h.stats.VirtualFrees++
	r.committed = true
	h.deallocateLarge(r)
	return nil
}

// externalDecommit removes r from the footprint; the caller purges its pages.
func (h *Heap) externalDecommit(r largeRange) {
	if r.committed {
		h.footprint -= r.size
	}
	h.external += r.size
	h.stats.ExternalDecommits++
}

// externalCommit undoes externalDecommit for a range about to be reused.
func (h *Heap) externalCommit(r largeRange) {
	h.footprint += r.size
	h.external -= r.size
	h.stats.ExternalCommits++
}

// scavenge decommits free memory idle since before cutoff and returns the
// number of bytes released. h.mu must be held.
func (h *Heap) scavenge(cutoff time.Time) int {
	released := 0

	chunkSets := make(map[*chunk]*pageset.Set)
	for _, p := range h.freePages {
		if !p.committed || p.freedAt.After(cutoff) {
			continue
		}
		set := chunkSets[p.chunk]
		if set == nil {
			set = pageset.New(h.pageSize)
			chunkSets[p.chunk] = set
		}
		set.Add(p.off, len(p.mem))
		p.committed = false
		released += len(p.mem)
	}
	for c, set := range chunkSets {
		h.decommitRanges(c.region.Mem, set)
	}

	mapSets := make(map[*mapping]*pageset.Set)
	var idle []largeRange
	h.large.Ascend(func(r largeRange) bool {
		if r.committed && !r.freedAt.After(cutoff) {
			idle = append(idle, r)
		}
		return true
	})
	for _, r := range idle {
		set := mapSets[r.m]
		if set == nil {
			set = pageset.New(h.pageSize)
			mapSets[r.m] = set
		}
		set.Add(int(r.begin-r.m.base), r.size)
		r.committed = false
		h.large.ReplaceOrInsert(r)
		released += r.size
	}
	for m, set := range mapSets {
		h.decommitRanges(m.region.Mem, set)
	}
	if len(idle) > 0 {
		h.coalesceLarge()
	}

	h.footprint -= released
	h.stats.ScavengedBytes += uint64(released)
	return released
}

func (h *Heap) decommitRanges(mem []byte, set *pageset.Set) {
	_ = set.Flush(context.Background(), func(run pageset.Range) error {
		if err := h.mapper.Decommit(mem[run.Off:run.End()]); err != nil {
			h.log.Warn("decommit failed", "off", run.Off, "len", run.Len, "err", err)
			return nil
		}
		h.stats.Decommits++
		return nil
	})
}

func (h *Heap) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs error
	for _, c := range h.chunks {
		errs = errors.CombineErrors(errs, h.mapper.Unmap(c.region))
	}
	for _, m := range h.mappings {
		errs = errors.CombineErrors(errs, h.mapper.Unmap(m.region))
	}
	h.chunks, h.mappings, h.freePages = nil, nil, nil
	h.partial = [numSmallClasses][]*smallPage{}
	clear(h.pages)
	clear(h.largeLive)
	clear(h.virtualLive)
	h.large.Clear(false)
	h.mapped, h.footprint, h.external = 0, 0, 0
	return errs
}

