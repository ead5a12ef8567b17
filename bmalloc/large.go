package bmalloc

import (
	"time"

	"github.com/google/btree"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// mapping is one region mapped for large ranges.
type mapping struct {
	region vmem.Region
	base   uintptr
}

// largeRange is a page-aligned run of bytes inside one mapping. Free ranges
// live in Heap.large; allocated ones in Heap.largeLive or Heap.virtualLive.
type largeRange struct {
	begin     uintptr
	size      int
	m         *mapping
	committed bool
	freedAt   time.Time
}

func (r largeRange) end() uintptr { return r.begin + uintptr(r.size) }

func (r largeRange) bytes() []byte {
	off := int(r.begin - r.m.base)
	return r.m.region.Mem[off : off+r.size : off+r.size]
}

// canMerge reports whether r and next are adjacent pieces with the same
// backing state.
func (r largeRange) canMerge(next largeRange) bool {
	return r.m == next.m && r.end() == next.begin && r.committed == next.committed
}

func lessRange(a, b largeRange) bool { return a.begin < b.begin }

func newRangeTree() *btree.BTreeG[largeRange] {
	return btree.NewG(16, lessRange)
}

// allocateLarge carves an aligned range of size bytes from the free ranges,
// growing the heap once if nothing fits. h.mu must be held.
func (h *Heap) allocateLarge(alignment, size int) (largeRange, bool) {
	if r, ok := h.carve(alignment, size); ok {
		return r, true
	}
	if !h.growLarge(alignment, size) {
		return largeRange{}, false
	}
	return h.carve(alignment, size)
}

func (h *Heap) carve(alignment, size int) (largeRange, bool) {
	var (
		found   largeRange
		aligned uintptr
		ok      bool
	)
	h.large.Ascend(func(r largeRange) bool {
		a := (r.begin + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
		if a+uintptr(size) <= r.end() {
			found, aligned, ok = r, a, true
			return false
		}
		return true
	})
	if !ok {
		return largeRange{}, false
	}

	h.large.Delete(found)
	if aligned > found.begin {
		prefix := found
		prefix.size = int(aligned - found.begin)
		h.large.ReplaceOrInsert(prefix)
	}
	if end := aligned + uintptr(size); end < found.end() {
		suffix := found
		suffix.begin = end
		suffix.size = int(found.end() - end)
		h.large.ReplaceOrInsert(suffix)
	}
	return largeRange{begin: aligned, size: size, m: found.m, committed: found.committed}, true
}

// growLarge maps a new region big enough for an aligned request. h.mu must
// be held.
func (h *Heap) growLarge(alignment, size int) bool {
	mapSize, ok := buf.RoundUp(size, h.chunkSize)
	if !ok {
		return false
	}
	region, err := h.mapper.Map(mapSize, max(alignment, h.pageSize))
	if err != nil {
		h.log.Warn("mapping large region failed", "size", mapSize, "alignment", alignment, "err", err)
		return false
	}
	m := &mapping{region: region, base: region.Base()}
	h.mappings = append(h.mappings, m)
	h.mapped += mapSize
	h.footprint += mapSize
	h.large.ReplaceOrInsert(largeRange{begin: m.base, size: mapSize, m: m, committed: true, freedAt: h.now()})
	return true
}

// deallocateLarge returns r to the free ranges, merging it with free
// neighbours in the same state. h.mu must be held.
func (h *Heap) deallocateLarge(r largeRange) {
	r.freedAt = h.now()

	var prev largeRange
	var hasPrev bool
	h.large.DescendLessOrEqual(largeRange{begin: r.begin}, func(p largeRange) bool {
		prev, hasPrev = p, true
		return false
	})
	if hasPrev && prev.canMerge(r) {
		h.large.Delete(prev)
		r.begin = prev.begin
		r.size += prev.size
	}

	var next largeRange
	var hasNext bool
	h.large.AscendGreaterOrEqual(largeRange{begin: r.end()}, func(n largeRange) bool {
		next, hasNext = n, true
		return false
	})
	if hasNext && r.canMerge(next) {
		h.large.Delete(next)
		r.size += next.size
	}

	h.large.ReplaceOrInsert(r)
}

// coalesceLarge merges adjacent free ranges that ended up in the same state.
// h.mu must be held.
func (h *Heap) coalesceLarge() {
	var merged []largeRange
	h.large.Ascend(func(r largeRange) bool {
		if n := len(merged); n > 0 && merged[n-1].canMerge(r) {
			merged[n-1].size += r.size
			if r.freedAt.After(merged[n-1].freedAt) {
				merged[n-1].freedAt = r.freedAt
			}
			return true
		}
		merged = append(merged, r)
		return true
	})
	if len(merged) == h.large.Len() {
		return
	}
	h.large.Clear(false)
	for _, r := range merged {
		h.large.ReplaceOrInsert(r)
	}
}
