package bmalloc

import (
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// chunk is one ChunkSize mapping cut into small pages.
type chunk struct {
	region vmem.Region
	pages  []*smallPage
}

// smallPage holds objects of one size class, or nothing while it sits on the
// heap's free page list.
type smallPage struct {
	chunk *chunk
	mem   []byte
	base  uintptr
	off   int // offset inside the chunk

	class     int // -1 while unassigned
	objSize   int
	objects   int
	allocated *bitset.BitSet
	free      []int32 // free object indices, lowest on top
	live      int

	// partialSlot is the page's index in its class's partial list, or -1.
	partialSlot int

	committed bool
	freedAt   time.Time
}

func (p *smallPage) format(class int) {
	p.class = class
	p.objSize = smallObjectSize(class)
	p.objects = len(p.mem) / p.objSize
	if p.allocated == nil {
		p.allocated = bitset.New(uint(p.objects))
	} else {
		p.allocated.ClearAll()
	}
	p.free = p.free[:0]
	for i := p.objects - 1; i >= 0; i-- {
		p.free = append(p.free, int32(i))
	}
	p.live = 0
}

func (p *smallPage) object(i int) []byte {
	off := i * p.objSize
	return p.mem[off : off+p.objSize : off+p.objSize]
}

// index maps addr to an object index. Only exact object starts match.
func (p *smallPage) index(addr uintptr) (int, bool) {
	if p.class < 0 || addr < p.base {
		return 0, false
	}
	off := int(addr - p.base)
	if off%p.objSize != 0 || off/p.objSize >= p.objects {
		return 0, false
	}
	return off / p.objSize, true
}

// allocateSmall returns a zeroed object of class, or nil when no chunk can be
// mapped. h.mu must be held.
func (h *Heap) allocateSmall(class int) []byte {
	list := h.partial[class]
	var p *smallPage
	if n := len(list); n > 0 {
		p = list[n-1]
	} else {
		p = h.takeFreePage(class)
		if p == nil {
			return nil
		}
	}

	i := int(p.free[len(p.free)-1])
	p.free = p.free[:len(p.free)-1]
	p.allocated.Set(uint(i))
	p.live++
	if len(p.free) == 0 {
		h.removePartial(p)
	}
	h.stats.SmallAllocs++
	h.stats.SmallLiveBytes += p.objSize

	mem := p.object(i)
	clear(mem)
	return mem
}

// freeSmall returns the object starting at addr. h.mu must be held.
func (h *Heap) freeSmall(addr uintptr) error {
	p, ok := h.pages[buf.RoundDownPtr(addr, h.pageSize)]
	if !ok {
		return ErrNotAllocated
	}
	i, ok := p.index(addr)
	if !ok || !p.allocated.Test(uint(i)) {
		return ErrNotAllocated
	}

	wasFull := len(p.free) == 0
	p.allocated.Clear(uint(i))
	p.free = append(p.free, int32(i))
	p.live--
	h.stats.SmallFrees++
	h.stats.SmallLiveBytes -= p.objSize

	switch {
	case p.live == 0:
		if !wasFull {
			h.removePartial(p)
		}
		p.class = -1
		p.freedAt = h.now()
		h.freePages = append(h.freePages, p)
	case wasFull:
		h.addPartial(p)
	}
	return nil
}

// takeFreePage formats a free page for class, mapping a chunk if none is
// left. h.mu must be held.
func (h *Heap) takeFreePage(class int) *smallPage {
	if len(h.freePages) == 0 && !h.mapChunk() {
		return nil
	}
	p := h.freePages[len(h.freePages)-1]
	h.freePages = h.freePages[:len(h.freePages)-1]
	if !p.committed {
		if err := h.mapper.Commit(p.mem); err != nil {
			h.log.Warn("committing small page failed", "base", p.base, "err", err)
			h.freePages = append(h.freePages, p)
			return nil
		}
		p.committed = true
		h.footprint += len(p.mem)
		h.stats.Commits++
	}
	p.format(class)
	h.addPartial(p)
	return p
}

func (h *Heap) mapChunk() bool {
	region, err := h.mapper.Map(h.chunkSize, h.chunkSize)
	if err != nil {
		h.log.Warn("mapping small chunk failed", "size", h.chunkSize, "err", err)
		return false
	}
	c := &chunk{region: region}
	now := h.now()
	for off := 0; off < h.chunkSize; off += h.pageSize {
		mem := region.Mem[off : off+h.pageSize : off+h.pageSize]
		p := &smallPage{
			chunk:       c,
			mem:         mem,
			base:        vmem.Addr(mem),
			off:         off,
			class:       -1,
			partialSlot: -1,
			committed:   true,
			freedAt:     now,
		}
		c.pages = append(c.pages, p)
		h.pages[p.base] = p
	}
	// Push in reverse so the lowest page is taken first.
	for i := len(c.pages) - 1; i >= 0; i-- {
		h.freePages = append(h.freePages, c.pages[i])
	}
	h.chunks = append(h.chunks, c)
	h.mapped += h.chunkSize
	h.footprint += h.chunkSize
	return true
}

func (h *Heap) addPartial(p *smallPage) {
	p.partialSlot = len(h.partial[p.class])
	h.partial[p.class] = append(h.partial[p.class], p)
}

func (h *Heap) removePartial(p *smallPage) {
	list := h.partial[p.class]
	last := len(list) - 1
	list[p.partialSlot] = list[last]
	list[p.partialSlot].partialSlot = p.partialSlot
	list[last] = nil
	h.partial[p.class] = list[:last]
	p.partialSlot = -1
}
