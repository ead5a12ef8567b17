package bmalloc

import (
	"runtime/debug"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/vmem"
)

// DebugHeap serves every request from the Go heap.
type DebugHeap struct {
	mapper vmem.Mapper

	mu      sync.Mutex
	live    map[uintptr]vmem.Region
	virtual map[uintptr]vmem.Region
	bytes   int
}

func newDebugHeap() *DebugHeap {
	return &DebugHeap{
		mapper:  vmem.GoHeap(),
		live:    make(map[uintptr]vmem.Region),
		virtual: make(map[uintptr]vmem.Region),
	}
}

func (d *DebugHeap) memalign(alignment, size int, virtual bool) []byte {
	r, err := d.mapper.Map(size, alignment)
	if err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if virtual {
		d.virtual[r.Base()] = r
	} else {
		d.live[r.Base()] = r
	}
	d.bytes += r.Len()
	return r.Mem
}

func (d *DebugHeap) free(mem []byte, virtual bool) error {
	addr := vmem.Addr(mem)
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.live
	if virtual {
		set = d.virtual
	}
	r, ok := set[addr]
	if !ok {
		return errors.Wrapf(ErrNotAllocated, "debug heap %#x", addr)
	}
	if virtual && r.Len() != len(mem) {
		return errors.Wrapf(ErrSizeMismatch, "debug heap %#x has %d bytes, freed with %d", addr, r.Len(), len(mem))
	}
	delete(set, addr)
	d.bytes -= r.Len()
	return nil
}

func (d *DebugHeap) scavenge() {
	debug.FreeOSMemory()
}

// LiveBytes returns the bytes currently handed out.
func (d *DebugHeap) LiveBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}
