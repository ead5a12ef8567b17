package vmem

import "github.com/joshuapare/heapkit/internal/buf"

// simulatedPageSize is the granule GoHeap reports. It matches the common
// hardware page so accounting looks the same as with System.
const simulatedPageSize = 4096

type goHeap struct{}

// GoHeap returns a Mapper backed by Go-allocated byte slices. Decommit and
// ZeroAndPurge clear memory instead of releasing it.
func GoHeap() Mapper {
	return goHeap{}
}

func (goHeap) PageSize() int { return simulatedPageSize }

func (goHeap) Map(size, alignment int) (Region, error) {
	if err := checkRequest(size, alignment); err != nil {
		return Region{}, err
	}
	total, ok := buf.AddOverflowSafe(size, alignment)
	if !ok {
		return Region{}, ErrExhausted
	}
	raw := make([]byte, total)
	return Region{Mem: alignWithin(raw, size, alignment), mapping: raw}, nil
}

func (goHeap) Unmap(r Region) error {
	return nil
}

func (goHeap) Commit(mem []byte) error { return nil }

func (goHeap) Decommit(mem []byte) error {
	clear(mem)
	return nil
}

func (goHeap) ZeroAndPurge(mem []byte) error {
	clear(mem)
	return nil
}
