package bmalloc

// HeapStats describes one heap.
type HeapStats struct {
	Kind string

	MappedBytes                int
	FootprintBytes             int
	ExternallyDecommittedBytes int
	SmallLiveBytes             int
	LargeLiveBytes             int
	VirtualLiveBytes           int

	FreePages       int
	FreeLargeRanges int
	FreeLargeBytes  int

	SmallAllocs   uint64
	SmallFrees    uint64
	LargeAllocs   uint64
	LargeFrees    uint64
	VirtualAllocs uint64
	VirtualFrees  uint64

	Commits           uint64
	Decommits         uint64
	ExternalCommits   uint64
	ExternalDecommits uint64
	ScavengedBytes    uint64
}

// Stats is a snapshot of an Allocator.
type Stats struct {
	ID             string
	DebugHeap      bool
	MiniMode       bool
	Caches         int
	DebugLiveBytes int
	Heaps          []HeapStats
	Scavenger      ScavengerStats
}

// Stats returns a snapshot of the heap.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.stats
	st.Kind = h.kind.String()
	st.MappedBytes = h.mapped
	st.FootprintBytes = h.footprint
	st.ExternallyDecommittedBytes = h.external
	for _, r := range h.virtualLive {
		st.VirtualLiveBytes += r.size
	}
	st.FreePages = len(h.freePages)
	st.FreeLargeRanges = h.large.Len()
	h.large.Ascend(func(r largeRange) bool {
		st.FreeLargeBytes += r.size
		return true
	})
	return st
}
