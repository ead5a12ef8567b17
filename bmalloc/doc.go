// Package bmalloc is a general-purpose, explicitly freed allocator with a
// large "virtual" path and a background scavenger.
//
// # Layout
//
// An Allocator owns one Heap per HeapKind. Each Heap serves:
//
//   - small objects (up to SmallMax bytes) from pages carved out of
//     ChunkSize chunks, one 16-byte size class per page;
//   - large objects from page-aligned free ranges kept in an address-ordered
//     B-tree, growing by mapping new chunks on demand.
//
// Everything a Heap does to its pages and ranges happens under Heap.mu: small
// page allocation, large allocation, and the commit bookkeeping that goes with
// both. The lock is coarse on purpose. Callers that allocate small objects at
// a high rate go through a Cache, which refills and flushes in batches.
//
// # Virtual Allocations
//
// TryLargeZeroedMemalignVirtual hands out page-aligned, zero-filled ranges
// whose pages have been purged. The heap books them as externally
// decommitted so that its footprint only counts memory the heap itself keeps
// resident. FreeLargeVirtual books the range as committed again before it
// returns to the free ranges, which keeps every allocate/free pair balanced:
//
//	mem := a.TryLargeZeroedMemalignVirtual(4096, 10000, bmalloc.Primary)
//	if mem == nil {
//	    return errOutOfAddressSpace
//	}
//	defer a.FreeLargeVirtual(mem, bmalloc.Primary)
//
// # Scavenging
//
// The Scavenger decommits free pages and free large ranges that stayed idle
// for at least one interval, without unmapping them. In mini mode it
// decommits everything free on every pass. It runs on its own goroutine; no
// allocation ever waits for it. Allocator.Scavenge flushes every Cache and
// runs one pass synchronously.
//
// # Debug Heap
//
// With Config.DebugHeap (or HEAPKIT_DEBUG_HEAP=1) every allocation is a plain
// Go allocation, which lets the race detector and the Go runtime's own checks
// see every object.
package bmalloc
