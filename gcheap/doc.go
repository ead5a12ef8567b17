// Package gcheap implements a segregated-fit, size-classed cell allocator over
// a block-based garbage-collected heap.
//
// # Overview
//
// A Space owns a fixed table of SizeClasses. Each SizeClass owns a list of
// Blocks whose cells all share the class's cell size. Allocation maps the
// requested byte count to a SizeClass and pops the head of that class's free
// list; the free list lives inside the free cells themselves.
//
// # Size Classes
//
// Small requests land in "precise" classes, one per AtomSize (16 bytes) up to
// 256 bytes. Larger requests land in "imprecise" classes in 256-byte steps up
// to MaxCellSize (2048 bytes):
//
//	Precise:   16, 32, 48, ... 256      (16 classes)
//	Imprecise: 256, 512, 768, ... 2048  (8 classes)
//
// The mapping is monotonic: a larger request never gets a smaller cell.
//
// # Allocation
//
//	sp, err := gcheap.New(gcheap.Options{})
//	if err != nil {
//	    return err
//	}
//	defer sp.Close()
//
//	cell := sp.Allocate(40)   // 48-byte cell
//	copy(cell.Bytes(), payload)
//
// The fast path is a pop from a singly linked list with no locking. When the
// list is empty the slow path sweeps the next block of the class into a new
// free list, runs the configured Collector once the new-block budget is spent,
// or maps a fresh block. Running out of address space on this path is fatal:
// OnOutOfMemory is called and Allocate panics with an error marked
// ErrOutOfMemory.
//
// # Collection
//
// There is no Free. A Collector reclaims cells at a safepoint:
//
//	sp.CanonicalizeCellLivenessData() // flush free lists into mark bitmaps
//	// ... find roots while liveness is canonical ...
//	sp.ClearMarks()
//	sp.Mark(root)                     // for every reachable cell
//	sp.ResetAllocator()               // rewind every class to its first block
//
// Blocks are swept lazily on the next allocations: every unmarked cell goes
// back on a free list. See the conservative package for a root-marking
// Collector.
//
// # Thread Safety
//
// A Space is owned by a single mutator goroutine. Nothing is locked; sharing
// a Space between goroutines requires external synchronization, and a second
// mutator should use its own Space.
package gcheap
