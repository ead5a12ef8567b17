package bmalloc

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/vmem"
)

const (
	// cacheBatch is how many objects a Cache takes from its heap per refill.
	cacheBatch = 16

	// deferredLogSize is how many frees a Cache buffers before returning
	// them to its heap.
	deferredLogSize = 64
)

// Cache fronts one heap for a single goroutine. Small allocations come from
// per-class object stacks refilled in batches; small frees are logged and
// returned to the heap together. Large requests go straight to the heap.
//
// A Cache is meant to be used by one goroutine. Its mutex only makes the
// Allocator's drain in Scavenge safe.
type Cache struct {
	alloc *Allocator
	heap  *Heap
	kind  HeapKind

	mu       sync.Mutex
	objects  [numSmallClasses][][]byte
	deferred [][]byte
	closed   bool
}

// Allocate returns size zeroed bytes, or nil on exhaustion or once the
// Allocator is closed.
func (c *Cache) Allocate(size int) []byte {
	checkSize(size)
	if c.alloc.closed.Load() {
		return nil
	}
	if size > SmallMax || c.heap == nil {
		return c.alloc.TryAllocate(size, c.kind)
	}

	class := smallClassFor(size)
	c.mu.Lock()
	defer c.mu.Unlock()

	stack := c.objects[class]
	if len(stack) == 0 {
		stack = c.refill(class, stack)
		if len(stack) == 0 {
			return nil
		}
	}
	mem := stack[len(stack)-1]
	stack[len(stack)-1] = nil
	c.objects[class] = stack[:len(stack)-1]
	return mem[:size]
}

func (c *Cache) refill(class int, stack [][]byte) [][]byte {
	h := c.heap
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.alloc.closed.Load() {
		return stack
	}
	for range cacheBatch {
		mem := h.allocateSmall(class)
		if mem == nil {
			break
		}
		stack = append(stack, mem)
	}
	// Hand out the lowest address first.
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	c.objects[class] = stack
	return stack
}

// Free returns mem, which must come from this Cache or its heap. Small frees
// are deferred; a bad small free is reported by the flush that returns it.
func (c *Cache) Free(mem []byte) error {
	if c.alloc.closed.Load() {
		return ErrClosed
	}
	if c.heap == nil || cap(mem) > SmallMax {
		return c.alloc.Free(mem, c.kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = append(c.deferred, mem)
	if len(c.deferred) < deferredLogSize {
		return nil
	}
	return c.flushDeferred()
}

// Flush returns the deferred frees to the heap.
func (c *Cache) Flush() error {
	if c.alloc.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushDeferred()
}

func (c *Cache) flushDeferred() error {
	if len(c.deferred) == 0 {
		return nil
	}
	h := c.heap
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs error
	for i, mem := range c.deferred {
		if err := h.freeSmall(vmem.Addr(mem)); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "deferred free of %#x", vmem.Addr(mem)))
		}
		c.deferred[i] = nil
	}
	c.deferred = c.deferred[:0]
	return errs
}

// Scavenge returns every deferred free and every cached object to the heap.
// Once the Allocator is closed the cache only forgets what it holds.
func (c *Cache) Scavenge() error {
	if c.heap == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.alloc.closed.Load() {
		c.forget()
		return nil
	}

	errs := c.flushDeferred()

	h := c.heap
	h.mu.Lock()
	defer h.mu.Unlock()
	for class, stack := range c.objects {
		for i, mem := range stack {
			errs = errors.CombineErrors(errs, h.freeSmall(vmem.Addr(mem)))
			stack[i] = nil
		}
		c.objects[class] = stack[:0]
	}
	return errs
}

func (c *Cache) forget() {
	for class := range c.objects {
		c.objects[class] = nil
	}
	c.deferred = nil
}

// Cached returns the number of objects waiting in the cache's stacks and the
// number of deferred frees.
func (c *Cache) Cached() (objects, deferred int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stack := range c.objects {
		objects += len(stack)
	}
	return objects, len(c.deferred)
}

// Close scavenges the cache and unregisters it. Calling Close twice is a
// no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()
	if closed {
		return nil
	}
	err := c.Scavenge()
	c.alloc.unregisterCache(c)
	return err
}
