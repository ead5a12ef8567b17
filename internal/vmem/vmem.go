// Package vmem provides the page-granular virtual memory layer the allocators
// are built on: aligned anonymous mappings plus commit, decommit, and
// zero-and-purge of page ranges.
//
// Two backends exist. System maps anonymous memory from the kernel on unix
// (x/sys/unix mmap/madvise) and falls back to GoHeap elsewhere. GoHeap carves
// aligned regions out of ordinary Go byte slices, which makes block sizes
// smaller than a page usable in tests.
package vmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// ErrExhausted is returned (possibly wrapped) when the backend cannot provide
// more address space.
var ErrExhausted = errors.New("vmem: address space exhausted")

// ErrBadRequest reports an invalid size or alignment.
var ErrBadRequest = errors.New("vmem: bad mapping request")

// Mapper is the page allocation layer.
type Mapper interface {
	// PageSize returns the granule used for commit accounting.
	PageSize() int

	// Map returns a region of exactly size bytes whose first byte is aligned
	// to alignment. alignment must be a power of two.
	Map(size, alignment int) (Region, error)

	// Unmap releases a region returned by Map.
	Unmap(r Region) error

	// Commit makes a previously decommitted range usable again.
	Commit(mem []byte) error

	// Decommit returns the physical pages behind mem to the OS while keeping
	// the virtual range reserved. Contents read back as zero on every
	// backend; where the kernel does not guarantee it the pages are zeroed
	// first.
	Decommit(mem []byte) error

	// ZeroAndPurge zero-fills mem and tags its pages as reclaimable.
	ZeroAndPurge(mem []byte) error
}

// Region is an aligned mapping.
type Region struct {
	// Mem is the usable, aligned part of the mapping.
	Mem []byte

	mapping []byte
}

// Base returns the address of the first usable byte.
func (r Region) Base() uintptr {
	return Addr(r.Mem)
}

// Len returns the usable length.
func (r Region) Len() int {
	return len(r.Mem)
}

// Addr returns the address of mem's first byte, or 0 for an empty slice.
func Addr(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}

// alignWithin returns the aligned sub-slice of length size inside raw.
func alignWithin(raw []byte, size, alignment int) []byte {
	base := Addr(raw)
	off := int((uintptr(alignment) - base%uintptr(alignment)) % uintptr(alignment))
	return raw[off : off+size : off+size]
}

func checkRequest(size, alignment int) error {
	if size <= 0 {
		return errors.Wrapf(ErrBadRequest, "size %d", size)
	}
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return errors.Wrapf(ErrBadRequest, "alignment %d is not a power of two", alignment)
	}
	return nil
}
