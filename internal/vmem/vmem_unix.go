//go:build unix

package vmem

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/joshuapare/heapkit/internal/buf"
)

type systemMapper struct {
	pageSize int
}

// System returns the kernel-backed Mapper: private anonymous mmap, with
// madvise for decommit. See purgePages for how zero contents are ensured.
func System() Mapper {
	return systemMapper{pageSize: unix.Getpagesize()}
}

func (m systemMapper) PageSize() int { return m.pageSize }

func (m systemMapper) Map(size, alignment int) (Region, error) {
	if err := checkRequest(size, alignment); err != nil {
		return Region{}, err
	}
	length, ok := buf.RoundUp(size, m.pageSize)
	if !ok {
		return Region{}, ErrExhausted
	}
	// Over-map so an aligned window of the requested size always exists. The
	// slack is never touched, so it costs address space only.
	if alignment > m.pageSize {
		if length, ok = buf.AddOverflowSafe(length, alignment); !ok {
			return Region{}, ErrExhausted
		}
	}
	raw, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return Region{}, errors.Wrapf(ErrExhausted, "mmap %d bytes: %v", length, err)
		}
		return Region{}, errors.Wrapf(err, "vmem: mmap %d bytes", length)
	}
	return Region{Mem: alignWithin(raw, size, alignment), mapping: raw}, nil
}

func (m systemMapper) Unmap(r Region) error {
	if r.mapping == nil {
		return nil
	}
	err := unix.Munmap(r.mapping)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}

func (m systemMapper) Commit(mem []byte) error {
	_, pages, _ := m.split(mem)
	if len(pages) == 0 {
		return nil
	}
	return unix.Madvise(pages, unix.MADV_NORMAL)
}

func (m systemMapper) Decommit(mem []byte) error {
	head, pages, tail := m.split(mem)
	clear(head)
	clear(tail)
	if len(pages) == 0 {
		return nil
	}
	return purgePages(pages)
}

// ZeroAndPurge is Decommit: purgePages leaves whole pages zero and the
// partial pages at the edges are cleared by hand.
func (m systemMapper) ZeroAndPurge(mem []byte) error {
	return m.Decommit(mem)
}

// split cuts mem into an unaligned head, whole pages, and an unaligned tail.
func (m systemMapper) split(mem []byte) (head, pages, tail []byte) {
	if len(mem) == 0 {
		return nil, nil, nil
	}
	base := Addr(mem)
	start := int((uintptr(m.pageSize) - base%uintptr(m.pageSize)) % uintptr(m.pageSize))
	if start >= len(mem) {
		return mem, nil, nil
	}
	end := start + (len(mem)-start)/m.pageSize*m.pageSize
	return mem[:start], mem[start:end], mem[end:]
}
