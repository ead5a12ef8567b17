// Package testutil holds assertions shared by the allocator tests.
package testutil

import (
	"cmp"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/vmem"
)

// Span is an allocated address range.
type Span struct {
	Addr uintptr
	Size int
}

// SpanOf returns the span covered by mem.
func SpanOf(mem []byte) Span {
	return Span{Addr: vmem.Addr(mem), Size: len(mem)}
}

func (s Span) End() uintptr { return s.Addr + uintptr(s.Size) }

// RequireDisjoint fails t if any two spans overlap. spans is sorted in place.
func RequireDisjoint(t testing.TB, spans []Span) {
	t.Helper()
	slices.SortFunc(spans, func(a, b Span) int { return cmp.Compare(a.Addr, b.Addr) })
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		require.LessOrEqual(t, prev.End(), cur.Addr,
			"span [%#x, %#x) overlaps [%#x, %#x)", prev.Addr, prev.End(), cur.Addr, cur.End())
	}
}

// Fill writes tag to every byte of mem.
func Fill(mem []byte, tag byte) {
	for i := range mem {
		mem[i] = tag
	}
}

// RequireFilled fails t unless every byte of mem is tag.
func RequireFilled(t testing.TB, mem []byte, tag byte) {
	t.Helper()
	for i, v := range mem {
		if v != tag {
			require.Failf(t, "unexpected byte", "offset %d of %d-byte range is %#x, want %#x", i, len(mem), v, tag)
		}
	}
}

// RequireZeroed fails t unless mem is all zero.
func RequireZeroed(t testing.TB, mem []byte) {
	t.Helper()
	RequireFilled(t, mem, 0)
}
