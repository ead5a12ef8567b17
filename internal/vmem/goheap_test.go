package vmem

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestGoHeapMapAligned(t *testing.T) {
	m := GoHeap()
	for _, align := range []int{16, 32, 4096, 64 * 1024} {
		r, err := m.Map(align, align)
		require.NoError(t, err)
		require.Len(t, r.Mem, align)
		require.Zero(t, r.Base()%uintptr(align), "alignment %d", align)
		require.NoError(t, m.Unmap(r))
	}
}

func TestGoHeapDecommitClears(t *testing.T) {
	m := GoHeap()
	r, err := m.Map(8192, 4096)
	require.NoError(t, err)
	for i := range r.Mem {
		r.Mem[i] = 0xAA
	}
	require.NoError(t, m.Decommit(r.Mem[:4096]))
	require.Equal(t, byte(0), r.Mem[0])
	require.Equal(t, byte(0xAA), r.Mem[4096])
	require.NoError(t, m.ZeroAndPurge(r.Mem))
	for _, b := range r.Mem {
		require.Zero(t, b)
	}
}

func TestMapRejectsBadRequests(t *testing.T) {
	m := GoHeap()
	_, err := m.Map(0, 16)
	require.True(t, errors.Is(err, ErrBadRequest))
	_, err = m.Map(64, 24)
	require.True(t, errors.Is(err, ErrBadRequest))
}

func TestLimited(t *testing.T) {
	l := NewLimited(GoHeap(), 8192)
	a, err := l.Map(4096, 4096)
	require.NoError(t, err)
	_, err = l.Map(4096, 4096)
	require.NoError(t, err)
	_, err = l.Map(4096, 4096)
	require.True(t, errors.Is(err, ErrExhausted))
	require.Equal(t, 8192, l.Mapped())

	require.NoError(t, l.Unmap(a))
	require.Equal(t, 4096, l.Mapped())
	_, err = l.Map(4096, 4096)
	require.NoError(t, err)
}
