package gcheap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/vmem"
)

func newTestBlock(t *testing.T, blockSize, cellSize int) *Block {
	t.Helper()
	r, err := vmem.GoHeap().Map(blockSize, blockSize)
	require.NoError(t, err)
	return newBlock(r, cellSize)
}

func freeList(b *Block, head CellIndex) []CellIndex {
	var out []CellIndex
	for i := head; i != noCell; i = b.nextFree(i) {
		out = append(out, i)
	}
	return out
}

func Test_Block_SweepNew(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	require.Equal(t, 16, b.CellCount())
	require.Equal(t, BlockNew, b.State())

	head, n := b.sweep()
	require.Equal(t, 16, n)
	require.Equal(t, BlockFreeListed, b.State())

	list := freeList(b, head)
	require.Len(t, list, 16)
	for i, idx := range list {
		require.Equal(t, CellIndex(i), idx, "free list must be ascending")
	}
}

func Test_Block_SweepFreeListedPanics(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	b.sweep()
	require.Panics(t, func() { b.sweep() })
}

func Test_Block_ConsumedBlockIsAllLive(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	b.sweep()
	b.didConsumeFreeList()
	require.Equal(t, BlockAllocated, b.State())

	head, n := b.sweep()
	require.Equal(t, noCell, head)
	require.Zero(t, n)

	b.canonicalizeCellLivenessData(noCell)
	require.Equal(t, BlockMarked, b.State())
	require.Equal(t, 16, b.LiveCount())

	b.clearMarks()
	require.Zero(t, b.LiveCount())
}

func Test_Block_SweepMarkedSkipsMarkedCells(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	b.sweep()
	b.didConsumeFreeList()
	b.canonicalizeCellLivenessData(noCell)
	b.clearMarks()
	require.True(t, b.setMarked(3))
	require.False(t, b.setMarked(3))
	require.True(t, b.setMarked(9))

	head, n := b.sweep()
	require.Equal(t, 14, n)
	list := freeList(b, head)
	require.NotContains(t, list, CellIndex(3))
	require.NotContains(t, list, CellIndex(9))
	require.Equal(t, CellIndex(0), list[0])
}

func Test_Block_ZapThenCanonicalize(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	head, _ := b.sweep()

	// Hand out cells 0 and 1, leaving 2..15 on the list.
	head = b.nextFree(head)
	head = b.nextFree(head)

	b.zapFreeList(head)
	require.Equal(t, BlockZapped, b.State())
	require.True(t, b.IsLiveCell(0))
	require.True(t, b.IsLiveCell(1))
	require.False(t, b.IsLiveCell(2))
	require.Equal(t, 2, b.LiveCount())

	b.canonicalizeCellLivenessData(noCell)
	require.Equal(t, BlockMarked, b.State())
	require.Equal(t, 2, b.LiveCount())

	// A zapped block sweeps back to exactly the zapped cells.
	b2 := newTestBlock(t, 1024, 64)
	h2, _ := b2.sweep()
	b2.zapFreeList(b2.nextFree(h2))
	_, n := b2.sweep()
	require.Equal(t, 15, n)
}

func Test_Block_CellAt(t *testing.T) {
	// 1024/48 leaves 16 bytes of slack after cell 20.
	b := newTestBlock(t, 1024, 48)
	require.Equal(t, 21, b.CellCount())

	i, ok := b.CellAt(b.Base() + 48*5)
	require.True(t, ok)
	require.Equal(t, CellIndex(5), i)

	_, ok = b.CellAt(b.Base() + 48*5 + 8)
	require.False(t, ok, "interior pointer")

	_, ok = b.CellAt(b.Base() + 48*21)
	require.False(t, ok, "slack after the last cell")

	_, ok = b.CellAt(b.Base() + 1024)
	require.False(t, ok, "one past the block")
}

func Test_Block_CellBytesCapped(t *testing.T) {
	b := newTestBlock(t, 1024, 64)
	p := b.Cell(2).Bytes()
	require.Len(t, p, 64)
	require.Equal(t, 64, cap(p))
}
