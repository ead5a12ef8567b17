package gcheap

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// BlockState tracks how a block's liveness is currently recorded.
type BlockState uint8

const (
	// BlockNew has never been swept; every cell is free.
	BlockNew BlockState = iota
	// BlockFreeListed owns the free list its SizeClass is allocating from.
	BlockFreeListed
	// BlockAllocated had its free list consumed; every cell is allocated.
	BlockAllocated
	// BlockMarked records liveness in its mark bitmap.
	BlockMarked
	// BlockZapped records the cells left on an abandoned free list.
	BlockZapped
)

func (s BlockState) String() string {
	switch s {
	case BlockNew:
		return "new"
	case BlockFreeListed:
		return "free-listed"
	case BlockAllocated:
		return "allocated"
	case BlockMarked:
		return "marked"
	case BlockZapped:
		return "zapped"
	default:
		return "unknown"
	}
}

// Block is a BlockSize-aligned region divided into equal cells.
type Block struct {
	region vmem.Region
	mem    []byte
	base   uintptr

	cellSize int
	cells    int
	state    BlockState

	// marks holds liveness once canonical; zapped holds the free cells of a
	// zapped list. Neither is meaningful while FreeListed.
	marks  *bitset.BitSet
	zapped *bitset.BitSet

	class      *SizeClass
	prev, next *Block
}

func newBlock(region vmem.Region, cellSize int) *Block {
	b := &Block{region: region, mem: region.Mem, base: region.Base()}
	b.reset(cellSize)
	return b
}

// reset reformats b for cellSize. The block must not belong to a SizeClass.
func (b *Block) reset(cellSize int) {
	b.cellSize = cellSize
	b.cells = len(b.mem) / cellSize
	b.state = BlockNew
	if b.marks == nil || b.marks.Len() != uint(b.cells) {
		b.marks = bitset.New(uint(b.cells))
		b.zapped = bitset.New(uint(b.cells))
	} else {
		b.marks.ClearAll()
		b.zapped.ClearAll()
	}
	b.class, b.prev, b.next = nil, nil, nil
}

// Base returns the block's aligned start address.
func (b *Block) Base() uintptr { return b.base }

// Size returns the block size in bytes.
func (b *Block) Size() int { return len(b.mem) }

// CellSize returns the size of every cell in the block.
func (b *Block) CellSize() int { return b.cellSize }

// CellCount returns the number of cells that fit in the block.
func (b *Block) CellCount() int { return b.cells }

// State returns the block's liveness state.
func (b *Block) State() BlockState { return b.state }

// SizeClass returns the owning class, or nil for a pooled block.
func (b *Block) SizeClass() *SizeClass { return b.class }

// Contains reports whether addr falls inside the block.
func (b *Block) Contains(addr uintptr) bool {
	return addr >= b.base && addr-b.base < uintptr(len(b.mem))
}

// Cell returns the handle for cell i.
func (b *Block) Cell(i CellIndex) Cell {
	b.checkIndex(i)
	return Cell{block: b, index: i}
}

// CellAt maps addr to a cell index. Only the exact start of a cell matches;
// interior pointers and the trailing slack after the last cell do not.
func (b *Block) CellAt(addr uintptr) (CellIndex, bool) {
	if !b.Contains(addr) {
		return noCell, false
	}
	off := addr - b.base
	if off%uintptr(b.cellSize) != 0 {
		return noCell, false
	}
	i := off / uintptr(b.cellSize)
	if i >= uintptr(b.cells) {
		return noCell, false
	}
	return CellIndex(i), true
}

// IsLiveCell reports whether cell i is allocated or marked. The answer is
// undefined while the block owns an active free list.
func (b *Block) IsLiveCell(i CellIndex) bool {
	b.checkIndex(i)
	switch b.state {
	case BlockNew:
		return false
	case BlockAllocated:
		return true
	case BlockMarked:
		return b.marks.Test(uint(i))
	case BlockZapped:
		return !b.zapped.Test(uint(i))
	default:
		panic(errors.AssertionFailedf("gcheap: liveness of block %#x queried while %s", b.base, b.state))
	}
}

// LiveCount returns the number of live cells.
func (b *Block) LiveCount() int {
	switch b.state {
	case BlockNew:
		return 0
	case BlockAllocated:
		return b.cells
	case BlockMarked:
		return int(b.marks.Count())
	case BlockZapped:
		return b.cells - int(b.zapped.Count())
	default:
		panic(errors.AssertionFailedf("gcheap: liveness of block %#x queried while %s", b.base, b.state))
	}
}

// LiveCells yields the live cells in index order.
func (b *Block) LiveCells() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		if b.state == BlockNew {
			return
		}
		for i := 0; i < b.cells; i++ {
			if b.IsLiveCell(CellIndex(i)) && !yield(Cell{block: b, index: CellIndex(i)}) {
				return
			}
		}
	}
}

// sweep builds a free list of every dead cell and returns its head and
// length. Cells are linked in ascending index order.
func (b *Block) sweep() (CellIndex, int) {
	switch b.state {
	case BlockFreeListed:
		panic(errors.AssertionFailedf("gcheap: sweeping block %#x with an outstanding free list", b.base))
	case BlockAllocated:
		return noCell, 0
	case BlockZapped:
		b.canonicalizeCellLivenessData(noCell)
	}

	head, n := noCell, 0
	for i := b.cells - 1; i >= 0; i-- {
		if b.state == BlockMarked && b.marks.Test(uint(i)) {
			continue
		}
		b.setNextFree(CellIndex(i), head)
		head = CellIndex(i)
		n++
	}
	if head != noCell {
		b.state = BlockFreeListed
		b.zapped.ClearAll()
	}
	return head, n
}

// didConsumeFreeList records that every cell on the block's list was handed out.
func (b *Block) didConsumeFreeList() {
	if b.state != BlockFreeListed {
		panic(errors.AssertionFailedf("gcheap: block %#x consumed a free list while %s", b.base, b.state))
	}
	b.state = BlockAllocated
}

// zapFreeList records the cells still reachable from head as free and drops
// the list.
func (b *Block) zapFreeList(head CellIndex) {
	if b.state != BlockFreeListed {
		if head != noCell {
			panic(errors.AssertionFailedf("gcheap: zapping a free list into block %#x while %s", b.base, b.state))
		}
		return
	}
	b.zapped.ClearAll()
	n := 0
	for i := head; i != noCell; i = b.nextFree(i) {
		if n == b.cells {
			panic(errors.Mark(errors.AssertionFailedf("gcheap: free list of block %#x loops", b.base), ErrCorruptFreeList))
		}
		b.zapped.Set(uint(i))
		n++
	}
	b.state = BlockZapped
}

// canonicalizeCellLivenessData moves liveness into the mark bitmap so that
// the block is either New or Marked afterwards.
func (b *Block) canonicalizeCellLivenessData(head CellIndex) {
	switch b.state {
	case BlockFreeListed:
		b.zapFreeList(head)
		b.marksFromZapped()
	case BlockZapped:
		b.marksFromZapped()
	case BlockAllocated:
		for i := 0; i < b.cells; i++ {
			b.marks.Set(uint(i))
		}
		b.state = BlockMarked
	default:
		if head != noCell {
			panic(errors.AssertionFailedf("gcheap: canonicalizing a free list into block %#x while %s", b.base, b.state))
		}
	}
}

func (b *Block) marksFromZapped() {
	b.marks.ClearAll()
	for i := 0; i < b.cells; i++ {
		if !b.zapped.Test(uint(i)) {
			b.marks.Set(uint(i))
		}
	}
	b.zapped.ClearAll()
	b.state = BlockMarked
}

func (b *Block) clearMarks() {
	switch b.state {
	case BlockNew:
	case BlockMarked:
		b.marks.ClearAll()
	default:
		panic(errors.AssertionFailedf("gcheap: clearing marks of block %#x while %s", b.base, b.state))
	}
}

// setMarked marks cell i and reports whether it was unmarked.
func (b *Block) setMarked(i CellIndex) bool {
	b.checkIndex(i)
	if b.state != BlockMarked {
		panic(errors.AssertionFailedf("gcheap: marking a cell of block %#x while %s", b.base, b.state))
	}
	if b.marks.Test(uint(i)) {
		return false
	}
	b.marks.Set(uint(i))
	return true
}

func (b *Block) take(i CellIndex) Cell {
	c := Cell{block: b, index: i}
	clear(c.Bytes())
	return c
}

func (b *Block) cellBytes(i CellIndex) []byte {
	b.checkIndex(i)
	p, ok := buf.Slice(b.mem, int(i)*b.cellSize, b.cellSize)
	if !ok {
		panic(errors.AssertionFailedf("gcheap: cell %d outside block %#x", i, b.base))
	}
	return p
}

func (b *Block) nextFree(i CellIndex) CellIndex {
	next := CellIndex(buf.U32LE(b.cellBytes(i))) - 1
	if next != noCell && (next < 0 || int(next) >= b.cells) {
		panic(errors.Mark(errors.AssertionFailedf("gcheap: free cell %d of block %#x links to %d", i, b.base, next), ErrCorruptFreeList))
	}
	return next
}

func (b *Block) setNextFree(i, next CellIndex) {
	buf.PutU32LE(b.cellBytes(i), uint32(next+1))
}

func (b *Block) checkIndex(i CellIndex) {
	if i < 0 || int(i) >= b.cells {
		panic(errors.AssertionFailedf("gcheap: cell index %d out of range [0, %d)", i, b.cells))
	}
}
