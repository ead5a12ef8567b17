package gcheap

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// SizeClass is one bucket of the segregated free lists. All of its blocks
// hold cells of the same size.
type SizeClass struct {
	space    *Space
	cellSize int
	precise  bool

	// firstFree is the head of currentBlock's free list. It is noCell or a
	// cell of currentBlock.
	firstFree    CellIndex
	currentBlock *Block
	blocks       blockList
}

func (sc *SizeClass) init(s *Space, cellSize int, precise bool) {
	sc.space = s
	sc.cellSize = cellSize
	sc.precise = precise
	sc.firstFree = noCell
}

// CellSize returns the size of the class's cells.
func (sc *SizeClass) CellSize() int { return sc.cellSize }

// IsPrecise reports whether the class belongs to the precise table.
func (sc *SizeClass) IsPrecise() bool { return sc.precise }

// CellsPerBlock returns how many cells one block of this class holds.
func (sc *SizeClass) CellsPerBlock() int { return sc.space.blockSize / sc.cellSize }

// BlockCount returns the number of blocks owned by the class.
func (sc *SizeClass) BlockCount() int { return sc.blocks.n }

// CurrentBlock returns the block the class allocates from next, or nil.
func (sc *SizeClass) CurrentBlock() *Block { return sc.currentBlock }

// Blocks yields the class's blocks in list order.
func (sc *SizeClass) Blocks() iter.Seq[*Block] { return sc.blocks.all() }

// ResetAllocator rewinds the cursor to the first block so the next slow path
// sweeps from the start of the list. An outstanding free list is zapped into
// its block first. Calling it twice is the same as calling it once.
func (sc *SizeClass) ResetAllocator() {
	sc.ZapFreeList()
	sc.currentBlock = sc.blocks.head
}

// ZapFreeList abandons the current free list, recording its cells in the
// current block so that they are not mistaken for live cells.
func (sc *SizeClass) ZapFreeList() {
	if sc.currentBlock == nil {
		if sc.firstFree != noCell {
			panic(errors.AssertionFailedf("gcheap: %d-byte class has free cells but no current block", sc.cellSize))
		}
		return
	}
	sc.currentBlock.zapFreeList(sc.firstFree)
	sc.firstFree = noCell
}

// FreeListLen walks the current free list. The walk is bounded by the block's
// cell count; a loop or an out-of-range link is reported as
// ErrCorruptFreeList.
func (sc *SizeClass) FreeListLen() (n int, err error) {
	if sc.firstFree == noCell {
		return 0, nil
	}
	b := sc.currentBlock
	if b == nil || int(sc.firstFree) >= b.cells {
		return 0, errors.Wrapf(ErrCorruptFreeList, "head %d outside current block", sc.firstFree)
	}
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok || !errors.Is(rerr, ErrCorruptFreeList) {
				panic(r)
			}
			n, err = 0, rerr
		}
	}()
	for i := sc.firstFree; i != noCell; i = b.nextFree(i) {
		if n == b.cells {
			return 0, errors.Wrapf(ErrCorruptFreeList, "list of block %#x loops", b.base)
		}
		n++
	}
	return n, nil
}

func (sc *SizeClass) canonicalizeCellLivenessData() {
	sc.ZapFreeList()
	for b := range sc.blocks.all() {
		b.canonicalizeCellLivenessData(noCell)
	}
}

// tryAllocate pops a cell, refilling the free list from the class's own
// blocks if needed. It never maps memory.
func (sc *SizeClass) tryAllocate() (Cell, bool) {
	if sc.firstFree == noCell && !sc.refill() {
		return Cell{}, false
	}
	b := sc.currentBlock
	head := sc.firstFree
	sc.firstFree = b.nextFree(head)
	return b.take(head), true
}

// refill sweeps forward from the cursor until a block yields free cells. On
// failure the cursor is left at the end of the list.
func (sc *SizeClass) refill() bool {
	b := sc.currentBlock
	if b != nil && b.state == BlockFreeListed {
		b.didConsumeFreeList()
		b = b.next
	}
	for ; b != nil; b = b.next {
		if head, _ := b.sweep(); head != noCell {
			sc.currentBlock, sc.firstFree = b, head
			return true
		}
	}
	sc.currentBlock = nil
	return false
}
