package gcheap

// CellIndex addresses a cell inside its block.
type CellIndex int32

// noCell terminates free lists.
const noCell CellIndex = -1

// Cell is a handle to one allocated cell. The zero Cell refers to nothing.
type Cell struct {
	block *Block
	index CellIndex
}

// IsZero reports whether c is the zero Cell.
func (c Cell) IsZero() bool { return c.block == nil }

// Block returns the block holding c.
func (c Cell) Block() *Block { return c.block }

// Index returns c's position in its block.
func (c Cell) Index() CellIndex { return c.index }

// Size returns the cell size, which may exceed the requested byte count.
func (c Cell) Size() int { return c.block.cellSize }

// Addr returns the address of the cell's first byte. Conservative root
// scanning maps such words back to cells.
func (c Cell) Addr() uintptr {
	return c.block.base + uintptr(c.index)*uintptr(c.block.cellSize)
}

// Bytes returns the cell's storage. The slice is capped at the cell size.
func (c Cell) Bytes() []byte {
	return c.block.cellBytes(c.index)
}
