package gcheap

import "iter"

// ForEachBlock calls fn for every block: precise classes first, then
// imprecise, each in list order. Liveness is canonicalized first.
func (s *Space) ForEachBlock(fn func(*Block)) {
	for b := range s.Blocks() {
		fn(b)
	}
}

// Blocks is the iterator form of ForEachBlock.
func (s *Space) Blocks() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		s.CanonicalizeCellLivenessData()
		for b := range s.allBlocks() {
			if !yield(b) {
				return
			}
		}
	}
}

// ForEachCell calls fn for every live cell in block order, then index order.
func (s *Space) ForEachCell(fn func(Cell)) {
	for c := range s.Cells() {
		fn(c)
	}
}

// Cells is the iterator form of ForEachCell.
func (s *Space) Cells() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		s.CanonicalizeCellLivenessData()
		for b := range s.allBlocks() {
			for c := range b.LiveCells() {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// blockFilter is a one-word bloom filter over block bases. It has no false
// negatives and forgets nothing.
type blockFilter struct {
	bits uintptr
}

func (f *blockFilter) add(base uintptr) { f.bits |= base }

func (f blockFilter) ruleOut(base uintptr) bool {
	return base == 0 || base&f.bits != base
}
