package gcheap

import "iter"

// blockList is the intrusive doubly linked list of a SizeClass's blocks.
type blockList struct {
	head, tail *Block
	n          int
}

func (l *blockList) pushBack(b *Block) {
	b.prev, b.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = b
	} else {
		l.head = b
	}
	l.tail = b
	l.n++
}

func (l *blockList) remove(b *Block) {
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		l.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		l.tail = b.prev
	}
	b.prev, b.next = nil, nil
	l.n--
}

// all yields blocks in list order. The yielded block may be removed.
func (l *blockList) all() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for b := l.head; b != nil; {
			next := b.next
			if !yield(b) {
				return
			}
			b = next
		}
	}
}
