package conservative

import (
	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/internal/buf"
)

// RootStats counts what happened to candidate words.
type RootStats struct {
	Candidates int // words offered
	Filtered   int // rejected by the block filter without a lookup
	Roots      int // distinct live cells found
}

// Roots is the conservative root set of one collection. The space's liveness
// data must be canonical while words are added.
type Roots struct {
	space *gcheap.Space
	seen  map[uintptr]struct{}
	cells []gcheap.Cell
	stats RootStats
}

// NewRoots returns an empty root set over space.
func NewRoots(space *gcheap.Space) *Roots {
	return &Roots{space: space, seen: make(map[uintptr]struct{})}
}

// Add records word if it is the start of a live cell and reports whether it
// was new.
func (r *Roots) Add(word uintptr) bool {
	r.stats.Candidates++
	if !r.space.MightContain(word) {
		r.stats.Filtered++
		return false
	}
	c, ok := r.space.CellAt(word)
	if !ok || !r.space.IsLive(c) {
		return false
	}
	if _, dup := r.seen[word]; dup {
		return false
	}
	r.seen[word] = struct{}{}
	r.cells = append(r.cells, c)
	r.stats.Roots++
	return true
}

// AddSpan offers every word of span.
func (r *Roots) AddSpan(span []uintptr) {
	for _, w := range span {
		r.Add(w)
	}
}

// Trace treats the payload of every root as more candidate words until no
// new cell is found.
func (r *Roots) Trace() {
	for i := 0; i < len(r.cells); i++ {
		p := r.cells[i].Bytes()
		for off := 0; off+buf.WordSize <= len(p); off += buf.WordSize {
			r.Add(buf.Word(p[off:]))
		}
	}
}

// Cells returns the roots in discovery order.
func (r *Roots) Cells() []gcheap.Cell { return r.cells }

// Len returns the number of roots.
func (r *Roots) Len() int { return len(r.cells) }

// Contains reports whether c is a root.
func (r *Roots) Contains(c gcheap.Cell) bool {
	_, ok := r.seen[c.Addr()]
	return ok
}

// Stats returns the candidate counters.
func (r *Roots) Stats() RootStats { return r.stats }
