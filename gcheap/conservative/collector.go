package conservative

import (
	"log/slog"
	"time"

	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/internal/logger"
)

// CollectionStats describes one collection.
type CollectionStats struct {
	RootStats
	Marked   int
	Released int
	Duration time.Duration
}

// Collector is a gcheap.Collector that keeps exactly the cells reachable from
// the registered stacks.
type Collector struct {
	Threads *MachineThreads

	// Transitive also scans the payload of reachable cells for cell
	// addresses. Without it only cells referenced from a stack survive.
	Transitive bool

	// Shrink releases blocks left empty by the collection.
	Shrink bool

	Logger *slog.Logger

	last  CollectionStats
	count uint64
}

var _ gcheap.Collector = (*Collector)(nil)

// Collect marks the reachable cells of s and rewinds its allocators so that
// every other cell is swept into free lists on demand.
func (c *Collector) Collect(s *gcheap.Space) {
	start := time.Now()

	s.CanonicalizeCellLivenessData()
	roots := NewRoots(s)
	if c.Threads != nil {
		c.Threads.GatherConservativeRoots(roots)
	}
	if c.Transitive {
		roots.Trace()
	}

	s.ClearMarks()
	marked := 0
	for _, cell := range roots.Cells() {
		if s.Mark(cell) {
			marked++
		}
	}
	s.ResetAllocator()

	released := 0
	if c.Shrink {
		released = s.Shrink()
	}

	c.count++
	c.last = CollectionStats{
		RootStats: roots.Stats(),
		Marked:    marked,
		Released:  released,
		Duration:  time.Since(start),
	}
	logger.Or(c.Logger).Debug("conservative collection",
		"space", s.ID().String(),
		"candidates", c.last.Candidates,
		"roots", c.last.Roots,
		"released", released,
		"duration", c.last.Duration)
}

// Last returns the statistics of the most recent collection.
func (c *Collector) Last() CollectionStats { return c.last }

// Count returns the number of collections run.
func (c *Collector) Count() uint64 { return c.count }
