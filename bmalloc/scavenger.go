package bmalloc

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ScavengerStats counts scavenger activity.
type ScavengerStats struct {
	Runs          uint64
	ReleasedBytes uint64
	Disabled      bool
}

// Scavenger returns idle free memory of every heap to the OS. Decommitted
// memory stays mapped and is committed again when reused.
type Scavenger struct {
	alloc    *Allocator
	interval time.Duration
	miniMode bool
	log      *slog.Logger

	wake     chan struct{}
	disabled atomic.Bool
	runs     atomic.Uint64
	released atomic.Uint64
}

func newScavenger(a *Allocator) *Scavenger {
	return &Scavenger{
		alloc:    a,
		interval: a.cfg.ScavengerInterval,
		miniMode: a.cfg.MiniMode,
		log:      a.log.With("component", "scavenger"),
		wake:     make(chan struct{}, 1),
	}
}

// Run scavenges every interval and whenever Schedule is called, until ctx is
// done.
func (s *Scavenger) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.wake:
		}
		if s.disabled.Load() {
			continue
		}
		s.Scavenge()
	}
}

// Schedule asks the running scavenger for a pass without waiting for it.
func (s *Scavenger) Schedule() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Scavenge runs one pass and returns the bytes decommitted. Memory freed less
// than one interval ago is left alone unless the allocator is in mini mode.
// Each heap is locked only while it is scanned, and a Disable between heaps
// ends the pass.
func (s *Scavenger) Scavenge() int {
	now := s.alloc.now()
	cutoff := now.Add(-s.interval)
	if s.miniMode {
		cutoff = now
	}

	total := 0
	for _, h := range s.alloc.heaps {
		if s.disabled.Load() {
			break
		}
		h.mu.Lock()
		total += h.scavenge(cutoff)
		h.mu.Unlock()
	}

	s.runs.Add(1)
	s.released.Add(uint64(total))
	if total > 0 {
		s.log.Debug("scavenged", "bytes", total, "mini", s.miniMode)
	}
	return total
}

// Disable stops all further passes. It can be called at any time, including
// during a pass.
func (s *Scavenger) Disable() {
	s.disabled.Store(true)
}

// Stats returns the scavenger counters.
func (s *Scavenger) Stats() ScavengerStats {
	return ScavengerStats{
		Runs:          s.runs.Load(),
		ReleasedBytes: s.released.Load(),
		Disabled:      s.disabled.Load(),
	}
}
