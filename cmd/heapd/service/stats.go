package service

import (
	"github.com/joshuapare/heapkit/bmalloc"
	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/gcheap/conservative"
)

type Stats struct {
	Space          gcheap.Stats                 `json:"space"`
	LiveBytes      int                          `json:"live_bytes"`
	Roots          int                          `json:"roots"`
	LastCollection conservative.CollectionStats `json:"last_collection"`
	Allocator      bmalloc.Stats                `json:"allocator"`
	Reservations   int                          `json:"reservations"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Space:          s.space.Stats(),
		LiveBytes:      s.space.LiveBytes(),
		Roots:          s.roots.Len(),
		LastCollection: s.collector.Last(),
		Allocator:      s.alloc.Stats(),
		Reservations:   len(s.reservations),
	}
}
