// Package pageset accumulates byte ranges and coalesces them into sorted,
// page-aligned, non-overlapping runs.
//
// The scavenger records every idle page it wants to release and flushes the
// coalesced runs, so adjacent pages go back to the OS in one madvise call.
//
// NOT thread-safe. Only one goroutine should use a Set at a time.
package pageset

import (
	"context"
	"sort"
)

// defaultRangeCapacity is the pre-allocated capacity for recorded ranges.
const defaultRangeCapacity = 64

// Range is a byte range relative to the owner's base address.
type Range struct {
	Off int
	Len int
}

// End returns the exclusive end offset.
func (r Range) End() int { return r.Off + r.Len }

// Set accumulates ranges for one contiguous mapping.
type Set struct {
	ranges   []Range
	pageSize int
}

// New creates a Set that aligns ranges to pageSize.
func New(pageSize int) *Set {
	return &Set{
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: pageSize,
	}
}

// Add records a range. Zero-length ranges are ignored.
func (s *Set) Add(off, length int) {
	if length <= 0 {
		return
	}
	s.ranges = append(s.ranges, Range{Off: off, Len: length})
}

// Len returns the number of recorded (uncoalesced) ranges.
func (s *Set) Len() int { return len(s.ranges) }

// Reset clears all recorded ranges.
func (s *Set) Reset() {
	s.ranges = s.ranges[:0]
}

// Coalesced returns the page-aligned, sorted, merged runs.
func (s *Set) Coalesced() []Range {
	return s.coalesce()
}

// Flush calls fn once per coalesced run and clears the set. It stops at the
// first error or when ctx is cancelled; runs already flushed stay flushed.
func (s *Set) Flush(ctx context.Context, fn func(Range) error) error {
	if len(s.ranges) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range s.coalesce() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	s.ranges = s.ranges[:0]
	return nil
}

// coalesce page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ranges.
func (s *Set) coalesce() []Range {
	if len(s.ranges) == 0 {
		return nil
	}

	ps := s.pageSize
	aligned := make([]Range, len(s.ranges))
	for i, r := range s.ranges {
		start := (r.Off / ps) * ps
		end := r.End()
		if end%ps != 0 {
			end = ((end / ps) + 1) * ps
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.End() {
			current.Len = max(current.End(), next.End()) - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
