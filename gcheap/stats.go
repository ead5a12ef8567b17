package gcheap

// Stats counts allocator activity since the space was created.
type Stats struct {
	ID        string
	BlockSize int

	Blocks        int // blocks owned by size classes
	PooledBlocks  int // empty, decommitted blocks kept for reuse
	CapacityBytes int // bytes of owned blocks

	FastPathAllocs uint64
	SlowPathAllocs uint64

	BlocksMapped   uint64
	BlocksReused   uint64
	BlocksReleased uint64
	BlocksUnmapped uint64

	Collections       uint64
	BytesSinceCollect int
}

// Stats returns a snapshot of the counters. It does not touch liveness data.
func (s *Space) Stats() Stats {
	st := s.stats
	st.ID = s.id.String()
	st.BlockSize = s.blockSize
	st.Blocks = len(s.blocks)
	st.PooledBlocks = len(s.pool)
	st.CapacityBytes = len(s.blocks) * s.blockSize
	st.BytesSinceCollect = s.bytesSinceCollect
	return st
}

// LiveBytes returns the bytes held by live cells. Liveness is canonicalized
// first.
func (s *Space) LiveBytes() int {
	s.CanonicalizeCellLivenessData()
	n := 0
	for b := range s.allBlocks() {
		n += b.LiveCount() * b.cellSize
	}
	return n
}
