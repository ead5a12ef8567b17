package gcheap

import (
	"iter"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/vmem"
)

// Space owns every block of a heap and dispatches allocations to size
// classes.
type Space struct {
	id        uuid.UUID
	opts      Options
	mapper    vmem.Mapper
	log       *slog.Logger
	blockSize int
	maxCell   int

	precise   [preciseCount]SizeClass
	imprecise [impreciseCount]SizeClass
	classes   []*SizeClass

	blocks map[uintptr]*Block
	filter blockFilter
	pool   []*Block

	bytesSinceCollect int
	collecting        bool
	closed            bool

	stats Stats
}

// New creates an empty Space. No memory is mapped until the first
// allocation.
func New(opts Options) (*Space, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &Space{
		id:        uuid.New(),
		opts:      opts,
		mapper:    opts.Mapper,
		blockSize: opts.BlockSize,
		maxCell:   min(MaxCellSize, opts.BlockSize),
		blocks:    make(map[uintptr]*Block),
	}

	s.log = logger.AllocOr(opts.Logger).With("space", s.id.String())

	s.classes = make([]*SizeClass, 0, NumSizeClasses)
	for i := range s.precise {
		s.precise[i].init(s, (i+1)*preciseStep, true)
		s.classes = append(s.classes, &s.precise[i])
	}
	for i := range s.imprecise {
		s.imprecise[i].init(s, (i+1)*impreciseStep, false)
		s.classes = append(s.classes, &s.imprecise[i])
	}
	return s, nil
}

// ID identifies the space in logs and diagnostics.
func (s *Space) ID() uuid.UUID { return s.id }

// BlockSize returns the configured block size.
func (s *Space) BlockSize() int { return s.blockSize }

// MaxCellSize returns the largest request the space accepts.
func (s *Space) MaxCellSize() int { return s.maxCell }

// SizeClasses returns every class, precise first.
func (s *Space) SizeClasses() []*SizeClass { return s.classes }

// SizeClassFor returns the class serving requests of bytes. bytes must be in
// (0, MaxCellSize()].
func (s *Space) SizeClassFor(bytes int) *SizeClass {
	if bytes <= 0 || bytes > s.maxCell {
		panic(errors.AssertionFailedf("gcheap: allocation size %d outside (0, %d]", bytes, s.maxCell))
	}
	if bytes <= PreciseCutoff {
		return &s.precise[(bytes-1)/preciseStep]
	}
	return &s.imprecise[(bytes-1)/impreciseStep]
}

// Allocate returns a zeroed cell of at least bytes bytes.
func (s *Space) Allocate(bytes int) Cell {
	return s.AllocateFrom(s.SizeClassFor(bytes))
}

// AllocateFrom returns a zeroed cell from sc, which must belong to s.
// Passing a class of another space is undefined: the fast path pops the
// class's free list without checking, and only the slow path panics.
func (s *Space) AllocateFrom(sc *SizeClass) Cell {
	if head := sc.firstFree; head != noCell {
		b := sc.currentBlock
		sc.firstFree = b.nextFree(head)
		s.stats.FastPathAllocs++
		return b.take(head)
	}
	if sc.space != s {
		panic(errors.AssertionFailedf("gcheap: size class belongs to another space"))
	}
	return s.allocateSlowCase(sc)
}

func (s *Space) allocateSlowCase(sc *SizeClass) Cell {
	if s.closed {
		panic(errors.AssertionFailedf("gcheap: allocation from closed space %s", s.id))
	}
	s.stats.SlowPathAllocs++

	if c, ok := sc.tryAllocate(); ok {
		return c
	}

	if s.shouldCollect() {
		s.collect()
		if c, ok := sc.tryAllocate(); ok {
			return c
		}
	}

	b, err := s.allocateBlock(sc.cellSize)
	if err != nil {
		s.outOfMemory(sc, err)
	}
	s.AddBlock(sc, b)

	c, ok := sc.tryAllocate()
	if !ok {
		panic(errors.AssertionFailedf("gcheap: fresh block for %d-byte cells yielded no cell", sc.cellSize))
	}
	return c
}

func (s *Space) outOfMemory(sc *SizeClass, cause error) {
	err := errors.Mark(errors.Wrapf(cause, "gcheap: mapping a block for %d-byte cells", sc.cellSize), ErrOutOfMemory)
	s.log.Error("out of memory", "cellSize", sc.cellSize, "blocks", len(s.blocks), "err", err)
	if s.opts.OnOutOfMemory != nil {
		s.opts.OnOutOfMemory(err)
	}
	panic(err)
}

func (s *Space) shouldCollect() bool {
	return s.opts.Collector != nil && !s.collecting && s.bytesSinceCollect >= s.opts.CollectThreshold
}

// allocateBlock takes a pooled block or maps a new one.
func (s *Space) allocateBlock(cellSize int) (*Block, error) {
	if n := len(s.pool); n > 0 {
		b := s.pool[n-1]
		s.pool = s.pool[:n-1]
		if err := s.mapper.Commit(b.mem); err != nil {
			s.log.Warn("recommitting pooled block failed", "base", b.base, "err", err)
			_ = s.mapper.Unmap(b.region)
		} else {
			b.reset(cellSize)
			s.bytesSinceCollect += s.blockSize
			s.stats.BlocksReused++
			return b, nil
		}
	}

	region, err := s.mapper.Map(s.blockSize, s.blockSize)
	if err != nil {
		return nil, err
	}
	if !buf.IsAlignedPtr(region.Base(), s.blockSize) || region.Len() != s.blockSize {
		_ = s.mapper.Unmap(region)
		return nil, errors.AssertionFailedf("gcheap: mapper returned %d bytes at %#x for a %d-byte block", region.Len(), region.Base(), s.blockSize)
	}
	s.bytesSinceCollect += s.blockSize
	s.stats.BlocksMapped++
	return newBlock(region, cellSize), nil
}

// releaseBlock returns an unowned block to the pool or to the mapper.
func (s *Space) releaseBlock(b *Block) {
	s.stats.BlocksReleased++
	if len(s.pool) < s.opts.RetainedBlocks {
		if err := s.mapper.Decommit(b.mem); err == nil {
			s.pool = append(s.pool, b)
			return
		}
	}
	if err := s.mapper.Unmap(b.region); err != nil {
		s.log.Warn("unmapping block failed", "base", b.base, "err", err)
	}
	s.stats.BlocksUnmapped++
}

// AddBlock gives b to sc and makes it the class's current block.
func (s *Space) AddBlock(sc *SizeClass, b *Block) {
	if b.class != nil {
		panic(errors.AssertionFailedf("gcheap: block %#x already belongs to a size class", b.base))
	}
	if b.cellSize != sc.cellSize {
		panic(errors.AssertionFailedf("gcheap: block %#x has %d-byte cells, class has %d", b.base, b.cellSize, sc.cellSize))
	}
	sc.ZapFreeList()
	sc.blocks.pushBack(b)
	b.class = sc
	s.blocks[b.base] = b
	s.filter.add(b.base)
	sc.currentBlock = b
	s.log.Debug("block added", "base", b.base, "cellSize", sc.cellSize, "blocks", sc.blocks.n)
}

// RemoveBlock detaches b from its class and from the space. If b was the
// class's cursor the cursor moves to the next block.
func (s *Space) RemoveBlock(b *Block) {
	sc := b.class
	if sc == nil || sc.space != s {
		panic(errors.AssertionFailedf("gcheap: block %#x does not belong to space %s", b.base, s.id))
	}
	if sc.currentBlock == b {
		sc.ZapFreeList()
		sc.currentBlock = b.next
	}
	sc.blocks.remove(b)
	b.class = nil
	delete(s.blocks, b.base)
	s.log.Debug("block removed", "base", b.base, "cellSize", sc.cellSize, "blocks", sc.blocks.n)
}

// ResetAllocator rewinds every class to its first block.
func (s *Space) ResetAllocator() {
	for _, sc := range s.classes {
		sc.ResetAllocator()
	}
}

// CanonicalizeCellLivenessData flushes every free list into block liveness
// data. Afterwards every block is New or Marked, and IsLive and LiveCount are
// exact.
func (s *Space) CanonicalizeCellLivenessData() {
	for _, sc := range s.classes {
		sc.canonicalizeCellLivenessData()
	}
}

// ClearMarks unmarks every cell. Liveness must be canonical.
func (s *Space) ClearMarks() {
	for b := range s.allBlocks() {
		b.clearMarks()
	}
}

// Mark marks c and reports whether it was unmarked.
func (s *Space) Mark(c Cell) bool {
	return c.block.setMarked(c.index)
}

// IsLive reports whether c is allocated or marked.
func (s *Space) IsLive(c Cell) bool {
	return c.block.IsLiveCell(c.index)
}

// SetCollector replaces the configured collector. Nil disables collection.
func (s *Space) SetCollector(c Collector) { s.opts.Collector = c }

// Collect runs the configured collector, if any.
func (s *Space) Collect() {
	s.collect()
}

func (s *Space) collect() {
	if s.opts.Collector == nil || s.collecting {
		return
	}
	s.collecting = true
	defer func() { s.collecting = false }()

	s.log.Debug("collection started", "bytesSinceCollect", s.bytesSinceCollect)
	s.opts.Collector.Collect(s)
	s.bytesSinceCollect = 0
	s.stats.Collections++
}

// Shrink releases every block without live cells and returns how many were
// released.
func (s *Space) Shrink() int {
	s.CanonicalizeCellLivenessData()
	released := 0
	for _, sc := range s.classes {
		for b := range sc.blocks.all() {
			if b.LiveCount() != 0 {
				continue
			}
			s.RemoveBlock(b)
			s.releaseBlock(b)
			released++
		}
	}
	if released > 0 {
		s.log.Debug("shrunk", "released", released, "pooled", len(s.pool))
	}
	return released
}

// BlockFor returns the block containing addr.
func (s *Space) BlockFor(addr uintptr) (*Block, bool) {
	base := buf.RoundDownPtr(addr, s.blockSize)
	if s.filter.ruleOut(base) {
		return nil, false
	}
	b, ok := s.blocks[base]
	return b, ok
}

// CellAt returns the cell starting exactly at addr. Liveness is not checked.
func (s *Space) CellAt(addr uintptr) (Cell, bool) {
	b, ok := s.BlockFor(addr)
	if !ok {
		return Cell{}, false
	}
	i, ok := b.CellAt(addr)
	if !ok {
		return Cell{}, false
	}
	return Cell{block: b, index: i}, true
}

// MightContain is a cheap pre-check for BlockFor. False means addr is not in
// any block of the space.
func (s *Space) MightContain(addr uintptr) bool {
	return !s.filter.ruleOut(buf.RoundDownPtr(addr, s.blockSize))
}

// Close returns every block to the mapper. The space must not be used
// afterwards.
func (s *Space) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs error
	for _, sc := range s.classes {
		for b := range sc.blocks.all() {
			s.RemoveBlock(b)
			errs = errors.CombineErrors(errs, s.mapper.Unmap(b.region))
		}
		sc.firstFree, sc.currentBlock = noCell, nil
	}
	for _, b := range s.pool {
		errs = errors.CombineErrors(errs, s.mapper.Unmap(b.region))
	}
	s.pool = nil
	return errs
}

// allBlocks yields every block without touching liveness data.
func (s *Space) allBlocks() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for _, sc := range s.classes {
			for b := range sc.blocks.all() {
				if !yield(b) {
					return
				}
			}
		}
	}
}
