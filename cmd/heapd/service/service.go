package service

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/bmalloc"
	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/gcheap/conservative"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/vmem"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrOutOfMemory         = errors.New("out of memory")
)

// maxAllocateCount bounds one allocate request.
const maxAllocateCount = 1 << 20

type Config struct {
	BlockSize        int
	CollectThreshold int
	Transitive       bool
	MiniMode         bool
	ScavengeInterval time.Duration

	// Mapper backs both heaps. Nil selects vmem.System().
	Mapper vmem.Mapper

	// DisableScavenger keeps the background scavenger goroutine from
	// starting. POST /v1/scavenge still works.
	DisableScavenger bool

	Logger *slog.Logger
}

// Service hosts one collected space and one bmalloc allocator. Requests are
// serialized by mu because gcheap.Space is single-threaded.
type Service struct {
	mu sync.Mutex

	log       *slog.Logger
	space     *gcheap.Space
	collector *conservative.Collector
	threads   *conservative.MachineThreads
	thread    *conservative.Thread
	roots     *conservative.Stack

	alloc        *bmalloc.Allocator
	reservations map[uintptr]Reservation
	regions      map[uintptr][]byte
}

func New(c Config) (*Service, error) {
	log := logger.Or(c.Logger)
	mapper := c.Mapper
	if mapper == nil {
		mapper = vmem.System()
	}

	threads := conservative.NewMachineThreads()
	roots := conservative.NewStack()
	thread := threads.AddCurrentThread("heapd", roots)
	collector := &conservative.Collector{
		Threads:    threads,
		Transitive: c.Transitive,
		Shrink:     true,
		Logger:     log,
	}

	space, err := gcheap.New(gcheap.Options{
		BlockSize:        c.BlockSize,
		Mapper:           mapper,
		Collector:        collector,
		CollectThreshold: c.CollectThreshold,
		RetainedBlocks:   gcheap.DefaultRetainedBlocks,
		Logger:           log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating space")
	}

	alloc, err := bmalloc.New(bmalloc.Config{
		Mapper:            mapper,
		MiniMode:          c.MiniMode,
		ScavengerInterval: c.ScavengeInterval,
		DisableScavenger:  c.DisableScavenger,
		Logger:            log,
	})
	if err != nil {
		return nil, errors.CombineErrors(errors.Wrap(err, "creating allocator"), space.Close())
	}

	log.Info("service started",
		"space", space.ID().String(),
		"allocator", alloc.ID().String(),
		"blockSize", space.BlockSize())

	return &Service{
		log:          log,
		space:        space,
		collector:    collector,
		threads:      threads,
		thread:       thread,
		roots:        roots,
		alloc:        alloc,
		reservations: map[uintptr]Reservation{},
		regions:      map[uintptr][]byte{},
	}, nil
}

// Close releases both heaps. The service must not be used afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads.RemoveThread(s.thread)
	for addr, mem := range s.regions {
		kind := s.reservations[addr].kind
		if err := s.alloc.FreeLargeVirtual(mem, kind); err != nil {
			s.log.Warn("releasing reservation", "address", addr, "err", err)
		}
	}
	clear(s.regions)
	clear(s.reservations)

	return errors.CombineErrors(s.alloc.Close(), s.space.Close())
}

type Class struct {
	CellSize      int  `json:"cell_size"`
	Precise       bool `json:"precise"`
	CellsPerBlock int  `json:"cells_per_block"`
	Blocks        int  `json:"blocks"`
}

func (s *Service) Classes() []Class {
	s.mu.Lock()
	defer s.mu.Unlock()

	classes := s.space.SizeClasses()
	result := make([]Class, 0, len(classes))
	for _, sc := range classes {
		result = append(result, Class{
			CellSize:      sc.CellSize(),
			Precise:       sc.IsPrecise(),
			CellsPerBlock: sc.CellsPerBlock(),
			Blocks:        sc.BlockCount(),
		})
	}
	return result
}

type AllocateResult struct {
	CellSize  int       `json:"cell_size"`
	Allocated int       `json:"allocated"`
	Retained  int       `json:"retained"`
	Addresses []uintptr `json:"addresses,omitempty"`
}

// Allocate takes count cells of size bytes. Retained cells are pushed on the
// service stack and survive collections until dropped.
func (s *Service) Allocate(size, count int, retain bool) (result AllocateResult, err error) {
	if size <= 0 || count <= 0 || count > maxAllocateCount {
		return result, errors.Wrapf(ErrInvalidArgument, "size %d count %d", size, count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.space.MaxCellSize() {
		return result, errors.Wrapf(ErrInvalidArgument, "size %d exceeds the largest cell (%d bytes)", size, s.space.MaxCellSize())
	}

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, gcheap.ErrOutOfMemory) {
				panic(r)
			}
			err = errors.Mark(e, ErrOutOfMemory)
		}
	}()

	sc := s.space.SizeClassFor(size)
	result.CellSize = sc.CellSize()
	for range count {
		cell := s.space.AllocateFrom(sc)
		result.Allocated++
		if retain {
			s.roots.Push(cell.Addr())
			result.Retained = s.roots.Len()
			if len(result.Addresses) < 64 {
				result.Addresses = append(result.Addresses, cell.Addr())
			}
		}
	}
	if !retain {
		result.Retained = s.roots.Len()
	}
	return result, nil
}

// Collect drops the newest drop roots, or all of them when drop is negative,
// then runs a collection.
func (s *Service) Collect(drop int) conservative.CollectionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.roots.Len()
	switch {
	case drop < 0 || drop >= n:
		s.roots.Truncate(0)
	case drop > 0:
		s.roots.Truncate(n - drop)
	}

	s.space.Collect()
	return s.collector.Last()
}

type Reservation struct {
	Address   uintptr `json:"address"`
	Size      int     `json:"size"`
	Alignment int     `json:"alignment"`
	Kind      string  `json:"kind"`

	kind bmalloc.HeapKind
}

// Reserve takes a zeroed virtual range from the allocator and holds it until
// Release.
func (s *Service) Reserve(alignment, size int, kind string) (Reservation, error) {
	if kind == "" {
		kind = bmalloc.Primary.String()
	}
	k, err := bmalloc.ParseHeapKind(kind)
	if err != nil {
		return Reservation{}, errors.Mark(err, ErrInvalidArgument)
	}
	if size <= 0 {
		return Reservation{}, errors.Wrapf(ErrInvalidArgument, "size %d", size)
	}
	if alignment == 0 {
		alignment = s.alloc.PageSize()
	}
	if !buf.IsPowerOfTwo(alignment) {
		return Reservation{}, errors.Wrapf(ErrInvalidArgument, "alignment %d is not a power of two", alignment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mem := s.alloc.TryLargeZeroedMemalignVirtual(alignment, size, k)
	if mem == nil {
		return Reservation{}, errors.Wrapf(ErrOutOfMemory, "reserving %d bytes", size)
	}
	r := Reservation{
		Address:   vmem.Addr(mem),
		Size:      len(mem),
		Alignment: max(alignment, s.alloc.PageSize()),
		Kind:      k.String(),
		kind:      k,
	}
	s.reservations[r.Address] = r
	s.regions[r.Address] = mem
	return r, nil
}

// Release frees a range taken by Reserve.
func (s *Service) Release(addr uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[addr]
	if !ok {
		return errors.Wrapf(ErrReservationNotFound, "address %#x", addr)
	}
	if err := s.alloc.FreeLargeVirtual(s.regions[addr], r.kind); err != nil {
		return errors.Wrapf(err, "releasing %#x", addr)
	}
	delete(s.reservations, addr)
	delete(s.regions, addr)
	return nil
}

func (s *Service) Reservations() []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b Reservation) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return result
}

// Scavenge runs one synchronous scavenger pass.
func (s *Service) Scavenge() bmalloc.ScavengerStats {
	s.alloc.Scavenge()
	return s.alloc.Scavenger().Stats()
}
