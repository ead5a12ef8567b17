package conservative

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/gcheap"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/vmem"
)

func newSpace(t *testing.T, c gcheap.Collector) *gcheap.Space {
	t.Helper()
	s, err := gcheap.New(gcheap.Options{BlockSize: 1024, Mapper: vmem.GoHeap(), Collector: c})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Roots_Add(t *testing.T) {
	s := newSpace(t, nil)
	a := s.Allocate(32)
	b := s.Allocate(32)
	s.CanonicalizeCellLivenessData()

	r := NewRoots(s)
	require.True(t, r.Add(a.Addr()))
	require.False(t, r.Add(a.Addr()), "duplicate")
	require.False(t, r.Add(a.Addr()+8), "interior pointer")
	require.False(t, r.Add(b.Addr()+uintptr(b.Size())), "free cell")
	require.False(t, r.Add(0))
	require.False(t, r.Add(12345))

	require.Equal(t, 1, r.Len())
	require.True(t, r.Contains(a))
	require.False(t, r.Contains(b))

	st := r.Stats()
	require.Equal(t, 6, st.Candidates)
	require.Equal(t, 1, st.Roots)
	require.GreaterOrEqual(t, st.Filtered, 1)
}

func Test_MachineThreads_Registry(t *testing.T) {
	m := NewMachineThreads()
	t1 := m.AddCurrentThread("main", NewStack())
	t2 := m.AddCurrentThread("worker", StackFunc(func() []uintptr { return nil }))
	require.NotEqual(t, t1.ID(), t2.ID())
	require.Equal(t, []*Thread{t1, t2}, m.Threads())

	require.True(t, m.RemoveThread(t1))
	require.False(t, m.RemoveThread(t1))
	require.Len(t, m.Threads(), 1)
	require.Equal(t, "worker", m.Threads()[0].Name())
}

func Test_MachineThreads_ConcurrentRegistration(t *testing.T) {
	m := NewMachineThreads()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := m.AddCurrentThread("w", NewStack())
			if i%2 == 0 {
				m.RemoveThread(th)
			}
		}()
	}
	wg.Wait()
	require.Len(t, m.Threads(), 8)
}

func Test_Stack(t *testing.T) {
	st := NewStack()
	require.Equal(t, 2, st.Push(1, 2))
	require.Equal(t, 3, st.Push(3))
	st.Truncate(1)
	require.Equal(t, []uintptr{1}, st.Words())
	st.Truncate(-5)
	require.Zero(t, st.Len())
}

func Test_Collector_KeepsStackRoots(t *testing.T) {
	threads := NewMachineThreads()
	stack := NewStack()
	threads.AddCurrentThread("main", stack)
	col := &Collector{Threads: threads}
	s := newSpace(t, col)

	var cells []gcheap.Cell
	for i := 0; i < 64; i++ {
		c := s.Allocate(16)
		cells = append(cells, c)
		if i%4 == 0 {
			stack.Push(c.Addr())
		}
	}
	// Noise that must not pin anything.
	stack.Push(cells[1].Addr()+4, 0xdeadbeef, 0)

	s.Collect()
	require.Equal(t, uint64(1), col.Count())
	require.Equal(t, 16, col.Last().Roots)
	require.Equal(t, 16, col.Last().Marked)
	for i, c := range cells {
		require.Equal(t, i%4 == 0, s.IsLive(c), "cell %d", i)
	}

	mapped := s.Stats().BlocksMapped
	for i := 0; i < 48; i++ {
		s.Allocate(16)
	}
	require.Equal(t, mapped, s.Stats().BlocksMapped)
}

func Test_Collector_Transitive(t *testing.T) {
	threads := NewMachineThreads()
	stack := NewStack()
	threads.AddCurrentThread("main", stack)

	run := func(transitive bool) bool {
		col := &Collector{Threads: threads, Transitive: transitive}
		s := newSpace(t, col)
		parent := s.Allocate(64)
		child := s.Allocate(64)
		buf.PutWord(parent.Bytes()[8:], child.Addr())

		stack.Truncate(0)
		stack.Push(parent.Addr())
		s.Collect()
		require.True(t, s.IsLive(parent))
		return s.IsLive(child)
	}

	require.False(t, run(false))
	require.True(t, run(true))
}

func Test_Collector_Shrink(t *testing.T) {
	col := &Collector{Threads: NewMachineThreads(), Shrink: true}
	s := newSpace(t, col)
	for i := 0; i < 100; i++ {
		s.Allocate(128)
	}
	require.Positive(t, s.Stats().Blocks)

	s.Collect()
	require.Zero(t, s.Stats().Blocks)
	require.Positive(t, col.Last().Released)

	// The space keeps working after every block went back.
	c := s.Allocate(128)
	require.False(t, c.IsZero())
}

func Test_Collector_FromSlowPath(t *testing.T) {
	threads := NewMachineThreads()
	stack := NewStack()
	threads.AddCurrentThread("main", stack)
	col := &Collector{Threads: threads}
	s, err := gcheap.New(gcheap.Options{
		BlockSize:        1024,
		Mapper:           vmem.GoHeap(),
		Collector:        col,
		CollectThreshold: 4096,
	})
	require.NoError(t, err)
	defer s.Close()

	keep := s.Allocate(256)
	stack.Push(keep.Addr())
	for i := 0; i < 500; i++ {
		s.Allocate(256)
	}
	require.Positive(t, col.Count())
	require.True(t, s.IsLive(keep))
	got, ok := s.CellAt(keep.Addr())
	require.True(t, ok)
	require.Equal(t, keep, got)
}
