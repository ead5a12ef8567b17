package gcheap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/vmem"
)

// newTestSpace builds a Space over Go-heap memory and closes it with the test.
func newTestSpace(t *testing.T, opts Options) *Space {
	t.Helper()
	if opts.Mapper == nil {
		opts.Mapper = vmem.GoHeap()
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// sweepAll is a collector that keeps only the cells in keep.
func sweepAll(keep func() []Cell) CollectorFunc {
	return func(s *Space) {
		s.CanonicalizeCellLivenessData()
		s.ClearMarks()
		if keep != nil {
			for _, c := range keep() {
				s.Mark(c)
			}
		}
		s.ResetAllocator()
	}
}

// recoverError runs fn and returns the error it panicked with.
func recoverError(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		err, ok = r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
	}()
	fn()
	return errors.New("unreachable")
}
