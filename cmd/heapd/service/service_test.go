package service

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fulldump/biff"

	"github.com/joshuapare/heapkit/internal/vmem"
)

func newTestService(t *testing.T) *Service {
	s, err := New(Config{
		BlockSize:        4096,
		CollectThreshold: 1 << 30,
		Mapper:           vmem.GoHeap(),
		DisableScavenger: true,
	})
	biff.AssertNil(err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestService(t *testing.T) {

	biff.Alternative("Service", func(a *biff.A) {

		s := newTestService(t)

		a.Alternative("Classes", func(a *biff.A) {
			classes := s.Classes()
			biff.AssertEqual(classes[0].CellSize, 16)
			biff.AssertEqual(classes[0].Precise, true)
			biff.AssertEqual(classes[0].CellsPerBlock, 256)
			biff.AssertEqual(classes[len(classes)-1].CellSize, 2048)
		})

		a.Alternative("Allocate retained", func(a *biff.A) {
			result, err := s.Allocate(40, 10, true)
			biff.AssertNil(err)
			biff.AssertEqual(result.CellSize, 48)
			biff.AssertEqual(result.Allocated, 10)
			biff.AssertEqual(result.Retained, 10)
			biff.AssertEqual(len(result.Addresses), 10)

			a.Alternative("Collect keeps roots", func(a *biff.A) {
				st := s.Collect(0)
				biff.AssertEqual(st.Roots, 10)
				biff.AssertEqual(st.Marked, 10)
				biff.AssertEqual(s.Stats().LiveBytes, 480)
			})

			a.Alternative("Collect drops roots", func(a *biff.A) {
				st := s.Collect(4)
				biff.AssertEqual(st.Roots, 6)
				biff.AssertEqual(s.Stats().Roots, 6)

				st = s.Collect(-1)
				biff.AssertEqual(st.Roots, 0)
				biff.AssertEqual(s.Stats().LiveBytes, 0)
			})
		})

		a.Alternative("Allocate garbage", func(a *biff.A) {
			result, err := s.Allocate(16, 100, false)
			biff.AssertNil(err)
			biff.AssertEqual(result.Retained, 0)
			biff.AssertEqual(len(result.Addresses), 0)

			s.Collect(0)
			biff.AssertEqual(s.Stats().LiveBytes, 0)
		})

		a.Alternative("Allocate invalid", func(a *biff.A) {
			_, err := s.Allocate(0, 1, false)
			biff.AssertTrue(errors.Is(err, ErrInvalidArgument))

			_, err = s.Allocate(4096, 1, false)
			biff.AssertTrue(errors.Is(err, ErrInvalidArgument))
		})

		a.Alternative("Find blocks", func(a *biff.A) {
			_, err := s.Allocate(16, 300, true)
			biff.AssertNil(err)
			_, err = s.Allocate(512, 1, true)
			biff.AssertNil(err)

			all, err := s.FindBlocks(FindParams{})
			biff.AssertNil(err)
			biff.AssertEqual(len(all), 3)

			small, err := s.FindBlocks(FindParams{
				Filter: map[string]any{"cell_size": 16.0},
			})
			biff.AssertNil(err)
			biff.AssertEqual(len(small), 2)

			big, err := s.FindBlocks(FindParams{
				Filter: map[string]any{"cell_size": map[string]any{"$gt": 256.0}},
			})
			biff.AssertNil(err)
			biff.AssertEqual(len(big), 1)
			biff.AssertEqual(big[0].Precise, false)

			limited, err := s.FindBlocks(FindParams{Skip: 1, Limit: 1})
			biff.AssertNil(err)
			biff.AssertEqual(len(limited), 1)
			biff.AssertEqual(limited[0].Base, all[1].Base)
		})

		a.Alternative("Reserve and release", func(a *biff.A) {
			r, err := s.Reserve(0, 10000, "")
			biff.AssertNil(err)
			biff.AssertEqual(r.Size, 12288)
			biff.AssertEqual(r.Kind, "primary")
			biff.AssertEqual(len(s.Reservations()), 1)

			biff.AssertNil(s.Release(r.Address))
			biff.AssertEqual(len(s.Reservations()), 0)

			err = s.Release(r.Address)
			biff.AssertTrue(errors.Is(err, ErrReservationNotFound))
		})

		a.Alternative("Reserve invalid", func(a *biff.A) {
			_, err := s.Reserve(3, 4096, "")
			biff.AssertTrue(errors.Is(err, ErrInvalidArgument))

			_, err = s.Reserve(0, 4096, "nope")
			biff.AssertTrue(errors.Is(err, ErrInvalidArgument))
		})

		a.Alternative("Scavenge", func(a *biff.A) {
			r, err := s.Reserve(0, 4096, "primitive-gigacage")
			biff.AssertNil(err)
			biff.AssertNil(s.Release(r.Address))

			st := s.Scavenge()
			biff.AssertTrue(st.Runs >= 1)
		})
	})
}
