package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/fulldump/box"

	"github.com/joshuapare/heapkit/bmalloc"
	"github.com/joshuapare/heapkit/cmd/heapd/service"
	"github.com/joshuapare/heapkit/gcheap/conservative"
)

func getStats(ctx context.Context) (*service.Stats, error) {
	st := GetService(ctx).Stats()
	return &st, nil
}

func listClasses(ctx context.Context) ([]service.Class, error) {
	return GetService(ctx).Classes(), nil
}

func findBlocks(ctx context.Context, r *http.Request) ([]service.BlockDocument, error) {
	params := service.FindParams{
		Filter: map[string]any{},
	}
	if err := decodeOptional(r, &params); err != nil {
		return nil, err
	}
	return GetService(ctx).FindBlocks(params)
}

type allocateRequest struct {
	Size   int  `json:"size"`
	Count  int  `json:"count"`
	Retain bool `json:"retain"`
}

func allocate(ctx context.Context, w http.ResponseWriter, input *allocateRequest) (*service.AllocateResult, error) {
	count := input.Count
	if count == 0 {
		count = 1
	}
	result, err := GetService(ctx).Allocate(input.Size, count, input.Retain)
	if err != nil {
		return nil, err
	}
	w.WriteHeader(http.StatusCreated)
	return &result, nil
}

type collectRequest struct {
	// DropRoots pops that many retained roots before collecting. Negative
	// drops all of them.
	DropRoots int `json:"drop_roots"`
}

func collect(ctx context.Context, r *http.Request) (*conservative.CollectionStats, error) {
	input := collectRequest{}
	if err := decodeOptional(r, &input); err != nil {
		return nil, err
	}
	st := GetService(ctx).Collect(input.DropRoots)
	return &st, nil
}

type reserveRequest struct {
	Alignment int    `json:"alignment"`
	Size      int    `json:"size"`
	Kind      string `json:"kind"`
}

func reserve(ctx context.Context, w http.ResponseWriter, input *reserveRequest) (*service.Reservation, error) {
	res, err := GetService(ctx).Reserve(input.Alignment, input.Size, input.Kind)
	if err != nil {
		return nil, err
	}
	w.WriteHeader(http.StatusCreated)
	return &res, nil
}

func listReservations(ctx context.Context) ([]service.Reservation, error) {
	return GetService(ctx).Reservations(), nil
}

func release(ctx context.Context, w http.ResponseWriter) error {
	raw := box.GetUrlParameter(ctx, "address")
	addr, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "address %q", raw), service.ErrInvalidArgument)
	}
	if err := GetService(ctx).Release(uintptr(addr)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func scavenge(ctx context.Context) (*bmalloc.ScavengerStats, error) {
	st := GetService(ctx).Scavenge()
	return &st, nil
}

// decodeOptional decodes the request body into v, leaving v untouched when
// the body is empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
