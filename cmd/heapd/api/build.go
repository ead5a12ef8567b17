package api

import (
	"context"

	"github.com/fulldump/box"

	"github.com/joshuapare/heapkit/cmd/heapd/service"
)

func Build(s *service.Service, version string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		injectService(s),
	)

	v1.Resource("/stats").
		WithActions(box.Get(getStats))

	v1.Resource("/classes").
		WithActions(box.Get(listClasses))

	v1.Resource("/blocks/find").
		WithActions(box.Post(findBlocks))

	v1.Resource("/allocate").
		WithActions(box.Post(allocate))

	v1.Resource("/collect").
		WithActions(box.Post(collect))

	v1.Resource("/virtual").
		WithActions(
			box.Get(listReservations),
			box.Post(reserve),
		)

	v1.Resource("/virtual/{address}").
		WithActions(box.Delete(release))

	v1.Resource("/scavenge").
		WithActions(box.Post(scavenge))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	return b
}

type serviceKey struct{}

func injectService(s *service.Service) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(context.WithValue(ctx, serviceKey{}, s))
		}
	}
}

func GetService(ctx context.Context) *service.Service {
	return ctx.Value(serviceKey{}).(*service.Service)
}
