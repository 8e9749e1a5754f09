package api

import (
	"context"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/ridbagdb/api/apidocumentv1"
	"github.com/fulldump/ridbagdb/service"
)

func Build(s service.Servicer, version string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1").
		WithInterceptors(
			box.SetResponseHeader("Content-Type", "application/json"),
			injectServicer(s),
		)
	apidocumentv1.BuildV1Document(v1, s)

	b.Resource("/v1/version").
		WithActions(
			box.Get(func() string {
				return version
			}),
		)

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "RidBagDB"
	spec.Info.Description = "Documents linked through adaptive reference bags."
	spec.Info.Version = version
	b.Resource("/openapi.json").
		WithActions(
			box.Get(func() any {
				return spec
			}),
		)

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(apidocumentv1.SetServicer(ctx, s))
		}
	}
}
