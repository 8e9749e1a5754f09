package apidocumentv1

import (
	"context"

	"github.com/fulldump/ridbagdb/service"
)

const ContextServicerKey = "5c3f6a0e-9a51-4d7b-8f26-0d1b7e2c4a93"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer) // TODO: can raise panic :D
}
