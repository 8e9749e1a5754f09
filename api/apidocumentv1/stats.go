package apidocumentv1

import (
	"context"

	"github.com/fulldump/ridbagdb/service"
)

func stats(ctx context.Context) *service.Stats {
	return GetServicer(ctx).Stats()
}
