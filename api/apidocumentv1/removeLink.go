package apidocumentv1

import (
	"context"

	"github.com/fulldump/ridbagdb/service"
)

func removeLink(ctx context.Context, input *linksRequest) (*service.Document, error) {

	id, err := urlRID(ctx)
	if err != nil {
		return nil, err
	}
	if input.Bag == "" {
		return nil, ErrBagRequired
	}

	return GetServicer(ctx).RemoveLink(ctx, id, input.Bag, input.Targets)
}
