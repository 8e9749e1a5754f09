package apidocumentv1

import (
	"context"
	"errors"

	"github.com/fulldump/ridbagdb/service"
)

var ErrBagRequired = errors.New("bag is required")

func addLink(ctx context.Context, input *linksRequest) (*service.Document, error) {

	id, err := urlRID(ctx)
	if err != nil {
		return nil, err
	}
	if input.Bag == "" {
		return nil, ErrBagRequired
	}

	return GetServicer(ctx).AddLink(ctx, id, input.Bag, input.Targets)
}
