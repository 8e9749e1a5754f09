package apidocumentv1

import (
	"context"

	"github.com/fulldump/ridbagdb/service"
)

func getDocument(ctx context.Context) (*service.Document, error) {

	id, err := urlRID(ctx)
	if err != nil {
		return nil, err
	}

	return GetServicer(ctx).GetDocument(id)
}
