package apidocumentv1

import (
	"context"
	"net/http"

	"github.com/fulldump/ridbagdb/service"
)

func createDocument(ctx context.Context, w http.ResponseWriter, input *service.CreateDocumentInput) (*service.Document, error) {

	s := GetServicer(ctx)

	document, err := s.CreateDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	w.WriteHeader(http.StatusCreated)
	return document, nil
}
