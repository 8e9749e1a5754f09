package apidocumentv1

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/ridbagdb/service"
)

type listLinksRequest struct {
	Bag string `json:"bag"`
	service.ListQuery `json:",inline"`
}

// listLinks writes one JSON object per line, like a fullscan find.
func listLinks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	input := &listLinksRequest{
		ListQuery: service.ListQuery{
			Limit: 100,
		},
	}
	if len(bytes.TrimSpace(body)) > 0 {
		err = json.Unmarshal(body, input)
		if err != nil {
			return err
		}
	}
	if input.Bag == "" {
		return ErrBagRequired
	}

	id, err := urlRID(ctx)
	if err != nil {
		return err
	}

	return GetServicer(ctx).ListLinks(id, input.Bag, &input.ListQuery, func(link *service.Link) error {
		err := json.MarshalWrite(w, link)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte("\n"))
		return err
	})
}
