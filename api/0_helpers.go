package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/ridbagdb/api/apidocumentv1"
	"github.com/fulldump/ridbagdb/database"
	"github.com/fulldump/ridbagdb/document"
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
	"github.com/fulldump/ridbagdb/service"
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

var ErrUnavailable = errors.New("temporary unavailable")

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status == database.StatusOpening {
				box.SetError(ctx, fmt.Errorf("%w: opening", ErrUnavailable))
				return
			}
			if status == database.StatusClosing {
				box.SetError(ctx, fmt.Errorf("%w: closing", ErrUnavailable))
				return
			}
			next(ctx)
		}
	}
}

var badRequest = []error{
	rid.ErrMalformed,
	ridbag.ErrNilIdentifiable,
	ridbag.ErrInvalidIdentifiable,
	document.ErrFieldIsBag,
	service.ErrorInvalidCluster,
	service.ErrorFilterNeedsResolve,
	apidocumentv1.ErrBagRequired,
}

// statusOf returns the http status and the description for err.
func statusOf(ctx context.Context, err error) (int, string) {

	if err == box.ErrResourceNotFound {
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	}

	if err == box.ErrMethodNotAllowed {
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	}

	if errors.Is(err, service.ErrorDocumentNotFound) {
		return http.StatusNotFound, "document not found"
	}

	if errors.Is(err, service.ErrorBagNotFound) {
		return http.StatusNotFound, "bag not found"
	}

	if errors.Is(err, database.ErrConcurrentModification) {
		return http.StatusConflict, "document was modified by another transaction, retry"
	}

	if errors.Is(err, ErrUnavailable) || errors.Is(err, database.ErrNotOperating) {
		return http.StatusServiceUnavailable, "database is not operating"
	}

	syntaxError := &json.SyntaxError{}
	if errors.As(err, &syntaxError) {
		return http.StatusBadRequest, "Malformed JSON"
	}
	syntacticError := &jsontext.SyntacticError{}
	if errors.As(err, &syntacticError) {
		return http.StatusBadRequest, "Malformed JSON"
	}

	typeError := &json.UnmarshalTypeError{}
	if errors.As(err, &typeError) {
		return http.StatusBadRequest, "Unexpected JSON type"
	}
	semanticError := &jsonv2.SemanticError{}
	if errors.As(err, &semanticError) {
		return http.StatusBadRequest, "Unexpected JSON type"
	}

	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest, "Bad request"
		}
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := statusOf(ctx, err)

		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}
