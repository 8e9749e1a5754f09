package service

import (
	"context"
	"errors"

	"github.com/fulldump/ridbagdb/rid"
)

var ErrorDocumentNotFound = errors.New("document not found")
var ErrorBagNotFound = errors.New("bag not found")
var ErrorFilterNeedsResolve = errors.New("filter needs resolve")

type Servicer interface {
	CreateDocument(ctx context.Context, input *CreateDocumentInput) (*Document, error)
	GetDocument(id rid.RID) (*Document, error)
	AddLink(ctx context.Context, id rid.RID, bag string, targets []rid.RID) (*Document, error)
	RemoveLink(ctx context.Context, id rid.RID, bag string, targets []rid.RID) (*Document, error)
	ListLinks(id rid.RID, bag string, query *ListQuery, f func(link *Link) error) error
	Stats() *Stats
}
