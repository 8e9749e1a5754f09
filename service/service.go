package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SierraSoftworks/connor"

	"github.com/fulldump/ridbagdb/database"
	"github.com/fulldump/ridbagdb/document"
	"github.com/fulldump/ridbagdb/rid"
)

// commitAttempts bounds how many times a link change is retried after losing
// against a concurrent commit.
const commitAttempts = 10

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{
		db: db,
	}
}

var ErrorInvalidCluster = errors.New("invalid cluster")

func (s *Service) CreateDocument(ctx context.Context, input *CreateDocumentInput) (*Document, error) {

	if input.Cluster < 0 {
		return nil, fmt.Errorf("%w: %d", ErrorInvalidCluster, input.Cluster)
	}

	session := s.db.NewSession()
	d := session.NewDocument(input.Cluster)

	for name, value := range input.Fields {
		if _, isLink := input.Links[name]; isLink {
			return nil, fmt.Errorf("%w: '%s'", document.ErrFieldIsBag, name)
		}
		err := d.SetField(name, value)
		if err != nil {
			return nil, err
		}
	}

	for name, targets := range input.Links {
		bag := d.Bag(name)
		for _, target := range targets {
			err := bag.Add(target)
			if err != nil {
				return nil, fmt.Errorf("link '%s': %w", name, err)
			}
		}
	}

	err := session.Save(d)
	if err != nil {
		return nil, err
	}

	return newDocument(d)
}

func (s *Service) GetDocument(id rid.RID) (*Document, error) {

	d, err := s.load(s.db.NewSession(), id)
	if err != nil {
		return nil, err
	}

	return newDocument(d)
}

func (s *Service) AddLink(ctx context.Context, id rid.RID, bag string, targets []rid.RID) (*Document, error) {
	return s.change(ctx, id, func(d *document.Document) error {
		if _, isField := d.Field(bag); isField {
			return fmt.Errorf("%w: '%s'", document.ErrFieldIsBag, bag)
		}
		b := d.Bag(bag)
		for _, target := range targets {
			err := b.Add(target)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveLink removes one occurrence per target. Targets that are not linked
// are ignored.
func (s *Service) RemoveLink(ctx context.Context, id rid.RID, bag string, targets []rid.RID) (*Document, error) {
	return s.change(ctx, id, func(d *document.Document) error {
		if !d.HasBag(bag) {
			return fmt.Errorf("%w: '%s'", ErrorBagNotFound, bag)
		}
		b := d.Bag(bag)
		for _, target := range targets {
			err := b.Remove(target)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) change(ctx context.Context, id rid.RID, f func(d *document.Document) error) (*Document, error) {

	var result *Document
	err := database.RetryOnConflict(ctx, s.db, commitAttempts, func(session *database.Session) error {
		d, err := s.load(session, id)
		if err != nil {
			return err
		}
		err = f(d)
		if err != nil {
			return err
		}
		err = session.Save(d)
		if err != nil {
			return err
		}
		result, err = newDocument(d)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListLinks streams the entries of a bag in its iteration order. A filter is
// matched against the fields of the linked documents, so it needs resolve.
// A negative limit lists everything.
func (s *Service) ListLinks(id rid.RID, bag string, query *ListQuery, f func(link *Link) error) error {

	hasFilter := len(query.Filter) > 0
	if hasFilter && !query.Resolve {
		return ErrorFilterNeedsResolve
	}

	session := s.db.NewSession()
	d, err := s.load(session, id)
	if err != nil {
		return err
	}
	if !d.HasBag(bag) {
		return fmt.Errorf("%w: '%s'", ErrorBagNotFound, bag)
	}

	skip := query.Skip
	limit := query.Limit

	it := d.Bag(bag).RawIterator()
	for it.Next() {

		if limit == 0 {
			break
		}

		link := &Link{
			RID: it.Value().Identity(),
		}

		if query.Resolve {
			target, err := session.Load(link.RID)
			switch {
			case errors.Is(err, database.ErrDocumentNotFound):
				link.Missing = true
			case err != nil:
				return err
			default:
				link.Fields = target.Fields()
			}
		}

		if hasFilter {
			if link.Missing {
				continue
			}
			match, err := connor.Match(query.Filter, link.Fields)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}
			if !match {
				continue
			}
		}

		if skip > 0 {
			skip--
			continue
		}

		limit--
		err := f(link)
		if err != nil {
			return err
		}
	}

	return it.Err()
}

func (s *Service) Stats() *Stats {

	stats := &Stats{
		Status: s.db.GetStatus(),
	}
	config := s.db.Config().Bags
	stats.Thresholds.EmbeddedToTree = config.EmbeddedToTreeThreshold
	stats.Thresholds.TreeToEmbedded = config.TreeToEmbeddedThreshold

	if stats.Status != database.StatusOperating {
		return stats
	}

	stats.Documents = s.db.Count()
	stats.Trees = s.db.Trees()
	stats.CacheSize = s.db.Manager().Size()
	stats.Evictable = s.db.Manager().Evictable()

	return stats
}

func (s *Service) load(session *database.Session, id rid.RID) (*document.Document, error) {
	d, err := session.Load(id)
	if errors.Is(err, database.ErrDocumentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrorDocumentNotFound, id)
	}
	return d, err
}

func newDocument(d *document.Document) (*Document, error) {

	result := &Document{
		RID:     d.Identity(),
		Version: d.Version(),
		Fields:  map[string]interface{}{},
		Bags:    map[string]*Bag{},
	}
	for name, value := range d.Fields() {
		result.Fields[name] = value
	}

	for name, bag := range d.Bags() {
		size, err := bag.Size()
		if err != nil {
			return nil, fmt.Errorf("bag '%s': %w", name, err)
		}
		value := bag.Value()
		result.Bags[name] = &Bag{
			Size:     size,
			Embedded: value.IsEmbedded(),
			Pointer:  value.Pointer,
		}
	}

	return result, nil
}

var _ Servicer = &Service{}
