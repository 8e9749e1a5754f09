package document

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
)

var ErrFieldIsBag = errors.New("field holds a ridbag")

// Record is the durable form of a document.
type Record struct {
	RID     rid.RID                 `json:"rid"`
	Version int64                   `json:"version"`
	Fields  map[string]interface{}  `json:"fields,omitempty"`
	Bags    map[string]ridbag.Value `json:"bags,omitempty"`
}

type droppedBag struct {
	name string
	bag  *ridbag.RidBag
}

// Document is a record with plain fields and ridbag fields. It is owned by
// one session.
type Document struct {
	id      rid.RID
	version int64
	fields  map[string]interface{}
	bags    map[string]*ridbag.RidBag
	dropped []droppedBag
	env     *ridbag.Env
	dirty   bool
}

// New returns a document that is not stored yet. id is usually temporary.
func New(env *ridbag.Env, id rid.RID) *Document {
	return &Document{
		id:     id,
		fields: map[string]interface{}{},
		bags:   map[string]*ridbag.RidBag{},
		env:    env,
		dirty:  true,
	}
}

// Decode rebuilds a document from its durable form.
func Decode(env *ridbag.Env, record *Record) (*Document, error) {
	d := &Document{
		id:      record.RID,
		version: record.Version,
		fields:  map[string]interface{}{},
		bags:    map[string]*ridbag.RidBag{},
		env:     env,
	}
	for name, value := range record.Fields {
		d.fields[name] = value
	}
	for name, value := range record.Bags {
		bag, err := ridbag.Open(env, value)
		if err != nil {
			return nil, fmt.Errorf("bag '%s' of %s: %w", name, record.RID, err)
		}
		d.bags[name] = bag
	}
	return d, nil
}

func (d *Document) Identity() rid.RID {
	return d.id
}

func (d *Document) Version() int64 {
	return d.version
}

// IsNew is true until the document is committed for the first time.
func (d *Document) IsNew() bool {
	return !d.id.IsPersistent()
}

func (d *Document) Field(name string) (interface{}, bool) {
	value, exists := d.fields[name]
	return value, exists
}

func (d *Document) Fields() map[string]interface{} {
	return d.fields
}

func (d *Document) SetField(name string, value interface{}) error {
	if _, isBag := d.bags[name]; isBag {
		return fmt.Errorf("%w: '%s'", ErrFieldIsBag, name)
	}
	d.fields[name] = value
	d.dirty = true
	return nil
}

// Bag returns the ridbag stored in field name, creating an empty one on
// first use.
func (d *Document) Bag(name string) *ridbag.RidBag {
	bag, exists := d.bags[name]
	if !exists {
		bag = ridbag.New(d.env)
		d.bags[name] = bag
		delete(d.fields, name)
		d.dirty = true
	}
	return bag
}

func (d *Document) HasBag(name string) bool {
	_, exists := d.bags[name]
	return exists
}

// BagNames lists the bag fields sorted by name.
func (d *Document) BagNames() []string {
	names := make([]string, 0, len(d.bags))
	for name := range d.bags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Document) Bags() map[string]*ridbag.RidBag {
	return d.bags
}

// RemoveField deletes a plain field or a bag field. A removed bag gives back
// its tree when the document is committed.
func (d *Document) RemoveField(name string) {
	if bag, isBag := d.bags[name]; isBag {
		d.dropped = append(d.dropped, droppedBag{name: name, bag: bag})
		delete(d.bags, name)
		d.dirty = true
		return
	}
	if _, exists := d.fields[name]; exists {
		delete(d.fields, name)
		d.dirty = true
	}
}

// Dropped returns the bags removed since the last commit.
func (d *Document) Dropped() []*ridbag.RidBag {
	result := make([]*ridbag.RidBag, 0, len(d.dropped))
	for _, dropped := range d.dropped {
		result = append(result, dropped.bag)
	}
	return result
}

// IsDirty is true when a field or a bag changed since the last commit.
func (d *Document) IsDirty() bool {
	if d.dirty || len(d.dropped) > 0 {
		return true
	}
	for _, bag := range d.bags {
		if bag.IsDirty() {
			return true
		}
	}
	return false
}

// Record returns the durable form with the given version.
func (d *Document) Record(version int64) *Record {
	record := &Record{
		RID:     d.id,
		Version: version,
		Fields:  map[string]interface{}{},
		Bags:    map[string]ridbag.Value{},
	}
	for name, value := range d.fields {
		record.Fields[name] = value
	}
	for name, bag := range d.bags {
		record.Bags[name] = bag.Value()
	}
	return record
}

// Committed is called once the document is durable under id and version.
func (d *Document) Committed(id rid.RID, version int64) {
	d.id = id
	d.version = version
	d.dropped = nil
	d.dirty = false
}

// Rollback undoes every pending change: fields come back from the durable
// record and every bag replays its log in reverse.
func (d *Document) Rollback(record *Record) error {
	return d.restore(record, func(bag *ridbag.RidBag, value ridbag.Value) error {
		return bag.Rollback()
	})
}

// Reset forgets pending changes and reloads every bag from its durable value.
// Bags are reset in place so references held by callers stay valid.
func (d *Document) Reset(record *Record) error {
	return d.restore(record, func(bag *ridbag.RidBag, value ridbag.Value) error {
		return bag.Reset(value)
	})
}

func (d *Document) restore(record *Record, f func(bag *ridbag.RidBag, value ridbag.Value) error) error {
	var errs []error

	if record == nil {
		record = &Record{RID: d.id}
	}
	d.version = record.Version
	d.fields = map[string]interface{}{}
	for name, value := range record.Fields {
		d.fields[name] = value
	}

	// The first removal of a name is the durable bag
	restored := map[string]bool{}
	for _, dropped := range d.dropped {
		if _, durable := record.Bags[dropped.name]; !durable || restored[dropped.name] {
			errs = append(errs, dropped.bag.Rollback())
			continue
		}
		restored[dropped.name] = true
		if current, taken := d.bags[dropped.name]; taken {
			errs = append(errs, current.Rollback())
		}
		d.bags[dropped.name] = dropped.bag
	}
	d.dropped = nil

	for name, bag := range d.bags {
		value, durable := record.Bags[name]
		if !durable {
			errs = append(errs, bag.Rollback())
			delete(d.bags, name)
			continue
		}
		errs = append(errs, f(bag, value))
	}

	d.dirty = false
	return errors.Join(errs...)
}
