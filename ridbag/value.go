package ridbag

import (
	"fmt"

	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

// Pointer is the stored form of a tree location.
type Pointer struct {
	FileID     int64 `json:"fileId"`
	PageIndex  int64 `json:"pageIndex"`
	PageOffset int32 `json:"pageOffset"`
}

func newPointer(p sbtree.CollectionPointer) *Pointer {
	return &Pointer{
		FileID:     p.FileID,
		PageIndex:  p.Root.PageIndex,
		PageOffset: p.Root.PageOffset,
	}
}

func (p *Pointer) CollectionPointer() sbtree.CollectionPointer {
	return sbtree.CollectionPointer{
		FileID: p.FileID,
		Root: sbtree.BucketPointer{
			PageIndex:  p.PageIndex,
			PageOffset: p.PageOffset,
		},
	}
}

// Value is how a bag field is kept inside its document record: either the
// literal ordered list of ids or the pointer to its tree.
type Value struct {
	Embedded []rid.RID `json:"embedded,omitempty"`
	Pointer  *Pointer  `json:"pointer,omitempty"`
}

func (v Value) IsEmbedded() bool {
	return v.Pointer == nil
}

// Value returns the durable form of the committed content.
func (b *RidBag) Value() Value {
	switch d := b.delegate.(type) {
	case *treeBag:
		return Value{Pointer: newPointer(d.pointer)}
	case *embedded:
		return Value{Embedded: d.ids()}
	}
	return Value{}
}

// Open rebuilds a bag from its durable form.
func Open(env *Env, value Value) (*RidBag, error) {
	d, err := value.delegate(env)
	if err != nil {
		return nil, err
	}
	b := New(env)
	b.delegate = d
	return b, nil
}

func (v Value) delegate(env *Env) (delegate, error) {
	if v.Pointer != nil {
		pointer := v.Pointer.CollectionPointer()
		if !pointer.IsValid() {
			return nil, fmt.Errorf("%w: %s", sbtree.ErrInvalidPointer, pointer)
		}
		return newTreeBag(env, pointer), nil
	}

	e := newEmbedded(env)
	for _, id := range v.Embedded {
		if !id.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidIdentifiable, id)
		}
		e.add(id)
	}
	return e, nil
}
