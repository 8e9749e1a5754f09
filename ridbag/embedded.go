package ridbag

import (
	"github.com/fulldump/ridbagdb/rid"
)

// embedded keeps entries inline, in insertion order. Removed entries leave a
// hole until the next compaction so running iterators keep their position.
type embedded struct {
	env     *Env
	slots   []rid.Identifiable
	removed int
}

func newEmbedded(env *Env) *embedded {
	return &embedded{
		env: env,
	}
}

func (e *embedded) add(value rid.Identifiable) {
	e.slots = append(e.slots, value)
}

func (e *embedded) remove(value rid.Identifiable) (bool, error) {
	i := e.indexOf(value.Identity())
	if i < 0 {
		return false, nil
	}
	e.drop(i)
	return true, nil
}

func (e *embedded) contains(value rid.Identifiable) (bool, error) {
	return e.indexOf(value.Identity()) >= 0, nil
}

func (e *embedded) size() (int, error) {
	return len(e.slots) - e.removed, nil
}

func (e *embedded) indexOf(id rid.RID) int {
	for i, slot := range e.slots {
		if slot != nil && slot.Identity() == id {
			return i
		}
	}
	return -1
}

func (e *embedded) drop(i int) {
	e.slots[i] = nil
	e.removed++
}

func (e *embedded) compact() {
	if e.removed == 0 {
		return
	}
	slots := make([]rid.Identifiable, 0, len(e.slots)-e.removed)
	for _, slot := range e.slots {
		if slot != nil {
			slots = append(slots, slot)
		}
	}
	e.slots = slots
	e.removed = 0
}

func (e *embedded) remap(ids map[rid.RID]rid.RID) {
	// Loaded records are replaced too, their identity changes only once the
	// commit is durable
	for i, slot := range e.slots {
		if slot == nil {
			continue
		}
		if to, found := ids[slot.Identity()]; found {
			e.slots[i] = to
		}
	}
}

func (e *embedded) copy() delegate {
	c := newEmbedded(e.env)
	c.slots = make([]rid.Identifiable, 0, len(e.slots)-e.removed)
	for _, slot := range e.slots {
		if slot != nil {
			c.slots = append(c.slots, slot)
		}
	}
	return c
}

func (e *embedded) isEmbedded() bool {
	return true
}

// ids returns the identities of every live entry in order.
func (e *embedded) ids() []rid.RID {
	result := make([]rid.RID, 0, len(e.slots)-e.removed)
	for _, slot := range e.slots {
		if slot != nil {
			result = append(result, slot.Identity())
		}
	}
	return result
}

func (e *embedded) iterator(resolve bool) delegateIterator {
	return &embeddedIterator{
		bag:     e,
		resolve: resolve,
		current: -1,
		cursor:  0,
	}
}

type embeddedIterator struct {
	bag     *embedded
	resolve bool
	current int
	cursor  int
	failure error
}

func (it *embeddedIterator) next() bool {
	if it.failure != nil {
		return false
	}
	slots := it.bag.slots
	for it.cursor < len(slots) {
		i := it.cursor
		it.cursor++
		if slots[i] == nil {
			continue
		}
		if it.resolve {
			loaded, err := it.bag.env.resolve(slots[i])
			if err != nil {
				it.failure = err
				return false
			}
			// Cache the loaded record in place of the bare id
			slots[i] = loaded
		}
		it.current = i
		return true
	}
	it.current = -1
	return false
}

func (it *embeddedIterator) value() rid.Identifiable {
	if it.current < 0 {
		return nil
	}
	return it.bag.slots[it.current]
}

func (it *embeddedIterator) removeCurrent() {
	if it.current < 0 || it.bag.slots[it.current] == nil {
		return
	}
	it.bag.drop(it.current)
}

func (it *embeddedIterator) err() error {
	return it.failure
}
