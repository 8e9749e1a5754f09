package ridbag

import (
	"github.com/fulldump/ridbagdb/rid"
)

// delegate is one of the two representations of a bag content.
type delegate interface {
	add(value rid.Identifiable)
	// remove takes out one occurrence, false when there was none.
	remove(value rid.Identifiable) (bool, error)
	contains(value rid.Identifiable) (bool, error)
	size() (int, error)
	iterator(resolve bool) delegateIterator
	remap(ids map[rid.RID]rid.RID)
	copy() delegate
	isEmbedded() bool
}

type delegateIterator interface {
	next() bool
	value() rid.Identifiable
	// removeCurrent drops the last yielded occurrence.
	removeCurrent()
	err() error
}

func collect(d delegate) ([]rid.Identifiable, error) {
	result := []rid.Identifiable{}
	it := d.iterator(false)
	for it.next() {
		result = append(result, it.value())
	}
	return result, it.err()
}
