package ridbag

import (
	"fmt"

	"github.com/fulldump/ridbagdb/rid"
)

type iteratorState int

const (
	stateFresh iteratorState = iota
	stateYielded
	stateRemoved
	stateDone
)

// Iterator walks a bag one occurrence at a time:
//
//	it := bag.Iterator()
//	for it.Next() {
//		v := it.Value()
//	}
//	err := it.Err()
type Iterator struct {
	bag     *RidBag
	inner   delegateIterator
	current rid.Identifiable
	state   iteratorState
}

func (it *Iterator) Next() bool {
	if it.state == stateDone {
		return false
	}
	if !it.inner.next() {
		it.current = nil
		it.state = stateDone
		return false
	}
	it.current = it.inner.value()
	it.state = stateYielded
	return true
}

func (it *Iterator) Value() rid.Identifiable {
	return it.current
}

// Remove takes out the occurrence returned by the last Next.
func (it *Iterator) Remove() error {
	switch it.state {
	case stateFresh, stateDone:
		return fmt.Errorf("%w: next not called", ErrIllegalIteratorState)
	case stateRemoved:
		return fmt.Errorf("%w: already removed", ErrIllegalIteratorState)
	}
	it.inner.removeCurrent()
	it.bag.log.append(Remove, it.current)
	it.state = stateRemoved
	return nil
}

// Err returns the failure that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.inner.err()
}
