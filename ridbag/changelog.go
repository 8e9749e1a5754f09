package ridbag

import (
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

type ChangeKind int

const (
	Add ChangeKind = iota + 1
	Remove
)

func (k ChangeKind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	}
	return "unknown"
}

// ChangeEvent is one reversible mutation of a bag.
type ChangeEvent struct {
	Kind     ChangeKind
	Value    rid.Identifiable
	Sequence uint64
}

// Inverse is the event that undoes e.
func (e ChangeEvent) Inverse() ChangeEvent {
	inverse := e
	switch e.Kind {
	case Add:
		inverse.Kind = Remove
	case Remove:
		inverse.Kind = Add
	}
	return inverse
}

// conversion remembers the representation that was active before a
// representation switch, so rollback can put it back.
type conversion struct {
	afterSequence uint64
	previous      delegate
	created       sbtree.CollectionPointer
}

// ChangeLog is the ordered list of mutations since the last commit plus the
// base state records of every conversion done meanwhile.
type ChangeLog struct {
	events      []ChangeEvent
	sequence    uint64
	conversions []conversion
}

func newChangeLog() *ChangeLog {
	return &ChangeLog{}
}

func (l *ChangeLog) append(kind ChangeKind, value rid.Identifiable) ChangeEvent {
	l.sequence++
	event := ChangeEvent{
		Kind:     kind,
		Value:    value,
		Sequence: l.sequence,
	}
	l.events = append(l.events, event)
	return event
}

func (l *ChangeLog) recordConversion(previous delegate, created sbtree.CollectionPointer) {
	l.conversions = append(l.conversions, conversion{
		afterSequence: l.sequence,
		previous:      previous,
		created:       created,
	})
}

// Events returns a copy of the pending events in order.
func (l *ChangeLog) Events() []ChangeEvent {
	result := make([]ChangeEvent, len(l.events))
	copy(result, l.events)
	return result
}

func (l *ChangeLog) Len() int {
	return len(l.events)
}

// IsEmpty is true when there is nothing to flush or roll back.
func (l *ChangeLog) IsEmpty() bool {
	return len(l.events) == 0 && len(l.conversions) == 0
}

func (l *ChangeLog) clear() {
	l.events = nil
	l.conversions = nil
}

// Replay applies events in order on top of a base state.
func Replay(events []ChangeEvent, apply func(event ChangeEvent) error) error {
	for _, event := range events {
		err := apply(event)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReplayReverse applies the inverse of every event, last first.
func ReplayReverse(events []ChangeEvent, apply func(event ChangeEvent) error) error {
	for i := len(events) - 1; i >= 0; i-- {
		err := apply(events[i].Inverse())
		if err != nil {
			return err
		}
	}
	return nil
}
