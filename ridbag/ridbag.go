// Package ridbag implements a per-field multiset of record identifiers that
// switches between an inline list and a shared persistent tree as it grows
// and shrinks. Every mutation is logged so a transaction can flush it or roll
// it back, including representation switches.
//
// A RidBag belongs to one session and is not safe for concurrent use. The
// trees behind tree-backed bags are shared through the TreeManager.
package ridbag

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

type RidBag struct {
	env         *Env
	delegate    delegate
	log         *ChangeLog
	autoResolve bool
	temporaryID uuid.UUID
}

// New returns an empty embedded bag.
func New(env *Env) *RidBag {
	return &RidBag{
		env:         env,
		delegate:    newEmbedded(env),
		log:         newChangeLog(),
		autoResolve: true,
	}
}

func (b *RidBag) Env() *Env {
	return b.env
}

func (b *RidBag) SetAutoResolve(autoResolve bool) {
	b.autoResolve = autoResolve
}

func (b *RidBag) AutoResolve() bool {
	return b.autoResolve
}

func (b *RidBag) TemporaryID() (uuid.UUID, bool) {
	return b.temporaryID, b.temporaryID != uuid.Nil
}

func (b *RidBag) SetTemporaryID(id uuid.UUID) {
	b.temporaryID = id
}

func validate(value rid.Identifiable) error {
	if value == nil {
		return ErrNilIdentifiable
	}
	if id := value.Identity(); !id.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifiable, id)
	}
	return nil
}

// Add inserts one occurrence of value.
func (b *RidBag) Add(value rid.Identifiable) error {
	err := validate(value)
	if err != nil {
		return err
	}
	b.delegate.add(value)
	b.log.append(Add, value)
	return nil
}

// AddAll adds every value, stopping at the first invalid one.
func (b *RidBag) AddAll(values ...rid.Identifiable) error {
	for _, value := range values {
		err := b.Add(value)
		if err != nil {
			return err
		}
	}
	return nil
}

// Remove takes out one occurrence of value. Removing something the bag does
// not contain changes nothing and is not logged.
func (b *RidBag) Remove(value rid.Identifiable) error {
	if value == nil {
		return ErrNilIdentifiable
	}
	removed, err := b.delegate.remove(value)
	if err != nil {
		return err
	}
	if removed {
		b.log.append(Remove, value)
	}
	return nil
}

func (b *RidBag) Contains(value rid.Identifiable) (bool, error) {
	if value == nil {
		return false, nil
	}
	return b.delegate.contains(value)
}

// Size counts duplicates. Pending changes are included.
func (b *RidBag) Size() (int, error) {
	return b.delegate.size()
}

func (b *RidBag) IsEmpty() (bool, error) {
	size, err := b.Size()
	return size == 0, err
}

func (b *RidBag) IsEmbedded() bool {
	return b.delegate.isEmbedded()
}

// Pointer is the tree behind the bag, false when the bag is embedded.
func (b *RidBag) Pointer() (sbtree.CollectionPointer, bool) {
	t, ok := b.delegate.(*treeBag)
	if !ok {
		return sbtree.InvalidPointer, false
	}
	return t.pointer, true
}

// Events returns the mutations not committed yet.
func (b *RidBag) Events() []ChangeEvent {
	return b.log.Events()
}

// IsDirty is true when there is something to commit or roll back.
func (b *RidBag) IsDirty() bool {
	return !b.log.IsEmpty()
}

// Iterator walks every occurrence, resolving records when autoResolve is on.
func (b *RidBag) Iterator() *Iterator {
	return b.newIterator(b.autoResolve)
}

// RawIterator walks every occurrence without ever resolving.
func (b *RidBag) RawIterator() *Iterator {
	return b.newIterator(false)
}

func (b *RidBag) newIterator(resolve bool) *Iterator {
	return &Iterator{
		bag:   b,
		inner: b.delegate.iterator(resolve),
	}
}

// Values is a convenience to collect the whole content.
func (b *RidBag) Values() ([]rid.Identifiable, error) {
	result := []rid.Identifiable{}
	it := b.Iterator()
	for it.Next() {
		result = append(result, it.Value())
	}
	return result, it.Err()
}

// Copy returns an independent bag with the same content and no pending log.
// The copy of a tree-backed bag keeps pointing to the same tree.
func (b *RidBag) Copy() *RidBag {
	return &RidBag{
		env:         b.env,
		delegate:    b.delegate.copy(),
		log:         newChangeLog(),
		autoResolve: b.autoResolve,
	}
}

// TryMerge brings the pending changes of other into b. Two tree-backed bags on
// the same tree merge their overlays; otherwise, when mergeSingleItems is
// set, every entry of other that b lacks is added.
func (b *RidBag) TryMerge(other *RidBag, mergeSingleItems bool) (bool, error) {
	mine, mineIsTree := b.delegate.(*treeBag)
	theirs, theirsIsTree := other.delegate.(*treeBag)
	if mineIsTree && theirsIsTree && mine.pointer == theirs.pointer {
		for _, c := range theirs.overlay() {
			for i := 0; i < c.diff; i++ {
				b.delegate.add(c.value)
				b.log.append(Add, c.value)
			}
			for i := 0; i > c.diff; i-- {
				err := b.Remove(c.value)
				if err != nil {
					return false, err
				}
			}
		}
		return true, nil
	}

	if !mergeSingleItems {
		return false, nil
	}

	values, err := collect(other.delegate)
	if err != nil {
		return false, err
	}
	for _, value := range values {
		found, err := b.Contains(value)
		if err != nil {
			return false, err
		}
		if found {
			continue
		}
		err = b.Add(value)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// ReturnOriginalState computes the content the bag had before events without
// touching the bag.
func (b *RidBag) ReturnOriginalState(events []ChangeEvent) ([]rid.Identifiable, error) {
	values, err := collect(b.delegate)
	if err != nil {
		return nil, err
	}
	scratch := newEmbedded(b.env)
	for _, value := range values {
		scratch.add(value)
	}
	err = ReplayReverse(events, func(event ChangeEvent) error {
		switch event.Kind {
		case Add:
			scratch.add(event.Value)
		case Remove:
			scratch.remove(event.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collect(scratch)
}

// PrepareSave switches representation when the size crossed a threshold.
// cluster is where a new tree is allocated. On error the bag is unchanged.
func (b *RidBag) PrepareSave(cluster int32) error {
	size, err := b.delegate.size()
	if err != nil {
		return err
	}

	config := b.env.config
	if b.delegate.isEmbedded() {
		if config.EmbeddedToTreeThreshold >= 0 && size > config.EmbeddedToTreeThreshold {
			return b.convertToTree(cluster)
		}
		return nil
	}
	if config.TreeToEmbeddedThreshold >= 0 && size < config.TreeToEmbeddedThreshold {
		return b.convertToEmbedded()
	}
	return nil
}

func (b *RidBag) convertToTree(cluster int32) error {
	values, err := collect(b.delegate)
	if err != nil {
		return err
	}

	tree, err := b.env.manager.CreateAndLoadTree(cluster)
	if err != nil {
		return fmt.Errorf("convert to tree: %w", err)
	}
	pointer := tree.Pointer()
	b.env.manager.ReleaseTree(pointer)

	t := newTreeBag(b.env, pointer)
	t.cachedSize = 0
	for _, value := range values {
		t.add(value)
	}

	b.log.recordConversion(b.delegate, pointer)
	b.delegate = t

	slog.Debug("ridbag converted to tree", "pointer", pointer.String(), "size", len(values))
	return nil
}

func (b *RidBag) convertToEmbedded() error {
	values, err := collect(b.delegate)
	if err != nil {
		return fmt.Errorf("convert to embedded: %w", err)
	}

	e := newEmbedded(b.env)
	for _, value := range values {
		e.add(value)
	}

	b.log.recordConversion(b.delegate, sbtree.InvalidPointer)
	b.delegate = e

	slog.Debug("ridbag converted to embedded", "size", len(values))
	return nil
}

// Commit makes pending changes durable. ids maps the temporary identifiers
// assigned during the transaction to their final value. Trees left behind
// by a conversion are deleted.
func (b *RidBag) Commit(ids map[rid.RID]rid.RID) error {
	err := b.Flush(ids)
	if err != nil {
		return err
	}
	return b.Complete()
}

// Flush remaps ids and writes the pending changes of a tree-backed bag. The
// log is kept, so Reset can still bring the bag back to a durable value.
func (b *RidBag) Flush(ids map[rid.RID]rid.RID) error {
	b.Remap(ids)
	if t, ok := b.delegate.(*treeBag); ok {
		return t.flush()
	}
	return nil
}

// Complete finishes a commit once the owner record is durable.
func (b *RidBag) Complete() error {
	if e, ok := b.delegate.(*embedded); ok {
		e.compact()
	}

	var errs []error
	for _, c := range b.log.conversions {
		previous, wasTree := c.previous.(*treeBag)
		if !wasTree {
			continue
		}
		err := b.env.manager.DeleteTree(previous.pointer)
		if err != nil && !errors.Is(err, sbtree.ErrInvalidPointer) {
			errs = append(errs, fmt.Errorf("delete converted tree %s: %w", previous.pointer, err))
		}
	}

	b.log.clear()
	return errors.Join(errs...)
}

// Validate fails when the content still holds an identity that is not
// persistent, so it can not be written.
func (b *RidBag) Validate() error {
	var invalid rid.RID
	found := false
	switch d := b.delegate.(type) {
	case *treeBag:
		d.changes.Ascend(func(c change) bool {
			if c.key.IsPersistent() {
				return true
			}
			invalid, found = c.key, true
			return false
		})
	case *embedded:
		for _, id := range d.ids() {
			if !id.IsPersistent() {
				invalid, found = id, true
				break
			}
		}
	}
	if found {
		return fmt.Errorf("%w: %s is not persistent", ErrInvalidIdentifiable, invalid)
	}
	return nil
}

// Remap replaces temporary identifiers everywhere the bag keeps them,
// pending events included, without flushing anything.
func (b *RidBag) Remap(ids map[rid.RID]rid.RID) {
	if len(ids) == 0 {
		return
	}
	b.delegate.remap(ids)
	for i, event := range b.log.events {
		id, bare := event.Value.(rid.RID)
		if !bare {
			continue
		}
		if to, found := ids[id]; found {
			b.log.events[i].Value = to
		}
	}
	for _, c := range b.log.conversions {
		c.previous.remap(ids)
	}
}

// Rollback undoes every pending mutation in reverse order. Conversions are
// undone at the point they happened and trees they created are deleted.
func (b *RidBag) Rollback() error {
	events := b.log.events
	conversions := b.log.conversions
	var errs []error

	j := len(conversions) - 1
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		for ; j >= 0 && conversions[j].afterSequence >= event.Sequence; j-- {
			errs = append(errs, b.undoConversion(conversions[j]))
		}
		err := b.apply(event.Inverse())
		if err != nil {
			errs = append(errs, err)
		}
	}
	for ; j >= 0; j-- {
		errs = append(errs, b.undoConversion(conversions[j]))
	}

	if t, ok := b.delegate.(*treeBag); ok {
		t.invalidate()
	}
	b.log.clear()

	return errors.Join(errs...)
}

func (b *RidBag) apply(event ChangeEvent) error {
	switch event.Kind {
	case Add:
		b.delegate.add(event.Value)
	case Remove:
		_, err := b.delegate.remove(event.Value)
		return err
	}
	return nil
}

func (b *RidBag) undoConversion(c conversion) error {
	b.delegate = c.previous
	if !c.created.IsValid() {
		return nil
	}
	err := b.env.manager.DeleteTree(c.created)
	if err != nil {
		slog.Warn("could not delete tree created by a rolled back conversion", "pointer", c.created.String(), "error", err.Error())
		return err
	}
	return nil
}

// Reset drops every pending change and replaces the content with value, the
// last durable state. Trees created by pending conversions are deleted.
func (b *RidBag) Reset(value Value) error {
	var errs []error
	for _, c := range b.log.conversions {
		if c.created.IsValid() {
			errs = append(errs, b.env.manager.DeleteTree(c.created))
		}
	}
	b.log.clear()

	d, err := value.delegate(b.env)
	if err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}
	b.delegate = d

	return errors.Join(errs...)
}

// Drop deletes every tree owned by the bag, used when the owning field or
// document goes away.
func (b *RidBag) Drop() error {
	pointers := map[sbtree.CollectionPointer]bool{}
	for _, c := range b.log.conversions {
		if previous, ok := c.previous.(*treeBag); ok {
			pointers[previous.pointer] = true
		}
	}
	if t, ok := b.delegate.(*treeBag); ok {
		pointers[t.pointer] = true
	}

	var errs []error
	for pointer := range pointers {
		err := b.env.manager.DeleteTree(pointer)
		if err != nil && !errors.Is(err, sbtree.ErrInvalidPointer) {
			errs = append(errs, err)
		}
	}

	b.log.clear()
	b.delegate = newEmbedded(b.env)

	return errors.Join(errs...)
}
