package ridbag

import (
	"fmt"
	"math"

	"github.com/google/btree"

	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

// change is the pending difference for one key on top of the stored count.
type change struct {
	key   rid.RID
	value rid.Identifiable
	diff  int
}

func lessChange(a, b change) bool {
	return a.key.Less(b.key)
}

var firstKey = rid.RID{Cluster: math.MinInt32, Position: math.MinInt64}

// treeBag keeps entries in a shared persistent tree and every uncommitted
// mutation in an ordered overlay. The tree handle is acquired per operation
// and per iteration page, never held.
type treeBag struct {
	env        *Env
	pointer    sbtree.CollectionPointer
	changes    *btree.BTreeG[change]
	cachedSize int
}

func newTreeBag(env *Env, pointer sbtree.CollectionPointer) *treeBag {
	return &treeBag{
		env:        env,
		pointer:    pointer,
		changes:    btree.NewG(16, lessChange),
		cachedSize: -1,
	}
}

func (t *treeBag) stored(key rid.RID) (int, error) {
	if !key.IsPersistent() {
		return 0, nil
	}
	count := 0
	err := t.env.withTree(t.pointer, func(tree *sbtree.Tree) error {
		count = tree.Get(key)
		return nil
	})
	return count, err
}

func (t *treeBag) change(key rid.RID) change {
	c, found := t.changes.Get(change{key: key})
	if !found {
		return change{key: key}
	}
	return c
}

func (t *treeBag) store(c change) {
	if c.diff == 0 {
		t.changes.Delete(c)
		return
	}
	t.changes.ReplaceOrInsert(c)
}

func (t *treeBag) add(value rid.Identifiable) {
	c := t.change(value.Identity())
	c.diff++
	if _, bare := value.(rid.RID); c.value == nil || !bare {
		c.value = value
	}
	t.store(c)
	if t.cachedSize >= 0 {
		t.cachedSize++
	}
}

func (t *treeBag) remove(value rid.Identifiable) (bool, error) {
	key := value.Identity()
	stored, err := t.stored(key)
	if err != nil {
		return false, err
	}
	c := t.change(key)
	if stored+c.diff <= 0 {
		return false, nil
	}
	if c.value == nil {
		c.value = value
	}
	t.decrement(c)
	return true, nil
}

func (t *treeBag) decrement(c change) {
	c.diff--
	t.store(c)
	if t.cachedSize > 0 {
		t.cachedSize--
	}
}

func (t *treeBag) contains(value rid.Identifiable) (bool, error) {
	key := value.Identity()
	stored, err := t.stored(key)
	if err != nil {
		return false, err
	}
	return stored+t.change(key).diff > 0, nil
}

func (t *treeBag) overlay() []change {
	result := make([]change, 0, t.changes.Len())
	t.changes.Ascend(func(c change) bool {
		result = append(result, c)
		return true
	})
	return result
}

func (t *treeBag) diffs() map[rid.RID]int {
	result := make(map[rid.RID]int, t.changes.Len())
	t.changes.Ascend(func(c change) bool {
		result[c.key] = c.diff
		return true
	})
	return result
}

func (t *treeBag) size() (int, error) {
	if t.cachedSize >= 0 {
		return t.cachedSize, nil
	}
	diffs := t.diffs()
	size := 0
	err := t.env.withTree(t.pointer, func(tree *sbtree.Tree) error {
		size = tree.RealBagSize(diffs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	t.cachedSize = size
	return size, nil
}

// invalidate forgets the cached size, the next size call asks the tree.
func (t *treeBag) invalidate() {
	t.cachedSize = -1
}

func (t *treeBag) remap(ids map[rid.RID]rid.RID) {
	if len(ids) == 0 {
		return
	}
	remapped := []change{}
	t.changes.Ascend(func(c change) bool {
		if _, found := ids[c.key]; found {
			remapped = append(remapped, c)
		}
		return true
	})
	for _, c := range remapped {
		t.changes.Delete(c)
		to := ids[c.key]
		merged := t.change(to)
		merged.diff += c.diff
		if _, bare := c.value.(rid.RID); bare || c.value == nil {
			merged.value = to
		} else {
			merged.value = c.value
		}
		t.store(merged)
	}
}

// flush writes every pending change as one batch of absolute counts.
func (t *treeBag) flush() error {
	if t.changes.Len() == 0 {
		return nil
	}
	err := t.env.withTree(t.pointer, func(tree *sbtree.Tree) error {
		batch := make(map[rid.RID]int, t.changes.Len())
		var invalid error
		t.changes.Ascend(func(c change) bool {
			if !c.key.IsPersistent() {
				invalid = fmt.Errorf("%w: %s is not persistent", ErrInvalidIdentifiable, c.key)
				return false
			}
			count := tree.Get(c.key) + c.diff
			if count < 0 {
				count = 0
			}
			batch[c.key] = count
			return true
		})
		if invalid != nil {
			return invalid
		}
		return tree.Apply(batch)
	})
	if err != nil {
		return err
	}
	t.changes.Clear(false)
	return nil
}

func (t *treeBag) copy() delegate {
	return &treeBag{
		env:        t.env,
		pointer:    t.pointer,
		changes:    t.changes.Clone(),
		cachedSize: t.cachedSize,
	}
}

func (t *treeBag) isEmbedded() bool {
	return false
}

func (t *treeBag) iterator(resolve bool) delegateIterator {
	return &treeIterator{
		bag:     t,
		resolve: resolve,
		overlay: t.overlay(),
	}
}

// treeIterator merges stored entries, fetched one page at a time, with the
// overlay snapshot taken when the iterator was created.
type treeIterator struct {
	bag     *treeBag
	resolve bool

	overlay []change
	oi      int

	page      []sbtree.Entry
	pi        int
	last      rid.RID
	started   bool
	exhausted bool

	currentKey   rid.RID
	currentValue rid.Identifiable
	remaining    int
	yielded      bool

	failure error
}

func (it *treeIterator) fetch() (sbtree.Entry, bool, error) {
	if it.pi < len(it.page) {
		return it.page[it.pi], true, nil
	}
	if it.exhausted {
		return sbtree.Entry{}, false, nil
	}

	limit := it.bag.env.config.Prefetch
	from, inclusive := firstKey, true
	if it.started {
		from, inclusive = it.last, false
	}
	var page []sbtree.Entry
	err := it.bag.env.withTree(it.bag.pointer, func(tree *sbtree.Tree) error {
		page = tree.AscendFrom(from, inclusive, limit)
		return nil
	})
	if err != nil {
		return sbtree.Entry{}, false, err
	}

	it.started = true
	it.page = page
	it.pi = 0
	if len(page) < limit {
		it.exhausted = true
	}
	if len(page) == 0 {
		return sbtree.Entry{}, false, nil
	}
	it.last = page[len(page)-1].Key
	return page[0], true, nil
}

func (it *treeIterator) next() bool {
	if it.failure != nil {
		return false
	}
	if it.remaining > 0 {
		it.remaining--
		it.yielded = true
		return true
	}

	for {
		entry, stored, err := it.fetch()
		if err != nil {
			it.failure = err
			return false
		}
		var pending *change
		if it.oi < len(it.overlay) {
			pending = &it.overlay[it.oi]
		}
		if !stored && pending == nil {
			it.yielded = false
			return false
		}

		var key rid.RID
		var value rid.Identifiable
		count := 0
		switch {
		case pending != nil && (!stored || pending.key.Less(entry.Key)):
			key, value, count = pending.key, pending.value, pending.diff
			it.oi++
		case pending != nil && pending.key == entry.Key:
			key, value, count = entry.Key, pending.value, entry.Count+pending.diff
			if value == nil {
				value = entry.Key
			}
			it.oi++
			it.pi++
		default:
			key, value, count = entry.Key, entry.Key, entry.Count
			it.pi++
		}
		if count <= 0 {
			continue
		}

		if it.resolve {
			value, err = it.bag.env.resolve(value)
			if err != nil {
				it.failure = err
				return false
			}
		}

		it.currentKey = key
		it.currentValue = value
		it.remaining = count - 1
		it.yielded = true
		return true
	}
}

func (it *treeIterator) value() rid.Identifiable {
	if !it.yielded {
		return nil
	}
	return it.currentValue
}

func (it *treeIterator) removeCurrent() {
	if !it.yielded {
		return
	}
	c := it.bag.change(it.currentKey)
	if c.value == nil {
		c.value = it.currentValue
	}
	it.bag.decrement(c)
	it.yielded = false
}

func (it *treeIterator) err() error {
	return it.failure
}
