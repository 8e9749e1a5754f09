package sbtree

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/fulldump/ridbagdb/rid"
)

// Entry is one key of a tree and the number of times it is stored.
type Entry struct {
	Key   rid.RID `json:"key"`
	Count int     `json:"count"`
}

func lessEntry(a, b Entry) bool {
	return a.Key.Less(b.Key)
}

// Tree is an open handle over one persisted key->count tree. Reads are served
// from memory, writes go to the cluster file first and to memory after.
type Tree struct {
	pointer CollectionPointer
	file    *clusterFile
	mutex   *sync.RWMutex
	entries *btree.BTreeG[Entry]
	total   int
	deleted bool
}

func newTree(pointer CollectionPointer, file *clusterFile) *Tree {
	return &Tree{
		pointer: pointer,
		file:    file,
		mutex:   &sync.RWMutex{},
		entries: btree.NewG(32, lessEntry),
	}
}

func (t *Tree) FileID() int64 {
	return t.pointer.FileID
}

func (t *Tree) RootBucketPointer() BucketPointer {
	return t.pointer.Root
}

func (t *Tree) Pointer() CollectionPointer {
	return t.pointer
}

// Get returns the stored count for key, zero when absent.
func (t *Tree) Get(key rid.RID) int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	entry, found := t.entries.Get(Entry{Key: key})
	if !found {
		return 0
	}
	return entry.Count
}

// Put stores an absolute count for key; zero deletes the key.
func (t *Tree) Put(key rid.RID, count int) error {
	return t.Apply(map[rid.RID]int{key: count})
}

// Remove deletes key and returns the count it had.
func (t *Tree) Remove(key rid.RID) (int, error) {
	previous := t.Get(key)
	if previous == 0 {
		return 0, nil
	}
	err := t.Apply(map[rid.RID]int{key: 0})
	if err != nil {
		return 0, err
	}
	return previous, nil
}

// Apply writes a batch of absolute counts as one journal command. Memory is
// only touched once the batch is durable.
func (t *Tree) Apply(batch map[rid.RID]int) error {
	if len(batch) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(batch))
	for key, count := range batch {
		if count < 0 {
			return storageError("apply", t.pointer, fmt.Errorf("%w: key %s count %d", ErrNegativeCount, key, count))
		}
		if !key.IsPersistent() {
			return storageError("apply", t.pointer, fmt.Errorf("key %s is not persistent", key))
		}
		entries = append(entries, Entry{Key: key, Count: count})
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.deleted {
		return storageError("apply", t.pointer, ErrDeleted)
	}

	err := t.file.append(commandApply, &applyPayload{
		Root:    t.pointer.Root,
		Entries: entries,
	})
	if err != nil {
		return storageError("apply", t.pointer, err)
	}

	t.applyMemory(entries)

	return nil
}

func (t *Tree) applyMemory(entries []Entry) {
	for _, entry := range entries {
		if previous, found := t.entries.Get(entry); found {
			t.total -= previous.Count
		}
		if entry.Count == 0 {
			t.entries.Delete(entry)
			continue
		}
		t.entries.ReplaceOrInsert(entry)
		t.total += entry.Count
	}
}

// AscendFrom returns up to limit entries in key order starting at from.
// A limit <= 0 returns everything.
func (t *Tree) AscendFrom(from rid.RID, inclusive bool, limit int) []Entry {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := []Entry{}
	t.entries.AscendGreaterOrEqual(Entry{Key: from}, func(entry Entry) bool {
		if !inclusive && entry.Key == from {
			return true
		}
		result = append(result, entry)
		return limit <= 0 || len(result) < limit
	})
	return result
}

// FirstKey returns the smallest key, false when the tree is empty.
func (t *Tree) FirstKey() (rid.RID, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	entry, found := t.entries.Min()
	return entry.Key, found
}

// KeyCount is the number of distinct keys.
func (t *Tree) KeyCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.entries.Len()
}

// TotalCount is the sum of every stored count.
func (t *Tree) TotalCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.total
}

// RealBagSize computes the content size after applying pending diffs without
// mutating the tree. Diffs never take a key below zero.
func (t *Tree) RealBagSize(diffs map[rid.RID]int) int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	size := t.total
	for key, diff := range diffs {
		stored := 0
		if entry, found := t.entries.Get(Entry{Key: key}); found {
			stored = entry.Count
		}
		final := stored + diff
		if final < 0 {
			final = 0
		}
		size += final - stored
	}
	return size
}

func (t *Tree) markDeleted() {
	t.mutex.Lock()
	t.deleted = true
	t.entries.Clear(false)
	t.total = 0
	t.mutex.Unlock()
}
