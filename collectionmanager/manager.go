// Package collectionmanager shares open tree handles between every bag of a
// database. Handles are reference counted and the number of cached handles is
// bounded: unpinned handles are evicted, least recently released first.
package collectionmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fulldump/ridbagdb/sbtree"
)

var (
	ErrClosed      = errors.New("collection manager is closed")
	ErrNotAcquired = errors.New("tree is not acquired")
)

// TreeStorage is the persistent tree collaborator.
type TreeStorage interface {
	Create(cluster int32) (*sbtree.Tree, error)
	Open(pointer sbtree.CollectionPointer) (*sbtree.Tree, error)
	Delete(tree *sbtree.Tree) error
}

type Config struct {
	// MaxSize is the number of entries eviction shrinks the cache to.
	MaxSize int
	// EvictionThreshold is the bound that triggers eviction after an insertion.
	EvictionThreshold int
}

// CacheEntry is a cached handle and its bookkeeping.
type CacheEntry struct {
	Pointer        sbtree.CollectionPointer
	Tree           *sbtree.Tree
	UsageCounter   uint32
	InsertionOrder uint64

	released *node[sbtree.CollectionPointer]
}

type Manager struct {
	storage TreeStorage
	config  Config

	mutex         *sync.Mutex
	entries       map[sbtree.CollectionPointer]*CacheEntry
	evictable     *evictionList[sbtree.CollectionPointer]
	nextInsertion uint64
	closed        bool

	loads singleflight.Group
}

func New(storage TreeStorage, config Config) *Manager {
	if config.MaxSize <= 0 {
		config.MaxSize = 1
	}
	if config.EvictionThreshold < config.MaxSize {
		config.EvictionThreshold = config.MaxSize
	}
	return &Manager{
		storage:   storage,
		config:    config,
		mutex:     &sync.Mutex{},
		entries:   map[sbtree.CollectionPointer]*CacheEntry{},
		evictable: newEvictionList[sbtree.CollectionPointer](),
	}
}

// CreateAndLoadTree allocates a new tree and returns it pinned once.
func (m *Manager) CreateAndLoadTree(cluster int32) (*sbtree.Tree, error) {

	m.mutex.Lock()
	closed := m.closed
	m.mutex.Unlock()
	if closed {
		return nil, ErrClosed
	}

	tree, err := m.storage.Create(cluster)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Closed while the tree was being created
	if m.closed {
		err := m.storage.Delete(tree)
		if err != nil {
			slog.Warn("could not delete tree created after close", "pointer", tree.Pointer().String(), "error", err.Error())
		}
		return nil, ErrClosed
	}

	m.insert(tree.Pointer(), tree)

	return tree, nil
}

// LoadTree returns the cached handle for pointer, opening it when it is not
// cached. Every successful call must be paired with ReleaseTree.
func (m *Manager) LoadTree(pointer sbtree.CollectionPointer) (*sbtree.Tree, error) {

	for {
		m.mutex.Lock()
		if m.closed {
			m.mutex.Unlock()
			return nil, ErrClosed
		}
		if e, exists := m.entries[pointer]; exists {
			m.pin(e)
			m.mutex.Unlock()
			return e.Tree, nil
		}
		m.mutex.Unlock()

		leader := false
		v, err, _ := m.loads.Do(pointer.String(), func() (interface{}, error) {
			leader = true

			tree, err := m.storage.Open(pointer)
			if err != nil {
				return nil, err
			}

			m.mutex.Lock()
			defer m.mutex.Unlock()

			if m.closed {
				return nil, ErrClosed
			}
			if e, exists := m.entries[pointer]; exists {
				m.pin(e)
				return e.Tree, nil
			}
			m.insert(pointer, tree)
			return tree, nil
		})
		if err != nil {
			return nil, err
		}
		if leader {
			return v.(*sbtree.Tree), nil
		}

		// Followers pin whatever entry is cached now; if it was already
		// evicted, load again.
		m.mutex.Lock()
		if e, exists := m.entries[pointer]; exists {
			m.pin(e)
			m.mutex.Unlock()
			return e.Tree, nil
		}
		m.mutex.Unlock()
	}
}

// ReleaseTree gives back one reference. At zero the entry becomes evictable.
func (m *Manager) ReleaseTree(pointer sbtree.CollectionPointer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.entries[pointer]
	if !exists || e.UsageCounter == 0 {
		return fmt.Errorf("%w: %s", ErrNotAcquired, pointer.String())
	}

	e.UsageCounter--
	if e.UsageCounter == 0 {
		e.released = m.evictable.addToHead(pointer)
	}
	return nil
}

// WithTree loads the tree, runs f and releases it.
func (m *Manager) WithTree(pointer sbtree.CollectionPointer, f func(tree *sbtree.Tree) error) error {
	tree, err := m.LoadTree(pointer)
	if err != nil {
		return err
	}
	defer m.ReleaseTree(pointer)

	return f(tree)
}

// DeleteTree removes the tree from storage and from the cache.
func (m *Manager) DeleteTree(pointer sbtree.CollectionPointer) error {

	tree, err := m.LoadTree(pointer)
	if err != nil {
		return err
	}

	err = m.storage.Delete(tree)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.entries[pointer]
	if !exists {
		return err
	}
	if err != nil {
		e.UsageCounter--
		if e.UsageCounter == 0 {
			e.released = m.evictable.addToHead(pointer)
		}
		return err
	}

	m.evictable.delete(e.released)
	delete(m.entries, pointer)

	return nil
}

// Size is the number of cached entries, pinned or not.
func (m *Manager) Size() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}

// Evictable is the number of cached entries nobody holds.
func (m *Manager) Evictable() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.evictable.count()
}

// UsageCounter returns the number of holders of pointer, false if not cached.
func (m *Manager) UsageCounter(pointer sbtree.CollectionPointer) (uint32, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.entries[pointer]
	if !exists {
		return 0, false
	}
	return e.UsageCounter, true
}

// Close drops every entry. Handles already given out stay usable.
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.closed = true
	m.entries = map[sbtree.CollectionPointer]*CacheEntry{}
	m.evictable = newEvictionList[sbtree.CollectionPointer]()
}

// pin must be called with the mutex held.
func (m *Manager) pin(e *CacheEntry) {
	if e.UsageCounter == 0 {
		m.evictable.delete(e.released)
		e.released = nil
	}
	e.UsageCounter++
}

// insert must be called with the mutex held.
func (m *Manager) insert(pointer sbtree.CollectionPointer, tree *sbtree.Tree) {
	m.nextInsertion++
	m.entries[pointer] = &CacheEntry{
		Pointer:        pointer,
		Tree:           tree,
		UsageCounter:   1,
		InsertionOrder: m.nextInsertion,
	}

	if len(m.entries) > m.config.EvictionThreshold {
		m.evict()
	}
}

// evict must be called with the mutex held. Pinned entries are never
// evicted, so the cache may stay above its bound.
func (m *Manager) evict() {
	for len(m.entries) > m.config.MaxSize {
		pointer, ok := m.evictable.deleteFromTail()
		if !ok {
			return
		}
		delete(m.entries, pointer)
		slog.Debug("tree handle evicted", "pointer", pointer.String())
	}
}
