package sbtree

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fulldump/ridbagdb/journal"
	"github.com/fulldump/ridbagdb/rid"
)

const (
	commandCreate = "create"
	commandApply  = "apply"
	commandDelete = "delete"

	filePrefix = "collections_"
	fileSuffix = ".sbc"

	// rootPageOffset is the offset of the root bucket inside its page, the
	// same for every tree of a file.
	rootPageOffset = 0
)

type rootPayload struct {
	Root BucketPointer `json:"root"`
}

type applyPayload struct {
	Root    BucketPointer `json:"root"`
	Entries []Entry       `json:"entries"`
}

// clusterFile keeps every tree that belongs to one cluster.
type clusterFile struct {
	id       int64
	journal  *journal.Journal
	rw       *sync.RWMutex
	nextPage int64
	roots    map[int64]bool
}

func (f *clusterFile) append(name string, payload interface{}) error {
	f.rw.Lock()
	defer f.rw.Unlock()
	return f.journal.Append(name, payload)
}

func (f *clusterFile) replay(fn func(command *journal.Command) error) error {
	f.rw.RLock()
	defer f.rw.RUnlock()
	return journal.Replay(f.journal.Filename(), fn)
}

// Storage creates, opens and deletes trees under a directory.
type Storage struct {
	dir    string
	mutex  *sync.Mutex
	files  map[int64]*clusterFile
	closed bool
}

func fileName(fileID int64) string {
	return filePrefix + strconv.FormatInt(fileID, 10) + fileSuffix
}

// OpenStorage scans dir for cluster files and learns which trees are alive.
func OpenStorage(dir string) (*Storage, error) {

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, storageError("open", InvalidPointer, err)
	}

	s := &Storage{
		dir:   dir,
		mutex: &sync.Mutex{},
		files: map[int64]*clusterFile{},
	}

	matches, err := filepath.Glob(path.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, storageError("open", InvalidPointer, err)
	}
	for _, match := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(path.Base(match), filePrefix), fileSuffix)
		fileID, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			slog.Warn("ignoring unexpected tree file", "file", match)
			continue
		}
		f, err := s.scanFile(fileID)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files[fileID] = f
	}

	return s, nil
}

func (s *Storage) scanFile(fileID int64) (*clusterFile, error) {

	filename := path.Join(s.dir, fileName(fileID))
	f := &clusterFile{
		id:    fileID,
		rw:    &sync.RWMutex{},
		roots: map[int64]bool{},
	}

	err := journal.Replay(filename, func(command *journal.Command) error {
		params := &rootPayload{}
		switch command.Name {
		case commandCreate:
			if err := command.Decode(params); err != nil {
				return err
			}
			f.roots[params.Root.PageIndex] = true
			if params.Root.PageIndex >= f.nextPage {
				f.nextPage = params.Root.PageIndex + 1
			}
		case commandDelete:
			if err := command.Decode(params); err != nil {
				return err
			}
			delete(f.roots, params.Root.PageIndex)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("scan", CollectionPointer{FileID: fileID}, err)
	}

	f.journal, err = journal.Open(filename)
	if err != nil {
		return nil, storageError("scan", CollectionPointer{FileID: fileID}, err)
	}

	return f, nil
}

func (s *Storage) file(fileID int64, create bool) (*clusterFile, error) {
	f, exists := s.files[fileID]
	if exists {
		return f, nil
	}
	if !create {
		return nil, ErrInvalidPointer
	}

	j, err := journal.Open(path.Join(s.dir, fileName(fileID)))
	if err != nil {
		return nil, err
	}
	f = &clusterFile{
		id:      fileID,
		journal: j,
		rw:      &sync.RWMutex{},
		roots:   map[int64]bool{},
	}
	s.files[fileID] = f
	return f, nil
}

// Create allocates a new empty tree in the file of cluster.
func (s *Storage) Create(cluster int32) (*Tree, error) {

	fileID := int64(cluster)
	pointer := CollectionPointer{FileID: fileID, Root: BucketPointer{PageIndex: -1, PageOffset: rootPageOffset}}
	if cluster < 0 {
		return nil, storageError("create", pointer, fmt.Errorf("%w: cluster %d", ErrInvalidPointer, cluster))
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, storageError("create", pointer, ErrClosed)
	}

	f, err := s.file(fileID, true)
	if err != nil {
		return nil, storageError("create", pointer, err)
	}

	pointer.Root.PageIndex = f.nextPage
	err = f.append(commandCreate, &rootPayload{Root: pointer.Root})
	if err != nil {
		return nil, storageError("create", pointer, err)
	}
	f.nextPage++
	f.roots[pointer.Root.PageIndex] = true

	slog.Debug("tree created", "pointer", pointer.String())

	return newTree(pointer, f), nil
}

// Open reads a tree from disk into a new handle.
func (s *Storage) Open(pointer CollectionPointer) (*Tree, error) {

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, storageError("open", pointer, ErrClosed)
	}
	f, err := s.file(pointer.FileID, false)
	if err == nil && (!pointer.IsValid() || pointer.Root.PageOffset != rootPageOffset || !f.roots[pointer.Root.PageIndex]) {
		err = ErrInvalidPointer
	}
	s.mutex.Unlock()
	if err != nil {
		return nil, storageError("open", pointer, err)
	}

	tree := newTree(pointer, f)
	err = f.replay(func(command *journal.Command) error {
		if command.Name != commandApply {
			return nil
		}
		params := &applyPayload{}
		err := command.Decode(params)
		if err != nil {
			return err
		}
		if params.Root != pointer.Root {
			return nil
		}
		tree.applyMemory(params.Entries)
		return nil
	})
	if err != nil {
		return nil, storageError("open", pointer, err)
	}

	return tree, nil
}

// Exists reports whether pointer refers to a live tree.
func (s *Storage) Exists(pointer CollectionPointer) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, exists := s.files[pointer.FileID]
	return exists && f.roots[pointer.Root.PageIndex]
}

// Delete removes a tree. Open handles over it stop accepting writes.
func (s *Storage) Delete(tree *Tree) error {

	pointer := tree.Pointer()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return storageError("delete", pointer, ErrClosed)
	}
	f, err := s.file(pointer.FileID, false)
	if err != nil || !f.roots[pointer.Root.PageIndex] {
		return storageError("delete", pointer, ErrInvalidPointer)
	}

	err = f.append(commandDelete, &rootPayload{Root: pointer.Root})
	if err != nil {
		return storageError("delete", pointer, err)
	}
	delete(f.roots, pointer.Root.PageIndex)
	tree.markDeleted()

	slog.Debug("tree deleted", "pointer", pointer.String())

	return nil
}

// TreeCount is the number of live trees across all files.
func (s *Storage) TreeCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := 0
	for _, f := range s.files {
		n += len(f.roots)
	}
	return n
}

func (s *Storage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	var lastErr error
	for _, f := range s.files {
		if f.journal == nil {
			continue
		}
		err := f.journal.Close()
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Entries is a helper to build a batch from keys, counting repetitions.
func Entries(keys []rid.RID) map[rid.RID]int {
	batch := map[rid.RID]int{}
	for _, key := range keys {
		batch[key]++
	}
	return batch
}
