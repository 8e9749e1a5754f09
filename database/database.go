package database

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/fulldump/ridbagdb/collectionmanager"
	"github.com/fulldump/ridbagdb/document"
	"github.com/fulldump/ridbagdb/journal"
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
	"github.com/fulldump/ridbagdb/sbtree"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

const (
	commandSave   = "save"
	commandDelete = "delete"

	documentsFilename = "documents.journal"
	treesDir          = "trees"
)

type Config struct {
	Dir   string
	Bags  ridbag.Config
	Cache collectionmanager.Config
}

type deletePayload struct {
	RID rid.RID `json:"rid"`
}

type Database struct {
	config *Config
	status string
	exit   chan struct{}

	mutex     *sync.RWMutex
	records   map[rid.RID]*document.Record
	positions map[int32]int64
	journal   *journal.Journal
	storage   *sbtree.Storage
	manager   *collectionmanager.Manager
}

func NewDatabase(config *Config) *Database {
	s := &Database{
		config:    config,
		status:    StatusOpening,
		exit:      make(chan struct{}),
		mutex:     &sync.RWMutex{},
		records:   map[rid.RID]*document.Record{},
		positions: map[int32]int64{},
	}

	return s
}

func (db *Database) GetStatus() string {
	return db.status
}

func (db *Database) Config() *Config {
	return db.config
}

// Manager is the tree cache shared by every session.
func (db *Database) Manager() *collectionmanager.Manager {
	return db.manager
}

func (db *Database) Load() error {

	slog.Info("loading database", "dir", db.config.Dir)
	t0 := time.Now()

	err := os.MkdirAll(db.config.Dir, 0755)
	if err != nil {
		db.status = StatusClosing
		return err
	}

	filename := path.Join(db.config.Dir, documentsFilename)
	err = journal.Replay(filename, db.replay)
	if err != nil {
		db.status = StatusClosing
		return fmt.Errorf("replay '%s': %w", filename, err)
	}

	db.journal, err = journal.Open(filename)
	if err != nil {
		db.status = StatusClosing
		return err
	}

	db.storage, err = sbtree.OpenStorage(path.Join(db.config.Dir, treesDir))
	if err != nil {
		db.journal.Close()
		db.status = StatusClosing
		return err
	}

	db.manager = collectionmanager.New(db.storage, db.config.Cache)

	slog.Info("database loaded", "documents", len(db.records), "trees", db.storage.TreeCount(), "elapsed", time.Since(t0).String())

	db.status = StatusOperating

	return nil
}

func (db *Database) replay(command *journal.Command) error {
	switch command.Name {
	case commandSave:
		record := &document.Record{}
		err := command.Decode(record)
		if err != nil {
			return err
		}
		db.records[record.RID] = record
		db.track(record.RID)
	case commandDelete:
		payload := &deletePayload{}
		err := command.Decode(payload)
		if err != nil {
			return err
		}
		delete(db.records, payload.RID)
		db.track(payload.RID)
	default:
		slog.Warn("unknown command", "name", command.Name, "uuid", command.Uuid)
	}
	return nil
}

// track must be called with the mutex held or during load.
func (db *Database) track(id rid.RID) {
	if id.Position >= db.positions[id.Cluster] {
		db.positions[id.Cluster] = id.Position + 1
	}
}

// allocate must be called with the mutex held.
func (db *Database) allocate(cluster int32) rid.RID {
	position := db.positions[cluster]
	db.positions[cluster] = position + 1
	return rid.New(cluster, position)
}

func (db *Database) Start() error {

	go func() {
		err := db.Load()
		if err != nil {
			slog.Error("load database", "dir", db.config.Dir, "error", err.Error())
		}
	}()

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	defer close(db.exit)

	db.status = StatusClosing

	var lastErr error
	if db.manager != nil {
		db.manager.Close()
	}
	if db.storage != nil {
		err := db.storage.Close()
		if err != nil {
			slog.Error("close trees", "error", err.Error())
			lastErr = err
		}
	}
	if db.journal != nil {
		err := db.journal.Close()
		if err != nil {
			slog.Error("close documents", "error", err.Error())
			lastErr = err
		}
	}

	return lastErr
}

// CurrentVersion returns the committed version of a record.
func (db *Database) CurrentVersion(id rid.RID) (int64, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	record, exists := db.records[id]
	if !exists {
		return 0, false
	}
	return record.Version, true
}

// Count is the number of committed records.
func (db *Database) Count() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.records)
}

func (db *Database) record(id rid.RID) (*document.Record, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	record, exists := db.records[id]
	return record, exists
}

// Trees is the number of live trees in storage.
func (db *Database) Trees() int {
	return db.storage.TreeCount()
}
