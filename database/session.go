package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fulldump/ridbagdb/document"
	"github.com/fulldump/ridbagdb/journal"
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
)

// Session is a unit of work over the database: it caches the documents it
// loaded or created and runs at most one transaction at a time. A session is
// not safe for concurrent use, open one per goroutine.
type Session struct {
	db        *Database
	env       *ridbag.Env
	documents map[rid.RID]*document.Document
	tx        *transaction
	temporary int64
}

type transaction struct {
	saved   []*document.Document
	deleted []*document.Document
	staged  map[*document.Document]bool
}

func newTransaction() *transaction {
	return &transaction{
		staged: map[*document.Document]bool{},
	}
}

func (db *Database) NewSession() *Session {
	s := &Session{
		db:        db,
		documents: map[rid.RID]*document.Document{},
		temporary: -1,
	}
	s.env = ridbag.NewEnv(db.manager, rid.LoaderFunc(func(id rid.RID) (rid.Identifiable, error) {
		return s.Load(id)
	}), db.config.Bags)
	return s
}

func (s *Session) Env() *ridbag.Env {
	return s.env
}

// NewDocument returns a document with a temporary identity in cluster. It is
// stored by the next commit of the session.
func (s *Session) NewDocument(cluster int32) *document.Document {
	s.temporary--
	d := document.New(s.env, rid.New(cluster, s.temporary))
	s.documents[d.Identity()] = d
	return d
}

// Load returns the session copy of a document, reading it on first use.
func (s *Session) Load(id rid.RID) (*document.Document, error) {
	if d, exists := s.documents[id]; exists {
		return d, nil
	}

	if s.db.status != StatusOperating {
		return nil, ErrNotOperating
	}

	record, exists := s.db.record(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	d, err := document.Decode(s.env, record)
	if err != nil {
		return nil, err
	}
	s.documents[id] = d
	return d, nil
}

func (s *Session) InTransaction() bool {
	return s.tx != nil
}

func (s *Session) Begin() error {
	if s.tx != nil {
		return ErrTransactionActive
	}
	s.tx = newTransaction()
	return nil
}

// Save stages d for the current transaction; without one it is committed
// right away. Bags switch representation here when they crossed a threshold.
func (s *Session) Save(d *document.Document) error {
	if s.tx == nil {
		err := s.Begin()
		if err != nil {
			return err
		}
		err = s.Save(d)
		if err != nil {
			s.Rollback()
			return err
		}
		return s.Commit()
	}

	err := prepare(d)
	if err != nil {
		return err
	}

	if !s.tx.staged[d] {
		s.tx.staged[d] = true
		s.tx.saved = append(s.tx.saved, d)
	}
	return nil
}

func prepare(d *document.Document) error {
	for _, name := range d.BagNames() {
		err := d.Bag(name).PrepareSave(d.Identity().Cluster)
		if err != nil {
			return fmt.Errorf("prepare bag '%s' of %s: %w", name, d.Identity(), err)
		}
	}
	return nil
}

// Delete stages the removal of d; without a transaction it is committed right
// away.
func (s *Session) Delete(d *document.Document) error {
	if s.tx == nil {
		err := s.Begin()
		if err != nil {
			return err
		}
		err = s.Delete(d)
		if err != nil {
			s.Rollback()
			return err
		}
		return s.Commit()
	}

	s.tx.deleted = append(s.tx.deleted, d)
	return nil
}

// Commit makes the transaction durable or fails with a
// ConcurrentModificationError when a record changed meanwhile. When Commit
// fails every involved document is back to its durable state and nothing
// was journaled.
func (s *Session) Commit() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	tx := s.tx

	// New documents of the session go with the transaction
	for _, d := range s.documents {
		if d.IsNew() && !tx.staged[d] {
			tx.staged[d] = true
			tx.saved = append(tx.saved, d)
		}
	}
	for _, d := range tx.saved {
		err := prepare(d)
		if err != nil {
			return err
		}
	}

	db := s.db
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.status != StatusOperating {
		return ErrNotOperating
	}

	fail := func(err error) error {
		s.tx = nil
		s.reset(tx)
		return err
	}

	err := s.guard(tx)
	if err != nil {
		return fail(err)
	}

	saved := []*document.Document{}
	for _, d := range tx.saved {
		if !s.isDeleted(d) {
			saved = append(saved, d)
		}
	}

	ids := map[rid.RID]rid.RID{}
	for _, d := range saved {
		if d.IsNew() {
			ids[d.Identity()] = db.allocate(d.Identity().Cluster)
		}
	}

	// Nothing is written while a bag references a document that will not
	// exist, like a new one deleted in this transaction
	for _, d := range saved {
		for _, name := range d.BagNames() {
			bag := d.Bag(name)
			bag.Remap(ids)
			err := bag.Validate()
			if err != nil {
				return fail(fmt.Errorf("bag '%s' of %s: %w", name, d.Identity(), err))
			}
		}
	}

	var failures []error
	for _, d := range saved {
		for _, name := range d.BagNames() {
			err := d.Bag(name).Flush(nil)
			if err != nil {
				failures = append(failures, fmt.Errorf("flush bag '%s' of %s: %w", name, d.Identity(), err))
			}
		}
	}
	if err := errors.Join(failures...); err != nil {
		slog.Error("commit could not flush every bag", "error", err.Error())
		return fail(err)
	}

	entries := []journal.Entry{}
	records := map[rid.RID]*document.Record{}
	for _, d := range saved {
		record := d.Record(d.Version() + 1)
		if to, renamed := ids[record.RID]; renamed {
			record.RID = to
		}
		records[record.RID] = record
		entries = append(entries, journal.Entry{Name: commandSave, Payload: record})
	}

	deleted := []rid.RID{}
	for _, d := range tx.deleted {
		if d.IsNew() {
			continue
		}
		deleted = append(deleted, d.Identity())
		entries = append(entries, journal.Entry{Name: commandDelete, Payload: &deletePayload{RID: d.Identity()}})
	}

	err = db.journal.AppendBatch(entries)
	if err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	s.tx = nil

	for id, record := range records {
		db.records[id] = record
	}
	for _, id := range deleted {
		delete(db.records, id)
	}

	// The transaction is durable, failures from here on only leak trees
	for _, d := range saved {
		for _, name := range d.BagNames() {
			logError("complete bag commit", d.Bag(name).Complete())
		}
		for _, bag := range d.Dropped() {
			logError("drop removed bag", bag.Drop())
		}
		previous := d.Identity()
		id := previous
		if to, renamed := ids[previous]; renamed {
			id = to
			delete(s.documents, previous)
			s.documents[id] = d
		}
		d.Committed(id, d.Version()+1)
	}

	for _, d := range tx.deleted {
		delete(s.documents, d.Identity())
		if d.IsNew() {
			logError("discard deleted document", d.Rollback(nil))
			continue
		}
		for _, bag := range d.Bags() {
			logError("drop bag of deleted document", bag.Drop())
		}
		for _, bag := range d.Dropped() {
			logError("drop removed bag", bag.Drop())
		}
	}

	// Documents left out of the transaction may reference the new ones too
	for _, d := range s.documents {
		if tx.staged[d] {
			continue
		}
		for _, bag := range d.Bags() {
			bag.Remap(ids)
		}
	}

	return nil
}

func (s *Session) isDeleted(d *document.Document) bool {
	for _, deleted := range s.tx.deleted {
		if deleted == d {
			return true
		}
	}
	return false
}

// guard must be called with the database mutex held.
func (s *Session) guard(tx *transaction) error {
	check := func(d *document.Document) error {
		if d.IsNew() {
			return nil
		}
		record, exists := s.db.records[d.Identity()]
		if !exists {
			return &ConcurrentModificationError{RID: d.Identity(), Expected: d.Version(), Deleted: true}
		}
		if record.Version != d.Version() {
			return &ConcurrentModificationError{RID: d.Identity(), Expected: d.Version(), Actual: record.Version}
		}
		return nil
	}
	for _, d := range tx.saved {
		if err := check(d); err != nil {
			return err
		}
	}
	for _, d := range tx.deleted {
		if err := check(d); err != nil {
			return err
		}
	}
	return nil
}

// reset must be called with the database mutex held. Documents go back to
// the committed state, new ones are discarded.
func (s *Session) reset(tx *transaction) {
	documents := append(append([]*document.Document{}, tx.saved...), tx.deleted...)
	done := map[*document.Document]bool{}
	for _, d := range documents {
		if done[d] {
			continue
		}
		done[d] = true

		if d.IsNew() {
			delete(s.documents, d.Identity())
			logError("discard new document", d.Rollback(nil))
			continue
		}
		record, exists := s.db.records[d.Identity()]
		if !exists {
			delete(s.documents, d.Identity())
			logError("discard deleted document", d.Reset(nil))
			continue
		}
		logError("reset document", d.Reset(record))
	}
}

// Rollback undoes every change made through the session since the last
// commit. Documents created meanwhile are discarded.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	s.tx = nil

	var errs []error
	for id, d := range s.documents {
		if d.IsNew() {
			delete(s.documents, id)
			errs = append(errs, d.Rollback(nil))
			continue
		}
		if !d.IsDirty() {
			continue
		}
		record, _ := s.db.record(id)
		errs = append(errs, d.Rollback(record))
	}
	return errors.Join(errs...)
}

func logError(msg string, err error) {
	if err != nil {
		slog.Warn(msg, "error", err.Error())
	}
}
