package database

import (
	"context"
	"errors"
	"testing"

	. "github.com/fulldump/biff"
	"golang.org/x/sync/errgroup"

	"github.com/fulldump/ridbagdb/collectionmanager"
	"github.com/fulldump/ridbagdb/journal"
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
)

func testConfig(dir string) *Config {
	return &Config{
		Dir: dir,
		Bags: ridbag.Config{
			EmbeddedToTreeThreshold: 10,
			TreeToEmbeddedThreshold: ridbag.Disabled,
			Prefetch:                4,
		},
		Cache: collectionmanager.Config{
			MaxSize:           16,
			EvictionThreshold: 20,
		},
	}
}

func openTestDatabase(t *testing.T, dir string) *Database {
	db := NewDatabase(testConfig(dir))
	AssertNil(db.Load())
	t.Cleanup(func() { db.Stop() })
	return db
}

func bagSize(bag *ridbag.RidBag) int {
	size, err := bag.Size()
	AssertNil(err)
	return size
}

func TestDatabase_SaveAndReopen(t *testing.T) {

	dir := t.TempDir()
	db := NewDatabase(testConfig(dir))
	AssertNil(db.Load())
	AssertEqual(db.GetStatus(), StatusOperating)

	s := db.NewSession()
	doc := s.NewDocument(1)
	AssertTrue(doc.IsNew())
	AssertNil(doc.SetField("name", "fulldump"))
	small := doc.Bag("small")
	large := doc.Bag("large")
	for i := 0; i < 3; i++ {
		AssertNil(small.Add(rid.New(2, int64(i))))
	}
	for i := 0; i < 30; i++ {
		AssertNil(large.Add(rid.New(2, int64(i%10))))
	}
	AssertNil(s.Save(doc))

	AssertFalse(doc.IsNew())
	AssertEqual(doc.Identity(), rid.New(1, 0))
	AssertEqual(doc.Version(), int64(1))
	AssertTrue(small.IsEmbedded())
	AssertFalse(large.IsEmbedded())
	AssertEqual(db.Trees(), 1)

	AssertNil(db.Stop())

	reopened := openTestDatabase(t, dir)
	AssertEqual(reopened.Count(), 1)
	AssertEqual(reopened.Trees(), 1)

	loaded, err := reopened.NewSession().Load(rid.New(1, 0))
	AssertNil(err)
	name, _ := loaded.Field("name")
	AssertEqual(name, "fulldump")
	AssertTrue(loaded.Bag("small").IsEmbedded())
	AssertEqual(bagSize(loaded.Bag("small")), 3)
	AssertFalse(loaded.Bag("large").IsEmbedded())
	AssertEqual(bagSize(loaded.Bag("large")), 30)

	// Next positions continue after the stored ones
	other := reopened.NewSession().NewDocument(1)
	AssertNil(reopened.NewSession().Save(other))
	AssertEqual(other.Identity(), rid.New(1, 1))
}

func TestDatabase_LoadNotFound(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	_, err := db.NewSession().Load(rid.New(1, 99))
	AssertTrue(errors.Is(err, ErrDocumentNotFound))
}

func TestDatabase_TransactionState(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())
	s := db.NewSession()

	AssertTrue(errors.Is(s.Commit(), ErrNoTransaction))
	AssertTrue(errors.Is(s.Rollback(), ErrNoTransaction))
	AssertNil(s.Begin())
	AssertTrue(errors.Is(s.Begin(), ErrTransactionActive))
	AssertNil(s.Commit())
}

func TestDatabase_ConcurrentModification(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	setup := db.NewSession()
	doc := setup.NewDocument(1)
	doc.Bag("links").Add(rid.New(5, 1))
	AssertNil(setup.Save(doc))
	id := doc.Identity()

	first := db.NewSession()
	second := db.NewSession()
	a, err := first.Load(id)
	AssertNil(err)
	b, err := second.Load(id)
	AssertNil(err)

	a.Bag("links").Add(rid.New(5, 2))
	// The loser grows past the threshold, its tree must not survive
	for i := 0; i < 20; i++ {
		b.Bag("links").Add(rid.New(5, int64(100+i)))
	}

	AssertNil(first.Save(a))

	err = second.Save(b)
	AssertTrue(errors.Is(err, ErrConcurrentModification))
	conflict := &ConcurrentModificationError{}
	AssertTrue(errors.As(err, &conflict))
	AssertEqual(conflict.RID, id)
	AssertEqual(conflict.Expected, int64(1))
	AssertEqual(conflict.Actual, int64(2))

	// The loser sees the durable content again
	AssertEqual(bagSize(b.Bag("links")), 2)
	AssertTrue(b.Bag("links").IsEmbedded())
	AssertFalse(b.Bag("links").IsDirty())
	AssertEqual(db.Trees(), 0)

	fresh, err := db.NewSession().Load(id)
	AssertNil(err)
	AssertEqual(fresh.Version(), int64(2))
	AssertEqual(bagSize(fresh.Bag("links")), 2)

	// Retrying on top of the new version works
	b.Bag("links").Add(rid.New(5, 3))
	AssertNil(second.Save(b))
	AssertEqual(b.Version(), int64(3))
}

func TestDatabase_RollbackUndoesConversion(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	doc := s.NewDocument(1)
	doc.Bag("links").AddAll(rid.New(2, 1), rid.New(2, 2))
	AssertNil(s.Save(doc))

	AssertNil(s.Begin())
	bag := doc.Bag("links")
	for i := 0; i < 20; i++ {
		bag.Add(rid.New(3, int64(i)))
	}
	AssertNil(s.Save(doc))
	AssertFalse(bag.IsEmbedded())
	AssertEqual(db.Trees(), 1)

	AssertNil(s.Rollback())
	AssertTrue(bag.IsEmbedded())
	AssertEqual(bagSize(bag), 2)
	AssertEqual(db.Trees(), 0)
	AssertFalse(doc.IsDirty())

	version, _ := db.CurrentVersion(doc.Identity())
	AssertEqual(version, int64(1))
}

func TestDatabase_RollbackDiscardsNewDocuments(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	AssertNil(s.Begin())

	a := s.NewDocument(1)
	b := s.NewDocument(2)
	a.Bag("out").Add(b)
	b.Bag("in").Add(a)
	for i := 0; i < 20; i++ {
		a.Bag("out").Add(rid.New(9, int64(i)))
	}
	AssertNil(s.Save(a))
	AssertNil(s.Save(b))

	AssertNil(s.Rollback())
	AssertEqual(db.Count(), 0)
	AssertEqual(db.Trees(), 0)

	_, err := s.Load(a.Identity())
	AssertTrue(errors.Is(err, ErrDocumentNotFound))
}

func TestDatabase_TemporaryReferencesAreRemapped(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	AssertNil(s.Begin())
	a := s.NewDocument(1)
	b := s.NewDocument(2)
	AssertTrue(b.Identity().IsTemporary())

	// One reference by record, one by bare id
	a.Bag("out").Add(b)
	a.Bag("raw").Add(b.Identity())
	for i := 0; i < 20; i++ {
		a.Bag("big").Add(b.Identity())
	}
	AssertNil(s.Save(a))
	AssertNil(s.Commit())

	AssertEqual(b.Identity(), rid.New(2, 0))
	AssertEqual(db.Count(), 2)

	loaded, err := db.NewSession().Load(a.Identity())
	AssertNil(err)
	for _, name := range []string{"out", "raw", "big"} {
		it := loaded.Bag(name).RawIterator()
		for it.Next() {
			AssertEqual(it.Value().Identity(), rid.New(2, 0))
		}
		AssertNil(it.Err())
	}
	AssertEqual(bagSize(loaded.Bag("big")), 20)
}

func TestDatabase_AutoResolve(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	target := s.NewDocument(2)
	target.SetField("name", "target")
	source := s.NewDocument(1)
	source.Bag("links").Add(target.Identity())
	AssertNil(s.Save(source))

	reader := db.NewSession()
	loaded, err := reader.Load(source.Identity())
	AssertNil(err)
	values, err := loaded.Bag("links").Values()
	AssertNil(err)
	AssertEqual(len(values), 1)

	resolved, err := reader.Load(target.Identity())
	AssertNil(err)
	AssertTrue(values[0] == rid.Identifiable(resolved))
}

func TestDatabase_DeleteDropsTrees(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	doc := s.NewDocument(1)
	for i := 0; i < 20; i++ {
		doc.Bag("links").Add(rid.New(2, int64(i)))
	}
	AssertNil(s.Save(doc))
	AssertEqual(db.Trees(), 1)

	AssertNil(s.Delete(doc))
	AssertEqual(db.Trees(), 0)
	AssertEqual(db.Count(), 0)
}

func TestDatabase_RemoveBagField(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	doc := s.NewDocument(1)
	for i := 0; i < 20; i++ {
		doc.Bag("links").Add(rid.New(2, int64(i)))
	}
	AssertNil(s.Save(doc))

	AssertNil(s.Begin())
	doc.RemoveField("links")
	AssertFalse(doc.HasBag("links"))
	AssertNil(s.Rollback())
	AssertTrue(doc.HasBag("links"))
	AssertEqual(bagSize(doc.Bag("links")), 20)

	doc.RemoveField("links")
	AssertNil(s.Save(doc))
	AssertEqual(db.Trees(), 0)
}

func TestRetryOnConflict(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	doc := s.NewDocument(1)
	AssertNil(s.Save(doc))
	id := doc.Identity()

	workers, increments := 4, 5
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < increments; i++ {
				err := RetryOnConflict(ctx, db, 100, func(s *Session) error {
					d, err := s.Load(id)
					if err != nil {
						return err
					}
					err = d.Bag("links").Add(rid.New(3, int64(w*increments+i)))
					if err != nil {
						return err
					}
					return s.Save(d)
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	AssertNil(g.Wait())

	loaded, err := db.NewSession().Load(id)
	AssertNil(err)
	AssertEqual(bagSize(loaded.Bag("links")), workers*increments)
	AssertEqual(loaded.Version(), int64(1+workers*increments))
}

func TestDatabase_CommitRejectsDeletedTargets(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	a := s.NewDocument(1)
	b := s.NewDocument(1)
	for i := 0; i < 20; i++ {
		AssertNil(a.Bag("links").Add(rid.New(2, int64(i))))
		AssertNil(b.Bag("links").Add(rid.New(2, int64(i))))
	}
	AssertNil(s.Begin())
	AssertNil(s.Save(a))
	AssertNil(s.Save(b))
	AssertNil(s.Commit())
	AssertFalse(a.Bag("links").IsEmbedded())
	AssertFalse(b.Bag("links").IsEmbedded())

	extra := rid.New(9, 9)
	AssertNil(s.Begin())
	AssertNil(a.Bag("links").Add(extra))
	target := s.NewDocument(3)
	AssertNil(b.Bag("links").Add(target))
	AssertNil(s.Save(a))
	AssertNil(s.Save(b))
	AssertNil(s.Delete(target))

	err := s.Commit()
	AssertTrue(errors.Is(err, ridbag.ErrInvalidIdentifiable))
	AssertFalse(s.InTransaction())

	t.Run("Nothing is durable", func(t *testing.T) {
		fresh := db.NewSession()
		loaded, err := fresh.Load(a.Identity())
		AssertNil(err)
		AssertEqual(loaded.Version(), int64(1))
		found, err := loaded.Bag("links").Contains(extra)
		AssertNil(err)
		AssertFalse(found)
		AssertEqual(bagSize(loaded.Bag("links")), 20)
		AssertEqual(db.Count(), 2)
	})

	t.Run("Documents are back to the durable state", func(t *testing.T) {
		AssertEqual(a.Version(), int64(1))
		AssertEqual(b.Version(), int64(1))
		AssertFalse(a.IsDirty())
		AssertEqual(bagSize(a.Bag("links")), 20)
		AssertEqual(bagSize(b.Bag("links")), 20)
	})

	t.Run("Retry succeeds", func(t *testing.T) {
		AssertNil(a.Bag("links").Add(extra))
		AssertNil(s.Save(a))
		AssertEqual(a.Version(), int64(2))

		loaded, err := db.NewSession().Load(a.Identity())
		AssertNil(err)
		found, err := loaded.Bag("links").Contains(extra)
		AssertNil(err)
		AssertTrue(found)
	})
}

func TestDatabase_CommitRejectsDeletedTargetsEmbedded(t *testing.T) {

	db := openTestDatabase(t, t.TempDir())

	s := db.NewSession()
	doc := s.NewDocument(1)
	AssertNil(doc.Bag("links").Add(rid.New(2, 1)))
	AssertNil(s.Save(doc))

	AssertNil(s.Begin())
	target := s.NewDocument(3)
	AssertNil(doc.Bag("links").Add(target))
	AssertNil(s.Save(doc))
	AssertNil(s.Delete(target))
	AssertTrue(errors.Is(s.Commit(), ridbag.ErrInvalidIdentifiable))

	AssertEqual(doc.Version(), int64(1))
	AssertEqual(bagSize(doc.Bag("links")), 1)

	// No conflict with the durable version on the next save
	AssertNil(doc.Bag("links").Add(rid.New(2, 2)))
	AssertNil(s.Save(doc))
	AssertEqual(doc.Version(), int64(2))
	current, _ := db.CurrentVersion(doc.Identity())
	AssertEqual(current, int64(2))
}

func TestDatabase_FailedJournalWrite(t *testing.T) {

	dir := t.TempDir()
	db := NewDatabase(testConfig(dir))
	AssertNil(db.Load())

	s := db.NewSession()
	doc := s.NewDocument(1)
	AssertNil(doc.Bag("links").AddAll(rid.New(2, 1), rid.New(2, 2)))
	AssertNil(s.Save(doc))

	AssertNil(s.Begin())
	for i := 0; i < 20; i++ {
		AssertNil(doc.Bag("links").Add(rid.New(3, int64(i))))
	}
	other := s.NewDocument(4)
	AssertNil(other.SetField("name", "other"))
	AssertNil(s.Save(doc))
	AssertFalse(doc.Bag("links").IsEmbedded())

	filename := db.journal.Filename()
	AssertNil(db.journal.Close())

	err := s.Commit()
	AssertTrue(errors.Is(err, journal.ErrClosed))

	AssertEqual(doc.Version(), int64(1))
	AssertTrue(doc.Bag("links").IsEmbedded())
	AssertEqual(bagSize(doc.Bag("links")), 2)
	AssertEqual(db.Trees(), 0)
	AssertEqual(db.Count(), 1)
	_, err = s.Load(other.Identity())
	AssertTrue(errors.Is(err, ErrDocumentNotFound))

	db.journal, err = journal.Open(filename)
	AssertNil(err)

	AssertNil(doc.Bag("links").Add(rid.New(3, 1)))
	AssertNil(s.Save(doc))
	AssertEqual(doc.Version(), int64(2))

	AssertNil(db.Stop())
	reopened := openTestDatabase(t, dir)
	loaded, err := reopened.NewSession().Load(doc.Identity())
	AssertNil(err)
	AssertEqual(loaded.Version(), int64(2))
	AssertEqual(bagSize(loaded.Bag("links")), 3)
}
