package document

import (
	"errors"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/ridbagdb/collectionmanager"
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
	"github.com/fulldump/ridbagdb/sbtree"
)

func newTestEnv(t *testing.T) *ridbag.Env {
	storage, err := sbtree.OpenStorage(t.TempDir())
	AssertNil(err)
	t.Cleanup(func() { storage.Close() })

	manager := collectionmanager.New(storage, collectionmanager.Config{MaxSize: 4, EvictionThreshold: 8})
	return ridbag.NewEnv(manager, nil, ridbag.Config{
		EmbeddedToTreeThreshold: 3,
		TreeToEmbeddedThreshold: ridbag.Disabled,
		Prefetch:                ridbag.DefaultPrefetch,
	})
}

func TestDocument_Fields(t *testing.T) {

	d := New(newTestEnv(t), rid.New(1, -2))
	AssertTrue(d.IsNew())
	AssertTrue(d.IsDirty())

	AssertNil(d.SetField("name", "alice"))
	value, exists := d.Field("name")
	AssertTrue(exists)
	AssertEqual(value, "alice")

	// A bag replaces a plain field with the same name
	d.Bag("name")
	_, exists = d.Field("name")
	AssertFalse(exists)
	AssertTrue(d.HasBag("name"))

	err := d.SetField("name", "bob")
	AssertTrue(errors.Is(err, ErrFieldIsBag))
}

func TestDocument_RecordAndDecode(t *testing.T) {

	env := newTestEnv(t)
	d := New(env, rid.New(1, -2))
	d.SetField("age", float64(33))
	AssertNil(d.Bag("b").AddAll(rid.New(2, 1), rid.New(2, 2)))
	AssertNil(d.Bag("a").Add(rid.New(2, 3)))
	AssertEqual(d.BagNames(), []string{"a", "b"})

	d.Committed(rid.New(1, 0), 1)
	AssertFalse(d.IsNew())
	AssertEqual(d.Identity(), rid.New(1, 0))

	record := d.Record(1)
	AssertEqual(record.RID, rid.New(1, 0))
	AssertEqual(record.Version, int64(1))
	AssertEqual(record.Fields, map[string]interface{}{"age": float64(33)})
	AssertEqual(record.Bags["b"].Embedded, []rid.RID{rid.New(2, 1), rid.New(2, 2)})

	decoded, err := Decode(env, record)
	AssertNil(err)
	AssertEqual(decoded.Identity(), rid.New(1, 0))
	AssertEqual(decoded.Version(), int64(1))
	AssertFalse(decoded.IsDirty())
	size, err := decoded.Bag("b").Size()
	AssertNil(err)
	AssertEqual(size, 2)
}

func TestDocument_Rollback(t *testing.T) {

	env := newTestEnv(t)
	d := New(env, rid.New(1, 0))
	d.SetField("name", "alice")
	d.Bag("links").Add(rid.New(2, 1))
	record := d.Record(1)

	durable, err := Decode(env, record)
	AssertNil(err)

	durable.SetField("name", "bob")
	durable.RemoveField("links")
	durable.Bag("links").Add(rid.New(2, 9))
	durable.Bag("extra").Add(rid.New(2, 5))
	AssertTrue(durable.IsDirty())
	AssertEqual(len(durable.Dropped()), 1)

	AssertNil(durable.Rollback(record))

	name, _ := durable.Field("name")
	AssertEqual(name, "alice")
	AssertFalse(durable.HasBag("extra"))
	AssertEqual(durable.BagNames(), []string{"links"})
	values, err := durable.Bag("links").Values()
	AssertNil(err)
	AssertEqual(values, []rid.Identifiable{rid.New(2, 1)})
	AssertEqual(len(durable.Dropped()), 0)
	AssertFalse(durable.IsDirty())
}

func TestDocument_Reset(t *testing.T) {

	env := newTestEnv(t)
	d := New(env, rid.New(1, 0))
	d.Bag("links").Add(rid.New(2, 1))
	record := d.Record(1)

	durable, err := Decode(env, record)
	AssertNil(err)
	bag := durable.Bag("links")
	for i := 0; i < 5; i++ {
		bag.Add(rid.New(3, int64(i)))
	}
	AssertNil(bag.PrepareSave(1))
	AssertFalse(bag.IsEmbedded())

	AssertNil(durable.Reset(record))
	AssertTrue(durable.Bag("links") == bag)
	AssertTrue(bag.IsEmbedded())
	size, err := bag.Size()
	AssertNil(err)
	AssertEqual(size, 1)
}
