package ridbag

import (
	"errors"
	"testing"

	. "github.com/fulldump/biff"
	"github.com/google/uuid"

	"github.com/fulldump/ridbagdb/rid"
)

func TestCodec_Embedded(t *testing.T) {

	env, _, _ := newTestEnv(t, thresholds(Disabled, Disabled))

	bag := New(env)
	bag.AddAll(rid.New(1, 1), rid.New(1, 1), rid.New(2, -3))
	id := uuid.New()
	bag.SetTemporaryID(id)

	data, err := bag.MarshalBinary()
	AssertNil(err)
	AssertEqual(data[0], configEmbedded|configUUID)
	AssertEqual(len(data), 1+16+4+3*10)

	decoded, err := Decode(env, data)
	AssertNil(err)
	AssertTrue(decoded.IsEmbedded())
	AssertEqual(decoded.Value(), bag.Value())
	temporaryID, ok := decoded.TemporaryID()
	AssertTrue(ok)
	AssertEqual(temporaryID, id)
}

func TestCodec_TreeWithPendingChanges(t *testing.T) {

	env, _, _ := newTestEnv(t, thresholds(0, Disabled))

	bag := New(env)
	bag.AddAll(rid.New(1, 1), rid.New(1, 2))
	AssertNil(bag.PrepareSave(testCluster))
	AssertNil(bag.Commit(nil))

	bag.Add(rid.New(1, 3))
	bag.Remove(rid.New(1, 1))

	data, err := bag.MarshalBinary()
	AssertNil(err)
	AssertEqual(data[0], byte(0))

	decoded, err := Decode(env, data)
	AssertNil(err)
	AssertFalse(decoded.IsEmbedded())
	AssertEqual(multiset(decoded), multiset(bag))
	AssertEqual(size(decoded), 2)
}

func TestCodec_Malformed(t *testing.T) {

	env, _, _ := newTestEnv(t, DefaultConfig())

	_, err := Decode(env, []byte{configEmbedded, 0, 0})
	AssertTrue(errors.Is(err, ErrMalformedStream))

	_, err = Decode(env, []byte{})
	AssertTrue(errors.Is(err, ErrMalformedStream))
}
