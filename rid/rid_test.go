package rid

import (
	"encoding/json"
	"errors"
	"testing"

	. "github.com/fulldump/biff"
)

func TestParse(t *testing.T) {

	r, err := Parse("#12:34")
	AssertNil(err)
	AssertEqual(r, RID{Cluster: 12, Position: 34})

	r, err = Parse("3:-2")
	AssertNil(err)
	AssertEqual(r, RID{Cluster: 3, Position: -2})
	AssertTrue(r.IsTemporary())
	AssertFalse(r.IsPersistent())

	_, err = Parse("#12")
	AssertTrue(errors.Is(err, ErrMalformed))

	_, err = Parse("#a:1")
	AssertTrue(errors.Is(err, ErrMalformed))
}

func TestCompare(t *testing.T) {
	AssertTrue(New(1, 5).Less(New(2, 0)))
	AssertTrue(New(1, 5).Less(New(1, 6)))
	AssertEqual(New(1, 5).Compare(New(1, 5)), 0)
	AssertEqual(New(3, 0).Compare(New(1, 9)), 1)
}

func TestJSON(t *testing.T) {

	data, err := json.Marshal([]RID{New(1, 2), New(3, 4)})
	AssertNil(err)
	AssertEqual(string(data), `["#1:2","#3:4"]`)

	ids := []RID{}
	AssertNil(json.Unmarshal(data, &ids))
	AssertEqual(ids, []RID{New(1, 2), New(3, 4)})
}

func TestEmpty(t *testing.T) {
	AssertFalse(Empty.IsValid())
	AssertEqual(Empty.String(), "#-1:-1")
}
