package journal

import (
	"os"
	"path"
	"testing"

	. "github.com/fulldump/biff"
)

func TestAppendAndReplay(t *testing.T) {

	filename := path.Join(t.TempDir(), "journal")

	j, err := Open(filename)
	AssertNil(err)

	AssertNil(j.Append("put", map[string]interface{}{"key": "a", "count": 1}))
	AssertNil(j.AppendBatch([]Entry{
		{Name: "put", Payload: map[string]interface{}{"key": "b", "count": 2}},
		{Name: "remove", Payload: map[string]interface{}{"key": "a"}},
	}))
	AssertNil(j.Close())

	names := []string{}
	keys := []string{}
	err = Replay(filename, func(command *Command) error {
		names = append(names, command.Name)
		params := struct {
			Key string `json:"key"`
		}{}
		AssertNil(command.Decode(&params))
		AssertNotEqual(command.Uuid, "")
		keys = append(keys, params.Key)
		return nil
	})
	AssertNil(err)
	AssertEqual(names, []string{"put", "put", "remove"})
	AssertEqual(keys, []string{"a", "b", "a"})
}

func TestReplayMissingFile(t *testing.T) {

	called := false
	err := Replay(path.Join(t.TempDir(), "nope"), func(command *Command) error {
		called = true
		return nil
	})
	AssertNil(err)
	AssertFalse(called)
}

func TestAppendAfterClose(t *testing.T) {

	j, err := Open(path.Join(t.TempDir(), "journal"))
	AssertNil(err)
	AssertNil(j.Close())

	AssertEqual(j.Append("put", nil), ErrClosed)
}

func TestDrop(t *testing.T) {

	filename := path.Join(t.TempDir(), "journal")
	j, err := Open(filename)
	AssertNil(err)
	AssertNil(j.Drop())

	_, err = os.Stat(filename)
	AssertTrue(os.IsNotExist(err))
}
