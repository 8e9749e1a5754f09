package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("journal is closed")

type Command struct {
	Name      string         `json:"name"`
	Uuid      string         `json:"uuid"`
	Timestamp int64          `json:"timestamp"`
	Payload   jsontext.Value `json:"payload"`
}

// Entry is a command waiting to be appended.
type Entry struct {
	Name    string
	Payload interface{}
}

// Journal is an append only file of json commands, one per line.
type Journal struct {
	filename string // Just informative...
	file     *os.File
	mutex    *sync.Mutex
}

func Open(filename string) (*Journal, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for write: %w", err)
	}

	return &Journal{
		filename: filename,
		file:     f,
		mutex:    &sync.Mutex{},
	}, nil
}

func (j *Journal) Filename() string {
	return j.filename
}

func (j *Journal) Append(name string, payload interface{}) error {
	return j.AppendBatch([]Entry{{Name: name, Payload: payload}})
}

// AppendBatch writes all entries with a single write call, so a batch reaches
// the file as one unit.
func (j *Journal) AppendBatch(entries []Entry) error {

	buffer := &bytes.Buffer{}
	now := time.Now().UnixNano()
	for _, entry := range entries {
		payload, err := json2.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("json encode payload: %w", err)
		}
		command := &Command{
			Name:      entry.Name,
			Uuid:      uuid.New().String(),
			Timestamp: now,
			Payload:   payload,
		}
		err = json2.MarshalWrite(buffer, command)
		if err != nil {
			return fmt.Errorf("json encode command: %w", err)
		}
		buffer.WriteByte('\n')
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.file == nil {
		return ErrClosed
	}

	_, err := j.file.Write(buffer.Bytes())
	if err != nil {
		return fmt.Errorf("write commands: %w", err)
	}

	return nil
}

func (j *Journal) Close() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *Journal) Drop() error {
	err := j.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	err = os.Remove(j.filename)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

// Replay reads every command of filename in order. A missing file replays nothing.
func Replay(filename string, f func(command *Command) error) error {

	file, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open file for read: %w", err)
	}
	defer file.Close()

	decoder := jsontext.NewDecoder(bufio.NewReader(file))
	for {
		command := &Command{}
		err := json2.UnmarshalDecode(decoder, command)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode json: %w", err)
		}

		err = f(command)
		if err != nil {
			return err
		}
	}
}

// Decode unmarshals the payload of a command.
func (c *Command) Decode(v interface{}) error {
	return json2.Unmarshal(c.Payload, v)
}
