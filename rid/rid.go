package rid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RID identifies a record by cluster and position inside the cluster.
// Positions below -1 are temporary: the record was created but not committed yet.
type RID struct {
	Cluster  int32 `json:"cluster"`
	Position int64 `json:"position"`
}

var Empty = RID{Cluster: -1, Position: -1}

var ErrMalformed = errors.New("malformed rid")

// Identifiable is anything that can be referenced from a bag: a bare RID
// (unresolved) or a loaded record.
type Identifiable interface {
	Identity() RID
}

// Loader resolves an identifier to a loaded record.
type Loader interface {
	Load(id RID) (Identifiable, error)
}

type LoaderFunc func(id RID) (Identifiable, error)

func (f LoaderFunc) Load(id RID) (Identifiable, error) {
	return f(id)
}

func New(cluster int32, position int64) RID {
	return RID{Cluster: cluster, Position: position}
}

func (r RID) Identity() RID {
	return r
}

func (r RID) IsValid() bool {
	return r.Cluster >= 0
}

func (r RID) IsPersistent() bool {
	return r.Cluster >= 0 && r.Position >= 0
}

func (r RID) IsTemporary() bool {
	return r.Position < -1
}

func (r RID) String() string {
	return "#" + strconv.FormatInt(int64(r.Cluster), 10) + ":" + strconv.FormatInt(r.Position, 10)
}

// Compare orders by cluster first and position second.
func (r RID) Compare(o RID) int {
	switch {
	case r.Cluster < o.Cluster:
		return -1
	case r.Cluster > o.Cluster:
		return 1
	case r.Position < o.Position:
		return -1
	case r.Position > o.Position:
		return 1
	}
	return 0
}

func (r RID) Less(o RID) bool {
	return r.Compare(o) < 0
}

// Parse accepts "#12:34" and "12:34".
func Parse(s string) (RID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Empty, fmt.Errorf("%w: '%s'", ErrMalformed, s)
	}
	cluster, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Empty, fmt.Errorf("%w: cluster: %s", ErrMalformed, err.Error())
	}
	position, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Empty, fmt.Errorf("%w: position: %s", ErrMalformed, err.Error())
	}
	return RID{Cluster: int32(cluster), Position: position}, nil
}

func (r RID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
