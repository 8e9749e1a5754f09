package ridbag

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

const (
	configEmbedded byte = 1 << 0
	configUUID     byte = 1 << 1

	changeDiff     byte = 0
	changeAbsolute byte = 1
)

// MarshalBinary writes the bag including pending tree changes:
//
//	config byte (bit 0 embedded, bit 1 temporary id present)
//	[16 byte temporary id]
//	embedded: int32 count, count x (int16 cluster, int64 position)
//	tree:     int64 file id, int64 page index, int32 page offset, int32 size,
//	          int32 changes, changes x (int16 cluster, int64 position, byte type, int32 value)
func (b *RidBag) MarshalBinary() ([]byte, error) {
	buffer := &bytes.Buffer{}
	w := &binaryWriter{w: buffer}

	config := byte(0)
	if b.delegate.isEmbedded() {
		config |= configEmbedded
	}
	if b.temporaryID != uuid.Nil {
		config |= configUUID
	}
	w.write(config)
	if config&configUUID != 0 {
		w.write(b.temporaryID)
	}

	switch d := b.delegate.(type) {
	case *embedded:
		ids := d.ids()
		w.write(int32(len(ids)))
		for _, id := range ids {
			w.rid(id)
		}
	case *treeBag:
		w.write(d.pointer.FileID)
		w.write(d.pointer.Root.PageIndex)
		w.write(d.pointer.Root.PageOffset)
		w.write(int32(d.cachedSize))
		changes := d.overlay()
		w.write(int32(len(changes)))
		for _, c := range changes {
			w.rid(c.key)
			w.write(changeDiff)
			w.write(int32(c.diff))
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	return buffer.Bytes(), nil
}

// Decode reads a bag written by MarshalBinary.
func Decode(env *Env, data []byte) (*RidBag, error) {
	r := &binaryReader{r: bytes.NewReader(data)}

	b := New(env)

	var config byte
	r.read(&config)
	if config&configUUID != 0 {
		r.read(&b.temporaryID)
	}

	if config&configEmbedded != 0 {
		var count int32
		r.read(&count)
		if r.err == nil && (count < 0 || int(count) > len(data)) {
			return nil, fmt.Errorf("%w: embedded count %d", ErrMalformedStream, count)
		}
		e := newEmbedded(env)
		for i := int32(0); i < count && r.err == nil; i++ {
			e.add(r.rid())
		}
		if r.err != nil {
			return nil, r.err
		}
		b.delegate = e
		return b, nil
	}

	pointer := sbtree.CollectionPointer{}
	var size, changes int32
	r.read(&pointer.FileID)
	r.read(&pointer.Root.PageIndex)
	r.read(&pointer.Root.PageOffset)
	r.read(&size)
	r.read(&changes)
	if r.err != nil {
		return nil, r.err
	}
	if !pointer.IsValid() {
		return nil, fmt.Errorf("%w: %w: %s", ErrMalformedStream, sbtree.ErrInvalidPointer, pointer)
	}

	t := newTreeBag(env, pointer)
	for i := int32(0); i < changes; i++ {
		key := r.rid()
		var kind byte
		var value int32
		r.read(&kind)
		r.read(&value)
		if r.err != nil {
			return nil, r.err
		}
		c := t.change(key)
		switch kind {
		case changeDiff:
			c.diff += int(value)
		case changeAbsolute:
			stored, err := t.stored(key)
			if err != nil {
				return nil, err
			}
			c.diff = int(value) - stored
		default:
			return nil, fmt.Errorf("%w: change type %d", ErrMalformedStream, kind)
		}
		c.value = key
		t.store(c)
	}
	// The stored size is only a hint, it may be stale.
	t.invalidate()

	b.delegate = t
	return b, nil
}

type binaryWriter struct {
	w   io.Writer
	err error
}

func (w *binaryWriter) write(v interface{}) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.w, binary.BigEndian, v)
}

func (w *binaryWriter) rid(id rid.RID) {
	if id.Cluster > math.MaxInt16 {
		if w.err == nil {
			w.err = fmt.Errorf("%w: cluster %d does not fit the binary form", ErrInvalidIdentifiable, id.Cluster)
		}
		return
	}
	w.write(int16(id.Cluster))
	w.write(id.Position)
}

type binaryReader struct {
	r   io.Reader
	err error
}

func (r *binaryReader) read(v interface{}) {
	if r.err != nil {
		return
	}
	err := binary.Read(r.r, binary.BigEndian, v)
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrMalformedStream, err)
	}
}

func (r *binaryReader) rid() rid.RID {
	var cluster int16
	var position int64
	r.read(&cluster)
	r.read(&position)
	return rid.New(int32(cluster), position)
}
