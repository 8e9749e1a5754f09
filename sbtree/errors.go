package sbtree

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPointer = errors.New("invalid collection pointer")
	ErrClosed         = errors.New("tree storage is closed")
	ErrDeleted        = errors.New("tree has been deleted")
	ErrNegativeCount  = errors.New("negative count")
)

// StorageError is the fatal error returned by every failed tree I/O operation.
type StorageError struct {
	Op      string
	Pointer CollectionPointer
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("sbtree %s %s: %s", e.Op, e.Pointer.String(), e.Err.Error())
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, pointer CollectionPointer, err error) error {
	return &StorageError{Op: op, Pointer: pointer, Err: err}
}

// IsStorageError reports whether err comes from the tree storage.
func IsStorageError(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}
