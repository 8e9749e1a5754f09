package database

import (
	"errors"
	"fmt"

	"github.com/fulldump/ridbagdb/rid"
)

var (
	ErrDocumentNotFound       = errors.New("document not found")
	ErrNoTransaction          = errors.New("no active transaction")
	ErrTransactionActive      = errors.New("transaction already active")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotOperating           = errors.New("database is not operating")
)

// ConcurrentModificationError is returned by Commit when a record changed
// since the session read it.
type ConcurrentModificationError struct {
	RID      rid.RID
	Expected int64
	Actual   int64
	Deleted  bool
}

func (e *ConcurrentModificationError) Error() string {
	if e.Deleted {
		return fmt.Sprintf("%s: %s was deleted", ErrConcurrentModification.Error(), e.RID)
	}
	return fmt.Sprintf("%s: %s expected version %d, found %d", ErrConcurrentModification.Error(), e.RID, e.Expected, e.Actual)
}

func (e *ConcurrentModificationError) Unwrap() error {
	return ErrConcurrentModification
}
