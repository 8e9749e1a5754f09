package database

import (
	"context"
	"errors"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// RetryOnConflict runs f in a new transaction and commits it, starting over
// with a fresh session while the commit loses against a concurrent one.
func RetryOnConflict(ctx context.Context, db *Database, attempts int, f func(s *Session) error) error {

	b := retry.WithCappedDuration(200*time.Millisecond, retry.NewFibonacci(5*time.Millisecond))

	return retry.Do(ctx, retry.WithMaxRetries(uint64(attempts), b), func(ctx context.Context) error {
		s := db.NewSession()

		err := s.Begin()
		if err != nil {
			return err
		}

		err = f(s)
		if err != nil {
			s.Rollback()
			if errors.Is(err, ErrConcurrentModification) {
				return retry.RetryableError(err)
			}
			return err
		}

		err = s.Commit()
		if errors.Is(err, ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		return err
	})
}
