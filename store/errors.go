package store

import (
	"errors"
	"fmt"
)

// ErrInvalidQueryRange is returned for date arguments that cannot be parsed or that
// span an unreasonable number of days. Inverted ranges are not an error; they yield
// empty results.
var ErrInvalidQueryRange = errors.New("invalid query range")

// StorageError reports that the persistence layer could not serve or commit an
// operation. Nothing of the failed unit of work has been applied; callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Retryable() bool { return true }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
