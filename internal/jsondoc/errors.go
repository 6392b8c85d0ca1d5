package jsondoc

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError with errors.Is.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidRecord is returned when a record is rejected before any lock
	// is taken: failed struct validation or a codec that cannot encode it.
	ErrInvalidRecord = errors.New("invalid record")

	errLockNotAcquired = errors.New("lock not acquired")
	errRejected        = errors.New("rejected by caller")
	errNotObject       = errors.New("record must encode to a JSON object")
)

// StorageError reports an I/O, lock, encode or decode failure on the backing
// document. The store never retries; the caller decides what to do.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("jsondoc: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) true for any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
