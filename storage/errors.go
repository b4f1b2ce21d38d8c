package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Create when the key is already present.
	ErrExists = errors.New("already exists")
)

// Error reports a failure of the storage backend itself, as opposed to a
// missing key.
type Error struct {
	Op        string
	Namespace string
	Key       string
	Err       error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Namespace, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFound builds the error backends return for a missing key.
func NotFound(namespace, key string) error {
	return fmt.Errorf("%s/%s: %w", namespace, key, ErrNotFound)
}
