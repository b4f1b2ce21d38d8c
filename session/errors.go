package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTornWrite marks persisted session records that were not written by a
// single completed SetSession. It is logged, never returned.
var ErrTornWrite = errors.New("session: torn write detected")

// PersistenceError reports that a store read or write failed. In-memory
// state may already differ from what is persisted when this is returned.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports missing required input.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "session: missing required fields: " + strings.Join(e.Fields, ", ")
}
