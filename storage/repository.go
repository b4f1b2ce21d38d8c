// Package storage provides the device storage abstraction shared by the
// secure credential store and the general persistence store.
package storage

import "context"

// Repository is a namespaced key/value store. Values are opaque bytes; the
// stores layered on top decide whether they are sealed or plain JSON.
type Repository interface {
	// Put creates or replaces the value stored under namespace/key.
	Put(ctx context.Context, namespace, key string, value []byte) error
	// Create stores value only if namespace/key does not exist yet and
	// returns ErrExists otherwise.
	Create(ctx context.Context, namespace, key string, value []byte) error
	// Get returns the value or an error wrapping ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Delete removes namespace/key and returns an error wrapping
	// ErrNotFound if it did not exist.
	Delete(ctx context.Context, namespace, key string) error
}
