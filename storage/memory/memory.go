// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/agentportal/internal/util"
	"github.com/jmcleod/agentportal/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and sessions that must not outlive the process.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string][]byte)}
}

func (r *Repository) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(namespace, key, value)
	return nil
}

func (r *Repository) putLocked(namespace, key string, value []byte) {
	if _, ok := r.data[namespace]; !ok {
		r.data[namespace] = make(map[string][]byte)
	}
	r.data[namespace][key] = util.CopyBytes(value)
}

func (r *Repository) Create(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[namespace][key]; ok {
		return storage.ErrExists
	}
	r.putLocked(namespace, key, value)
	return nil
}

func (r *Repository) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[namespace][key]
	if !ok {
		return nil, storage.NotFound(namespace, key)
	}
	return util.CopyBytes(v), nil
}

func (r *Repository) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[namespace][key]; !ok {
		return storage.NotFound(namespace, key)
	}
	delete(r.data[namespace], key)
	return nil
}
