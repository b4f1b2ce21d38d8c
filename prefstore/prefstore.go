// Package prefstore is the general-purpose device store for values that do
// not need sealing. Values are stored as given.
package prefstore

import (
	"context"

	"github.com/jmcleod/agentportal/storage"
)

// Namespace is the repository namespace used for preferences.
const Namespace = "prefs"

// Store is the general persistence store.
type Store struct {
	repo storage.Repository
}

// New returns a Store over repo.
func New(repo storage.Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.repo.Put(ctx, Namespace, key, value)
}

// Get returns the value stored under key or an error wrapping
// storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.repo.Get(ctx, Namespace, key)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, Namespace, key); err != nil && !storage.IsNotFound(err) {
		return err
	}
	return nil
}
