// Package bbolt provides a BBolt-backed storage repository. Each namespace
// maps to one bucket.
package bbolt

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/agentportal/internal/util"
	"github.com/jmcleod/agentportal/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrap reports bbolt failures as *storage.Error, leaving ErrNotFound and
// ErrExists untouched so callers can match them.
func wrap(op, namespace, key string, err error) error {
	if err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExists) {
		return err
	}
	return &storage.Error{Op: op, Namespace: namespace, Key: key, Err: err}
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	return wrap("put", namespace, key, err)
}

func (s *Store) Create(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) != nil {
			return storage.ErrExists
		}
		return b.Put([]byte(key), value)
	})
	return wrap("create", namespace, key, err)
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return storage.NotFound(namespace, key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return storage.NotFound(namespace, key)
		}
		// data is only valid for the life of the transaction.
		value = util.CopyBytes(data)
		return nil
	})
	if err != nil {
		return nil, wrap("get", namespace, key, err)
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil || b.Get([]byte(key)) == nil {
			return storage.NotFound(namespace, key)
		}
		return b.Delete([]byte(key))
	})
	return wrap("delete", namespace, key, err)
}
