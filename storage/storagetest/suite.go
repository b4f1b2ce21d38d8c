// Package storagetest holds the contract tests every storage.Repository
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/agentportal/storage"
)

// RunRepositoryTests runs the common suite against repo. repo must be empty.
func RunRepositoryTests(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "secure", "tokenData", []byte("v1")))
		got, err := repo.Get(ctx, "secure", "tokenData")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "secure", "tokenData", []byte("v2")))
		got, err := repo.Get(ctx, "secure", "tokenData")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "secure", "no-such-key")
		require.Error(t, err)
		assert.True(t, storage.IsNotFound(err), "got %v", err)

		_, err = repo.Get(ctx, "no-such-namespace", "tokenData")
		require.Error(t, err)
		assert.True(t, storage.IsNotFound(err), "got %v", err)
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "prefs", "tokenData", []byte("plain")))
		got, err := repo.Get(ctx, "secure", "tokenData")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, "secure", "salt", []byte("s1")))
		err := repo.Create(ctx, "secure", "salt", []byte("s2"))
		assert.True(t, errors.Is(err, storage.ErrExists), "got %v", err)
		got, err := repo.Get(ctx, "secure", "salt")
		require.NoError(t, err)
		assert.Equal(t, []byte("s1"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "secure", "tokenData"))
		_, err := repo.Get(ctx, "secure", "tokenData")
		assert.True(t, storage.IsNotFound(err), "got %v", err)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := repo.Delete(ctx, "secure", "tokenData")
		assert.True(t, storage.IsNotFound(err), "got %v", err)
	})
}
