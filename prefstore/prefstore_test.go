package prefstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/agentportal/storage"
	"github.com/jmcleod/agentportal/storage/memory"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	s := New(repo)

	require.NoError(t, s.Put(ctx, "userInfo", []byte(`{"first_name":"John"}`)))
	got, err := s.Get(ctx, "userInfo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"first_name":"John"}`, string(got))

	raw, err := repo.Get(ctx, Namespace, "userInfo")
	require.NoError(t, err)
	assert.Equal(t, got, raw, "preferences are stored unsealed")

	require.NoError(t, s.Delete(ctx, "userInfo"))
	_, err = s.Get(ctx, "userInfo")
	assert.True(t, storage.IsNotFound(err))
	require.NoError(t, s.Delete(ctx, "userInfo"))
}
