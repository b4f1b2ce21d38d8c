package icrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/agentportal/internal/util"
)

func cheapKDF() util.Argon2idParams {
	return util.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: util.AESKeySize}
}

func TestAAD(t *testing.T) {
	assert.Equal(t, AADRecord("secure", "tokenData", 1), AADRecord("secure", "tokenData", 1))
	assert.NotEqual(t, AADRecord("secure", "tokenData", 1), AADRecord("secure", "biometricCredentials", 1))
	assert.NotEqual(t, AADRecord("secure", "tokenData", 1), AADRecord("secure", "tokenData", 2))
	assert.NotEqual(t, AADRecord("secure", "tokenData", 1), AADKeyWrap("secure", 1))

	// Length prefixes keep boundaries unambiguous.
	assert.NotEqual(t, AADRecord("ab", "c", 1), AADRecord("a", "bc", 1))
}

func TestDeriveRecordKey(t *testing.T) {
	deviceKey, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)

	k1, err := DeriveRecordKey(deviceKey, "tokenData")
	require.NoError(t, err)
	k2, err := DeriveRecordKey(deviceKey, "tokenData")
	require.NoError(t, err)
	k3, err := DeriveRecordKey(deviceKey, "userData")
	require.NoError(t, err)

	assert.Len(t, k1, util.AESKeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestKeyWrap(t *testing.T) {
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	aad := AADKeyWrap("secure", 1)

	w, err := WrapKey([]byte("device-pass"), key, cheapKDF(), aad)
	require.NoError(t, err)
	assert.Equal(t, keyWrapVersion, w.Ver)
	assert.Len(t, w.Salt, 16)
	assert.NotContains(t, string(w.Ciphertext), string(key))

	got, err := UnwrapKey([]byte("device-pass"), w, aad)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	t.Run("WrongPassphrase", func(t *testing.T) {
		_, err := UnwrapKey([]byte("other"), w, aad)
		require.Error(t, err)
	})

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := UnwrapKey([]byte("device-pass"), w, AADKeyWrap("prefs", 1))
		require.Error(t, err)
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		bad := *w
		bad.Ver = 9
		_, err := UnwrapKey([]byte("device-pass"), &bad, aad)
		require.ErrorContains(t, err, "unsupported wrapped key version")
	})

	t.Run("FreshSaltEachWrap", func(t *testing.T) {
		w2, err := WrapKey([]byte("device-pass"), key, cheapKDF(), aad)
		require.NoError(t, err)
		assert.NotEqual(t, w.Salt, w2.Salt)
	})
}
