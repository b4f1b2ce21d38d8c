package icrypto

import (
	"fmt"

	"github.com/jmcleod/agentportal/internal/util"
)

const keyWrapVersion = 1

// WrappedKey is a random device key sealed under a passphrase-derived key.
// The salt and cost parameters travel with it so the wrapping key can be
// re-derived, and so a passphrase change is a single record write.
type WrappedKey struct {
	Ver        int                 `json:"ver"`
	KDF        util.Argon2idParams `json:"kdf"`
	Salt       []byte              `json:"salt"`
	Nonce      []byte              `json:"nonce"`
	Ciphertext []byte              `json:"ciphertext"`
}

// WrapKey stretches passphrase with a fresh salt and seals key under it.
func WrapKey(passphrase, key []byte, params util.Argon2idParams, aad []byte) (*WrappedKey, error) {
	salt, err := util.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	kek, err := util.DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(kek)

	nonce, ciphertext, err := util.SealAES(key, kek, aad)
	if err != nil {
		return nil, err
	}
	return &WrappedKey{
		Ver:        keyWrapVersion,
		KDF:        params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// UnwrapKey re-derives the wrapping key from passphrase and opens w.
func UnwrapKey(passphrase []byte, w *WrappedKey, aad []byte) ([]byte, error) {
	if w.Ver != keyWrapVersion {
		return nil, fmt.Errorf("unsupported wrapped key version: %d", w.Ver)
	}
	kek, err := util.DeriveArgon2idKey(passphrase, w.Salt, w.KDF)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(kek)
	return util.OpenAES(w.Nonce, w.Ciphertext, kek, aad)
}
