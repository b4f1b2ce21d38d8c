// Package securestore is the high-sensitivity key/value store. Every value
// is sealed with AES-256-GCM under a per-key subkey of a random device key.
// The device key is wrapped under an Argon2id key derived from the device
// passphrase and kept in a memguard Enclave between operations.
package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/go-logr/logr"

	icrypto "github.com/jmcleod/agentportal/internal/crypto"
	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/internal/util"
	"github.com/jmcleod/agentportal/storage"
)

const (
	// Namespace holds the sealed values.
	Namespace = "secure"
	// MetaNamespace holds the wrapped device key.
	MetaNamespace = "secure.meta"

	deviceKeyName = "device_key"
	recordVersion = 1
)

var (
	// ErrWrongPassphrase is returned when the passphrase does not unwrap
	// the stored device key.
	ErrWrongPassphrase = errors.New("securestore: wrong device passphrase")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("securestore: closed")
)

// Store is the secure credential store.
type Store struct {
	repo storage.Repository
	log  logr.Logger
	kdf  util.Argon2idParams

	mu      sync.RWMutex
	enclave *memguard.Enclave
}

type options struct {
	kdf    util.Argon2idParams
	logger logr.Logger
}

// Option configures Open.
type Option func(*options)

// WithKDFParams overrides the Argon2id cost parameters used when wrapping
// the device key. Tests use cheap parameters; production callers should
// keep the defaults. Existing stores keep the parameters they were
// wrapped with until the passphrase changes.
func WithKDFParams(params util.Argon2idParams) Option {
	return func(o *options) {
		o.kdf = params
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open unwraps the device key with passphrase and returns a Store over repo.
// The first Open on an empty repository generates and wraps a fresh device
// key.
func Open(ctx context.Context, repo storage.Repository, passphrase string, opts ...Option) (*Store, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("securestore: device passphrase must not be empty")
	}
	o := options{kdf: util.DefaultArgon2idParams()}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.Resolve(o.logger)

	pass := util.NormalizePassphrase(passphrase)
	defer util.WipeBytes(pass)

	key, err := loadDeviceKey(ctx, repo, pass)
	if storage.IsNotFound(err) {
		key, err = createDeviceKey(ctx, repo, pass, o.kdf)
		if errors.Is(err, storage.ErrExists) {
			// Lost a race with another opener; use theirs.
			key, err = loadDeviceKey(ctx, repo, pass)
		}
	}
	if err != nil {
		return nil, err
	}

	// NewEnclave wipes key.
	s := &Store{repo: repo, log: log, kdf: o.kdf, enclave: memguard.NewEnclave(key)}
	log.V(1).Info("secure store opened")
	return s, nil
}

func loadDeviceKey(ctx context.Context, repo storage.Repository, pass []byte) ([]byte, error) {
	data, err := repo.Get(ctx, MetaNamespace, deviceKeyName)
	if err != nil {
		return nil, err
	}
	var wrapped icrypto.WrappedKey
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, &storage.Error{Op: "open", Namespace: MetaNamespace, Key: deviceKeyName, Err: err}
	}
	key, err := icrypto.UnwrapKey(pass, &wrapped, icrypto.AADKeyWrap(Namespace, recordVersion))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return key, nil
}

func createDeviceKey(ctx context.Context, repo storage.Repository, pass []byte, params util.Argon2idParams) ([]byte, error) {
	key, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return nil, err
	}
	data, err := wrapDeviceKey(pass, key, params)
	if err != nil {
		util.WipeBytes(key)
		return nil, err
	}
	if err := repo.Create(ctx, MetaNamespace, deviceKeyName, data); err != nil {
		util.WipeBytes(key)
		return nil, err
	}
	return key, nil
}

func wrapDeviceKey(pass, key []byte, params util.Argon2idParams) ([]byte, error) {
	wrapped, err := icrypto.WrapKey(pass, key, params, icrypto.AADKeyWrap(Namespace, recordVersion))
	if err != nil {
		return nil, fmt.Errorf("securestore: wrapping device key: %w", err)
	}
	return json.Marshal(wrapped)
}

// ChangePassphrase rewraps the device key under newPassphrase. Sealed values
// are untouched, so the change is a single record write.
func (s *Store) ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	if newPassphrase == "" {
		return fmt.Errorf("securestore: device passphrase must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enclave == nil {
		return ErrClosed
	}
	oldPass := util.NormalizePassphrase(oldPassphrase)
	defer util.WipeBytes(oldPass)
	key, err := loadDeviceKey(ctx, s.repo, oldPass)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	newPass := util.NormalizePassphrase(newPassphrase)
	defer util.WipeBytes(newPass)
	data, err := wrapDeviceKey(newPass, key, s.kdf)
	if err != nil {
		return err
	}
	if err := s.repo.Put(ctx, MetaNamespace, deviceKeyName, data); err != nil {
		return err
	}
	s.log.Info("device passphrase changed")
	return nil
}

// Close drops the enclave. The store is unusable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	s.enclave = nil
	s.mu.Unlock()
	return nil
}

// withSubkey opens the enclave, derives the subkey for name and passes it
// to fn. Key material is wiped before returning.
func (s *Store) withSubkey(name string, fn func(subkey []byte) error) error {
	s.mu.RLock()
	enclave := s.enclave
	s.mu.RUnlock()
	if enclave == nil {
		return ErrClosed
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("securestore: opening enclave: %w", err)
	}
	defer buf.Destroy()

	subkey, err := icrypto.DeriveRecordKey(buf.Bytes(), name)
	if err != nil {
		return err
	}
	defer util.WipeBytes(subkey)
	return fn(subkey)
}

// Put seals value and stores it under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	var data []byte
	err := s.withSubkey(key, func(subkey []byte) error {
		env, err := storage.SealRecord(subkey, value, icrypto.AADRecord(Namespace, key, recordVersion))
		if err != nil {
			return &storage.Error{Op: "seal", Namespace: Namespace, Key: key, Err: err}
		}
		data, err = env.Marshal()
		return err
	})
	if err != nil {
		return err
	}
	return s.repo.Put(ctx, Namespace, key, data)
}

// Get returns the unsealed value stored under key or an error wrapping
// storage.ErrNotFound. A value that fails to unseal is reported as a
// *storage.Error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.repo.Get(ctx, Namespace, key)
	if err != nil {
		return nil, err
	}
	env, err := storage.UnmarshalEnvelope(data)
	if err != nil {
		return nil, &storage.Error{Op: "open", Namespace: Namespace, Key: key, Err: err}
	}
	var plain []byte
	err = s.withSubkey(key, func(subkey []byte) error {
		p, err := storage.OpenRecord(subkey, env, icrypto.AADRecord(Namespace, key, recordVersion))
		if err != nil {
			return &storage.Error{Op: "open", Namespace: Namespace, Key: key, Err: err}
		}
		plain = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, Namespace, key); err != nil && !storage.IsNotFound(err) {
		return err
	}
	return nil
}
