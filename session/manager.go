// Package session owns the authenticated state of the portal: the session
// token, the user profile and the biometric opt-in. It persists the token
// and biometric data in the secure store and the profile in the general
// store, and validates token expiry when state is loaded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/storage"
)

// Storage keys.
const (
	KeyTokenData            = "tokenData"
	KeyUserInfo             = "userInfo"
	KeyBiometricCredentials = "biometricCredentials"
	KeyBiometricEnabled     = "isBiometricEnabled"
	KeySessionCommit        = "sessionCommit"
)

// Store is the key/value contract both device stores satisfy. Get returns
// an error wrapping storage.ErrNotFound for absent keys; Delete of an absent
// key succeeds.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// record wraps a persisted session value with the id of the SetSession call
// that wrote it.
type record[T any] struct {
	CommitID string `json:"commit_id"`
	Value    T      `json:"value"`
}

type commitMarker struct {
	CommitID  string    `json:"commit_id"`
	StartedAt time.Time `json:"started_at"`
}

// Manager is the session state manager. Create one with New, call Init at
// startup and Teardown at shutdown.
type Manager struct {
	secure  Store
	general Store
	log     logr.Logger
	now     func() time.Time
	ttl     time.Duration
	newID   func() string

	// opMu serialises operations that touch the stores.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	subs    map[int]chan State
	nextSub int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(m *Manager) {
		m.log = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// New returns a Manager persisting to secure and general.
func New(secure, general Store, opts ...Option) *Manager {
	m := &Manager{
		secure:  secure,
		general: general,
		now:     time.Now,
		ttl:     DefaultTokenTTL,
		newID:   uuid.NewString,
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.Resolve(m.log)
	return m
}

// Init loads persisted state. It is LoadSession under a lifecycle name.
func (m *Manager) Init(ctx context.Context) error {
	return m.LoadSession(ctx)
}

// Teardown forgets in-memory state and closes all subscriptions. Persisted
// state is left alone.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// State returns a snapshot of the in-memory state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Token returns the current token when authenticated.
func (m *Manager) Token() (*SessionToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.Authenticated || m.state.Token == nil {
		return nil, false
	}
	t := *m.state.Token
	return &t, true
}

// TokenTTL returns the lifetime assumed for tokens.
func (m *Manager) TokenTTL() time.Duration {
	return m.ttl
}

// Subscribe returns a channel that receives the state after every change.
// A slow reader only sees the latest state. Call the returned func to
// unsubscribe.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			close(c)
			delete(m.subs, id)
		}
	}
}

func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	snapshot := m.state.clone()
	for _, ch := range m.subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// SetSession replaces the in-memory session and persists the token to the
// secure store, then the profile to the general store. Nil values are not
// written. In-memory state is not rolled back if persistence fails.
func (m *Manager) SetSession(ctx context.Context, authenticated bool, profile *UserProfile, token *SessionToken) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.update(func(s *State) {
		s.Authenticated = authenticated
		s.Profile = profile
		s.Token = token
	})

	if profile == nil && token == nil {
		return nil
	}

	commitID := m.newID()
	both := profile != nil && token != nil
	if both {
		marker := commitMarker{CommitID: commitID, StartedAt: m.now().UTC()}
		if err := m.putJSON(ctx, m.secure, "setSession", KeySessionCommit, marker); err != nil {
			return err
		}
	}
	if token != nil {
		if err := m.putJSON(ctx, m.secure, "setSession", KeyTokenData, record[*SessionToken]{CommitID: commitID, Value: token}); err != nil {
			return err
		}
	}
	if profile != nil {
		if err := m.putJSON(ctx, m.general, "setSession", KeyUserInfo, record[*UserProfile]{CommitID: commitID, Value: profile}); err != nil {
			return err
		}
	}
	if both {
		if err := m.secure.Delete(ctx, KeySessionCommit); err != nil {
			return m.persistErr("setSession", KeySessionCommit, err)
		}
	}
	m.log.V(1).Info("session persisted", "authenticated", authenticated, "commit_id", commitID)
	return nil
}

// ClearSession deletes the persisted token and profile and resets the
// in-memory session. Biometric data is left untouched.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.deleteSessionRecords(ctx, "clearSession")
	m.update(func(s *State) {
		s.Authenticated = false
		s.Profile = nil
		s.Token = nil
	})
	return err
}

func (m *Manager) deleteSessionRecords(ctx context.Context, op string) error {
	var errs []error
	if err := m.secure.Delete(ctx, KeyTokenData); err != nil {
		errs = append(errs, m.persistErr(op, KeyTokenData, err))
	}
	if err := m.general.Delete(ctx, KeyUserInfo); err != nil {
		errs = append(errs, m.persistErr(op, KeyUserInfo, err))
	}
	if err := m.secure.Delete(ctx, KeySessionCommit); err != nil {
		errs = append(errs, m.persistErr(op, KeySessionCommit, err))
	}
	return errors.Join(errs...)
}

// LoadSession restores the session from the stores. A token older than the
// TTL, a torn write or a one-sided record leaves the session
// unauthenticated and deletes what was persisted. The biometric flag is
// always loaded. On any read failure every in-memory field is reset and the
// error returned.
func (m *Manager) LoadSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var (
		tok     record[*SessionToken]
		prof    record[*UserProfile]
		marker  commitMarker
		enabled bool
	)
	hasToken, err := m.getJSON(ctx, m.secure, KeyTokenData, &tok)
	if err != nil {
		return m.resetAfterReadFailure(err)
	}
	hasProfile, err := m.getJSON(ctx, m.general, KeyUserInfo, &prof)
	if err != nil {
		return m.resetAfterReadFailure(err)
	}
	hasMarker, err := m.getJSON(ctx, m.secure, KeySessionCommit, &marker)
	if err != nil {
		return m.resetAfterReadFailure(err)
	}
	if _, err := m.getJSON(ctx, m.secure, KeyBiometricEnabled, &enabled); err != nil {
		return m.resetAfterReadFailure(err)
	}

	var (
		valid   bool
		cleanup error
	)
	switch {
	case hasToken && hasProfile && tok.Value != nil && prof.Value != nil:
		if hasMarker || tok.CommitID != prof.CommitID {
			m.log.Info("discarding persisted session", "reason", ErrTornWrite.Error())
			break
		}
		expiresAt, err := tok.Value.ExpiresAt(m.ttl)
		if err != nil {
			m.log.Info("discarding persisted session", "reason", err.Error())
			break
		}
		if m.now().Before(expiresAt) {
			valid = true
			break
		}
		m.log.Info("persisted session expired", "expires_at", expiresAt)
	case hasToken || hasProfile:
		m.log.Info("discarding persisted session", "reason", "incomplete session records")
	case hasMarker:
		m.log.Info("discarding persisted session", "reason", ErrTornWrite.Error())
	}

	if !valid && (hasToken || hasProfile || hasMarker) {
		cleanup = m.deleteSessionRecords(ctx, "loadSession")
	}

	m.update(func(s *State) {
		if valid {
			s.Authenticated = true
			s.Profile = prof.Value
			s.Token = tok.Value
		} else {
			s.Authenticated = false
			s.Profile = nil
			s.Token = nil
		}
		s.BiometricEnabled = enabled
	})
	return cleanup
}

func (m *Manager) resetAfterReadFailure(err error) error {
	m.log.Error(err, "failed to load session state")
	m.update(func(s *State) {
		*s = State{}
	})
	return err
}

// SetBiometricEnabled records the biometric opt-in. Enabling requires both
// username and password, which are stored as the biometric credential;
// disabling deletes any stored credential. The flag is updated in memory
// and persisted even if the credential write fails.
func (m *Manager) SetBiometricEnabled(ctx context.Context, enabled bool, username, password string) error {
	if enabled {
		var missing []string
		if username == "" {
			missing = append(missing, "username")
		}
		if password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			return &ValidationError{
				Fields:  missing,
				Message: "Username and password are required to enable biometrics.",
			}
		}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	var credErr error
	if enabled {
		credErr = m.putJSON(ctx, m.secure, "setBiometricEnabled", KeyBiometricCredentials, BiometricCredential{Username: username, Password: password})
	} else if err := m.secure.Delete(ctx, KeyBiometricCredentials); err != nil {
		credErr = m.persistErr("setBiometricEnabled", KeyBiometricCredentials, err)
	}

	m.update(func(s *State) {
		s.BiometricEnabled = enabled
	})
	flagErr := m.putJSON(ctx, m.secure, "setBiometricEnabled", KeyBiometricEnabled, enabled)
	if credErr == nil && flagErr == nil {
		m.log.Info("biometric login updated", "enabled", enabled)
	}
	return errors.Join(credErr, flagErr)
}

// BiometricCredentials returns the stored credential, or nil when none is
// stored.
func (m *Manager) BiometricCredentials(ctx context.Context) (*BiometricCredential, error) {
	var cred BiometricCredential
	found, err := m.getJSON(ctx, m.secure, KeyBiometricCredentials, &cred)
	if err != nil {
		m.log.Error(err, "failed to retrieve biometric credentials")
		return nil, err
	}
	if !found {
		m.log.Info("no biometric credentials found")
		return nil, nil
	}
	return &cred, nil
}

// LoadBiometricState reads the biometric flag, defaulting to false.
func (m *Manager) LoadBiometricState(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var enabled bool
	_, err := m.getJSON(ctx, m.secure, KeyBiometricEnabled, &enabled)
	if err != nil {
		m.log.Error(err, "failed to load biometric state")
		enabled = false
	}
	m.update(func(s *State) {
		s.BiometricEnabled = enabled
	})
	return err
}

func (m *Manager) putJSON(ctx context.Context, store Store, op, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return m.persistErr(op, key, err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return m.persistErr(op, key, err)
	}
	return nil
}

// getJSON decodes key into v. It reports false with a nil error when the
// key is absent.
func (m *Manager) getJSON(ctx context.Context, store Store, key string, v any) (bool, error) {
	data, err := store.Get(ctx, key)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

func (m *Manager) persistErr(op, key string, err error) error {
	m.log.Error(err, "session persistence failed", "op", op, "key", key)
	return &PersistenceError{Op: op, Key: key, Err: err}
}
