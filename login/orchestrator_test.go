package login_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/agentportal/internal/util"
	"github.com/jmcleod/agentportal/login"
	"github.com/jmcleod/agentportal/prefstore"
	"github.com/jmcleod/agentportal/securestore"
	"github.com/jmcleod/agentportal/session"
	"github.com/jmcleod/agentportal/storage"
	"github.com/jmcleod/agentportal/storage/memory"
)

// stubProvider imitates the token and identity endpoints.
type stubProvider struct {
	*httptest.Server
	tokenStatus   int
	tokenBody     string
	profileStatus int
	lastForm      atomic.Value
	profileAuth   atomic.Value
}

func newStubProvider(t *testing.T) *stubProvider {
	t.Helper()
	p := &stubProvider{tokenStatus: http.StatusOK, profileStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.lastForm.Store(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		if p.tokenBody != "" {
			w.Write([]byte(p.tokenBody))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok123",
			"id":           p.URL + "/id/00D/005",
			"instance_url": p.URL,
			"issued_at":    "1700000000",
			"signature":    "sig",
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("GET /id/00D/005", func(w http.ResponseWriter, r *http.Request) {
		p.profileAuth.Store(r.Header.Get("Authorization"))
		if p.profileStatus != http.StatusOK {
			w.WriteHeader(p.profileStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"005","first_name":"John","last_name":"Doe","email":"john@example.com"}`))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// deviceStores are the two stores behind a manager. Managers built from
// the same deviceStores see each other's persisted session.
type deviceStores struct {
	secure  *securestore.Store
	general *prefstore.Store
}

func newDeviceStores(t *testing.T) *deviceStores {
	t.Helper()
	sec, err := securestore.Open(context.Background(), memory.NewRepository(), "device-pass",
		securestore.WithKDFParams(util.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: util.AESKeySize}))
	require.NoError(t, err)
	t.Cleanup(func() { sec.Close() })
	return &deviceStores{secure: sec, general: prefstore.New(memory.NewRepository())}
}

func (d *deviceStores) manager() *session.Manager {
	now := time.Unix(1700000000, 0).Add(time.Minute)
	return session.New(d.secure, d.general, session.WithClock(func() time.Time { return now }))
}

// assertNoSession checks that no session record reached either store and
// that a manager restored from them is logged out.
func (d *deviceStores) assertNoSession(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{session.KeyTokenData, session.KeySessionCommit} {
		_, err := d.secure.Get(ctx, key)
		assert.True(t, storage.IsNotFound(err), "secure %s: %v", key, err)
	}
	_, err := d.general.Get(ctx, session.KeyUserInfo)
	assert.True(t, storage.IsNotFound(err), "general %s: %v", session.KeyUserInfo, err)

	restored := d.manager()
	require.NoError(t, restored.LoadSession(ctx))
	assert.False(t, restored.State().Authenticated)
}

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	return newDeviceStores(t).manager()
}

type recordingPrompt struct {
	answer bool
	asked  int
}

func (p *recordingPrompt) Confirm(context.Context, string) (bool, error) {
	p.asked++
	return p.answer, nil
}

func newOrchestrator(t *testing.T, p *stubProvider, m *session.Manager, prompt login.Prompter, opts ...login.Option) *login.Orchestrator {
	t.Helper()
	opts = append([]login.Option{login.WithHTTPClient(p.Client())}, opts...)
	o, err := login.New(login.Config{
		TokenURL:     p.URL + "/services/oauth2/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, m, prompt, opts...)
	require.NoError(t, err)
	return o
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	m := newManager(t)
	prompt := &recordingPrompt{answer: true}
	o := newOrchestrator(t, p, m, prompt)

	profile, err := o.Login(ctx, "agent1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "John", profile.FirstName)

	st := m.State()
	assert.True(t, st.Authenticated)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "John", st.Profile.FirstName)
	assert.Equal(t, "tok123", st.Token.AccessToken)

	form := p.lastForm.Load().(url.Values)
	assert.Equal(t, []string{"password"}, form["grant_type"])
	assert.Equal(t, []string{"client-id"}, form["client_id"])
	assert.Equal(t, []string{"client-secret"}, form["client_secret"])
	assert.Equal(t, []string{"agent1"}, form["username"])
	assert.Equal(t, []string{"secret"}, form["password"])
	assert.Equal(t, "Bearer tok123", p.profileAuth.Load())

	assert.Equal(t, 1, prompt.asked)
	assert.True(t, st.BiometricEnabled)
	cred, err := m.BiometricCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, &session.BiometricCredential{Username: "agent1", Password: "secret"}, cred)

	// Already enrolled: no second prompt.
	_, err = o.Login(ctx, "agent1", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, prompt.asked)
}

func TestLoginDeclinesBiometrics(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	m := newManager(t)
	o := newOrchestrator(t, p, m, &recordingPrompt{answer: false})

	_, err := o.Login(ctx, "agent1", "secret")
	require.NoError(t, err)
	assert.True(t, m.State().Authenticated)
	assert.False(t, m.State().BiometricEnabled)
	cred, err := m.BiometricCredentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestLoginProviderRejects(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	p.tokenStatus = http.StatusBadRequest
	p.tokenBody = `{"error":"invalid_grant","error_description":"invalid_grant"}`
	stores := newDeviceStores(t)
	m := stores.manager()
	prompt := &recordingPrompt{}
	o := newOrchestrator(t, p, m, prompt)

	_, err := o.Login(ctx, "agent1", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid_grant", err.Error())

	var aerr *login.AuthProviderError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, http.StatusBadRequest, aerr.StatusCode)
	assert.Equal(t, "invalid_grant", aerr.Code)

	assert.False(t, m.State().Authenticated)
	assert.True(t, aerr.Rejected())
	assert.Zero(t, prompt.asked)
	stores.assertNoSession(t)
}

func TestLoginProviderErrorWithoutDescription(t *testing.T) {
	p := newStubProvider(t)
	p.tokenStatus = http.StatusServiceUnavailable
	p.tokenBody = "upstream down"
	o := newOrchestrator(t, p, newManager(t), &recordingPrompt{})

	_, err := o.Login(context.Background(), "agent1", "secret")
	require.Error(t, err)
	assert.Equal(t, "Login failed", err.Error())
	var aerr *login.AuthProviderError
	require.True(t, errors.As(err, &aerr))
	assert.False(t, aerr.Rejected())
}

func TestLoginProfileFetchFails(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	p.profileStatus = http.StatusForbidden
	stores := newDeviceStores(t)
	m := stores.manager()
	o := newOrchestrator(t, p, m, &recordingPrompt{})

	_, err := o.Login(ctx, "agent1", "secret")
	var perr *login.ProfileFetchError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, perr.StatusCode)
	assert.False(t, m.State().Authenticated)

	stores.assertNoSession(t)
}

func TestLoginPersistsAcrossManagers(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	stores := newDeviceStores(t)
	o := newOrchestrator(t, p, stores.manager(), &recordingPrompt{})

	_, err := o.Login(ctx, "agent1", "secret")
	require.NoError(t, err)

	restored := stores.manager()
	require.NoError(t, restored.LoadSession(ctx))
	assert.True(t, restored.State().Authenticated)
	assert.Equal(t, "tok123", restored.State().Token.AccessToken)
}

func TestLoginProviderUnreachable(t *testing.T) {
	p := newStubProvider(t)
	stores := newDeviceStores(t)
	o := newOrchestrator(t, p, stores.manager(), &recordingPrompt{})
	p.Close()

	_, err := o.Login(context.Background(), "agent1", "secret")
	var aerr *login.AuthProviderError
	require.True(t, errors.As(err, &aerr), "got %v", err)
	assert.Zero(t, aerr.StatusCode)
	assert.False(t, aerr.Rejected())
	require.Error(t, errors.Unwrap(aerr))
	assert.Contains(t, err.Error(), "Login failed: token request")
	stores.assertNoSession(t)
}

func TestLoginMalformedTokenResponse(t *testing.T) {
	p := newStubProvider(t)
	p.tokenBody = `{"token_type":"Bearer"}`
	o := newOrchestrator(t, p, newManager(t), &recordingPrompt{})

	_, err := o.Login(context.Background(), "agent1", "secret")
	require.Error(t, err)
}

func TestBiometricLogin(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)

	t.Run("NoGate", func(t *testing.T) {
		o := newOrchestrator(t, p, newManager(t), &recordingPrompt{})
		_, err := o.BiometricLogin(ctx)
		assert.ErrorIs(t, err, login.ErrNoBiometricGate)
	})

	t.Run("Rejected", func(t *testing.T) {
		o := newOrchestrator(t, p, newManager(t), &recordingPrompt{}, login.WithBiometricGate(login.ContextGate{}))
		_, err := o.BiometricLogin(ctx)
		assert.ErrorIs(t, err, login.ErrBiometricRejected)
	})

	t.Run("NotEnrolled", func(t *testing.T) {
		o := newOrchestrator(t, p, newManager(t), &recordingPrompt{}, login.WithBiometricGate(login.ContextGate{}))
		_, err := o.BiometricLogin(login.WithAnswer(ctx, true))
		assert.ErrorIs(t, err, login.ErrNoBiometricCredentials)
	})

	t.Run("Enrolled", func(t *testing.T) {
		m := newManager(t)
		require.NoError(t, m.SetBiometricEnabled(ctx, true, "agent1", "secret"))
		prompt := &recordingPrompt{}
		o := newOrchestrator(t, p, m, prompt, login.WithBiometricGate(login.BiometricGateFunc(
			func(_ context.Context, reason string) (bool, error) {
				assert.Equal(t, login.BiometricPromptMessage, reason)
				return true, nil
			})))

		profile, err := o.BiometricLogin(ctx)
		require.NoError(t, err)
		assert.Equal(t, "John", profile.FirstName)
		assert.True(t, m.State().Authenticated)
		assert.Zero(t, prompt.asked)
		form := p.lastForm.Load().(url.Values)
		assert.Equal(t, []string{"agent1"}, form["username"])
	})
}

func TestLogoutKeepsBiometrics(t *testing.T) {
	ctx := context.Background()
	p := newStubProvider(t)
	m := newManager(t)
	o := newOrchestrator(t, p, m, &recordingPrompt{answer: true})

	_, err := o.Login(ctx, "agent1", "secret")
	require.NoError(t, err)
	require.NoError(t, o.Logout(ctx))

	st := m.State()
	assert.False(t, st.Authenticated)
	assert.True(t, st.BiometricEnabled)
	cred, err := m.BiometricCredentials(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
}

func TestNewValidatesConfig(t *testing.T) {
	m := newManager(t)
	_, err := login.New(login.Config{ClientID: "c"}, m, nil)
	require.Error(t, err)
	_, err = login.New(login.Config{TokenURL: "https://login.example/token"}, m, nil)
	require.Error(t, err)
	_, err = login.New(login.Config{TokenURL: "https://login.example/token", ClientID: "c"}, nil, nil)
	require.Error(t, err)
}

func TestContextPrompter(t *testing.T) {
	ctx := context.Background()
	yes, err := login.ContextPrompter{}.Confirm(ctx, "?")
	require.NoError(t, err)
	assert.False(t, yes)
	yes, err = login.ContextPrompter{}.Confirm(login.WithAnswer(ctx, true), "?")
	require.NoError(t, err)
	assert.True(t, yes)
}
