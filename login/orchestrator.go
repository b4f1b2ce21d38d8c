// Package login exchanges user credentials for a session with the CRM's
// identity provider and hands the result to the session manager.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/session"
)

const maxResponseBytes = 1 << 20

// SessionManager is the part of session.Manager the orchestrator drives.
type SessionManager interface {
	State() session.State
	SetSession(ctx context.Context, authenticated bool, profile *session.UserProfile, token *session.SessionToken) error
	ClearSession(ctx context.Context) error
	SetBiometricEnabled(ctx context.Context, enabled bool, username, password string) error
	BiometricCredentials(ctx context.Context) (*session.BiometricCredential, error)
}

// Config holds the static OAuth client configuration.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Orchestrator runs the password-grant login flow.
type Orchestrator struct {
	cfg      Config
	sessions SessionManager
	prompt   Prompter
	gate     BiometricGate
	client   *http.Client
	log      logr.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient sets the client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		o.client = c
	}
}

// WithBiometricGate enables BiometricLogin.
func WithBiometricGate(g BiometricGate) Option {
	return func(o *Orchestrator) {
		o.gate = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(o *Orchestrator) {
		o.log = logger
	}
}

// New returns an Orchestrator. prompt is asked whether to enroll biometrics
// after a successful login while biometrics are off.
func New(cfg Config, sessions SessionManager, prompt Prompter, opts ...Option) (*Orchestrator, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("login: token URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("login: client ID is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("login: session manager is required")
	}
	if prompt == nil {
		prompt = ContextPrompter{}
	}
	o := &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		prompt:   prompt,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logging.Resolve(o.log)
	return o, nil
}

// Login exchanges username and password for a token, fetches the user
// profile, stores the session and offers biometric enrollment. Inputs are
// not validated here; callers reject empty fields.
func (o *Orchestrator) Login(ctx context.Context, username, password string) (*session.UserProfile, error) {
	log := o.log.WithValues("attempt_id", uuid.NewString())
	log.V(1).Info("login started", "username", username)

	token, err := o.requestToken(ctx, username, password)
	if err != nil {
		log.Info("token request failed", "error", err.Error())
		return nil, err
	}

	profile, err := o.fetchProfile(ctx, token)
	if err != nil {
		log.Info("profile request failed", "error", err.Error())
		return nil, err
	}

	if err := o.sessions.SetSession(ctx, true, profile, token); err != nil {
		return nil, err
	}
	log.Info("login succeeded", "user_id", profile.UserID)

	if !o.sessions.State().BiometricEnabled {
		yes, err := o.prompt.Confirm(ctx, BiometricOptInMessage)
		if err != nil {
			return nil, fmt.Errorf("biometric enrollment prompt: %w", err)
		}
		if yes {
			err = o.sessions.SetBiometricEnabled(ctx, true, username, password)
		} else {
			err = o.sessions.SetBiometricEnabled(ctx, false, "", "")
		}
		if err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// BiometricLogin asks the gate to verify the device owner and logs in with
// the enrolled credentials.
func (o *Orchestrator) BiometricLogin(ctx context.Context) (*session.UserProfile, error) {
	if o.gate == nil {
		return nil, ErrNoBiometricGate
	}
	ok, err := o.gate.Authenticate(ctx, BiometricPromptMessage)
	if err != nil {
		return nil, fmt.Errorf("biometric authentication: %w", err)
	}
	if !ok {
		return nil, ErrBiometricRejected
	}
	cred, err := o.sessions.BiometricCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNoBiometricCredentials
	}
	return o.Login(ctx, cred.Username, cred.Password)
}

// Logout drops the session but keeps any biometric enrollment.
func (o *Orchestrator) Logout(ctx context.Context) error {
	if err := o.sessions.SetSession(ctx, false, nil, nil); err != nil {
		return err
	}
	if err := o.sessions.ClearSession(ctx); err != nil {
		return err
	}
	o.log.Info("logged out")
	return nil
}

type providerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (o *Orchestrator) requestToken(ctx context.Context, username, password string) (*session.SessionToken, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", o.cfg.ClientID)
	form.Set("client_secret", o.cfg.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &AuthProviderError{Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var pe providerError
		_ = json.NewDecoder(body).Decode(&pe)
		return nil, &AuthProviderError{StatusCode: resp.StatusCode, Code: pe.Error, Description: pe.Description}
	}

	var token session.SessionToken
	if err := json.NewDecoder(body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" || token.IdentityURL == "" {
		return nil, errors.New("token response is missing access_token or id")
	}
	return &token, nil
}

func (o *Orchestrator) fetchProfile(ctx context.Context, token *session.SessionToken) (*session.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, token.IdentityURL, nil)
	if err != nil {
		return nil, &ProfileFetchError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProfileFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProfileFetchError{StatusCode: resp.StatusCode}
	}

	var profile session.UserProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&profile); err != nil {
		return nil, &ProfileFetchError{StatusCode: resp.StatusCode, Err: err}
	}
	return &profile, nil
}
