// Package api exposes the session core to a local UI shell over HTTP.
package api

import (
	"context"
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/agentportal/crm"
	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/session"
)

// Sessions is the part of session.Manager the handlers read and mutate.
type Sessions interface {
	State() session.State
	TokenTTL() time.Duration
	SetBiometricEnabled(ctx context.Context, enabled bool, username, password string) error
}

// Authenticator runs interactive and biometric logins. login.Orchestrator
// satisfies it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*session.UserProfile, error)
	BiometricLogin(ctx context.Context) (*session.UserProfile, error)
	Logout(ctx context.Context) error
}

// CRM reads agency data. crm.Client satisfies it.
type CRM interface {
	ListAgencies(ctx context.Context) ([]crm.Agency, error)
	Account(ctx context.Context, id string) (*crm.Account, error)
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	sessions    Sessions
	auth        Authenticator
	crm         CRM
	rateLimiter *loginRateLimiter
	log         logr.Logger
	basePath    string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(logger logr.Logger) Option {
	return func(a *API) {
		a.log = logger
	}
}

// WithBasePath sets the prefix the router is mounted under, used for the
// documentation viewers. Defaults to /api/v1.
func WithBasePath(p string) Option {
	return func(a *API) {
		a.basePath = p
	}
}

// New creates a new API instance.
func New(sessions Sessions, auth Authenticator, client CRM, opts ...Option) *API {
	a := &API{
		sessions:    sessions,
		auth:        auth,
		crm:         client,
		rateLimiter: newLoginRateLimiter(),
		basePath:    "/api/v1",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.Resolve(a.log)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    strings.TrimLeft(a.basePath, "/") + "/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    strings.TrimLeft(a.basePath, "/") + "/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Get("/session", a.GetSession)
		r.Post("/session/login", a.Login)
		r.Post("/session/biometric-login", a.BiometricLogin)
		r.Post("/session/logout", a.Logout)

		r.Get("/biometric", a.GetBiometric)
		r.Put("/biometric", a.SetBiometric)

		r.Get("/agencies", a.ListAgencies)
		r.Get("/accounts/{accountID}", a.GetAccount)
	})

	return r
}

// Sweep drops stale rate-limit records. Call periodically.
func (a *API) Sweep() {
	a.rateLimiter.sweep()
}
