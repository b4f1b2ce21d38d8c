package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/agentportal/login"
)

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *API) writeSession(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, sessionResponse(a.sessions.State(), a.sessions.TokenTTL()))
}

// GetSession reports the current in-memory session.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	a.writeSession(w)
}

// Login runs the password-grant flow.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required.")
		return
	}

	limitKey := strings.ToLower(strings.TrimSpace(req.Username))
	if blocked, retryAfter := a.rateLimiter.check(limitKey); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	ctx := login.WithAnswer(r.Context(), req.EnableBiometrics)
	if _, err := a.auth.Login(ctx, req.Username, req.Password); err != nil {
		var authErr *login.AuthProviderError
		if errors.As(err, &authErr) && authErr.Rejected() {
			a.rateLimiter.recordFailure(limitKey)
		}
		a.mapError(w, err)
		return
	}
	a.rateLimiter.recordSuccess(limitKey)
	a.writeSession(w)
}

// BiometricLogin logs in with the enrolled credentials once the UI shell
// has verified the device owner.
func (a *API) BiometricLogin(w http.ResponseWriter, r *http.Request) {
	var req BiometricLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := login.WithAnswer(r.Context(), req.BiometricVerified)
	if _, err := a.auth.BiometricLogin(ctx); err != nil {
		a.mapError(w, err)
		return
	}
	a.writeSession(w)
}

// Logout ends the session. Biometric enrollment is kept.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Logout(r.Context()); err != nil {
		a.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBiometric reports whether biometric login is enabled.
func (a *API) GetBiometric(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BiometricStatus{Enabled: a.sessions.State().BiometricEnabled})
}

// SetBiometric enrolls or removes the biometric credential.
func (a *API) SetBiometric(w http.ResponseWriter, r *http.Request) {
	var req SetBiometricRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.sessions.SetBiometricEnabled(r.Context(), req.Enabled, req.Username, req.Password); err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BiometricStatus{Enabled: a.sessions.State().BiometricEnabled})
}

// ListAgencies returns the agencies visible to the signed-in agent.
func (a *API) ListAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := a.crm.ListAgencies(r.Context())
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agencies)
}

// GetAccount returns one account record.
func (a *API) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := a.crm.Account(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
