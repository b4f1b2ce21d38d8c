package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/agentportal/crm"
	"github.com/jmcleod/agentportal/login"
	"github.com/jmcleod/agentportal/session"
	"github.com/jmcleod/agentportal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// authStatus is 401 for rejected credentials and a gateway status when the
// provider failed or was unreachable.
func authStatus(err *login.AuthProviderError) int {
	switch {
	case err.Rejected():
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (a *API) mapError(w http.ResponseWriter, err error) {
	var (
		authErr    *login.AuthProviderError
		profileErr *login.ProfileFetchError
		validErr   *session.ValidationError
		persistErr *session.PersistenceError
		crmErr     *crm.APIError
	)
	switch {
	case errors.As(err, &authErr):
		writeError(w, authStatus(authErr), authErr.Error())
	case errors.As(err, &validErr):
		writeError(w, http.StatusBadRequest, validErr.Error())
	case errors.Is(err, login.ErrBiometricRejected):
		writeError(w, http.StatusUnauthorized, "Biometric authentication failed.")
	case errors.Is(err, login.ErrNoBiometricCredentials):
		writeError(w, http.StatusConflict, "Stored credentials not found. Please log in manually.")
	case errors.Is(err, login.ErrNoBiometricGate):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, crm.ErrNoAccessToken):
		writeError(w, http.StatusUnauthorized, "No access token available.")
	case errors.As(err, &crmErr):
		status := http.StatusBadGateway
		if crmErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, crmErr.Error())
	case errors.As(err, &profileErr):
		writeError(w, http.StatusBadGateway, profileErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &persistErr), errors.Is(err, storage.ErrNotFound):
		a.log.Error(err, "session persistence failed")
		writeError(w, http.StatusInternalServerError, "session storage failure")
	default:
		a.log.Error(err, "request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
