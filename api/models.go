package api

import (
	"time"

	"github.com/jmcleod/agentportal/session"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse is returned from GET /session and the login routes. The
// access token itself is never exposed.
type SessionResponse struct {
	Authenticated    bool                 `json:"authenticated"`
	BiometricEnabled bool                 `json:"biometric_enabled"`
	Profile          *session.UserProfile `json:"profile,omitempty"`
	InstanceURL      string               `json:"instance_url,omitempty"`
	IssuedAt         *time.Time           `json:"issued_at,omitempty"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
}

// LoginRequest is the JSON body for POST /session/login.
// EnableBiometrics answers the enrollment question up front; it is only
// consulted when biometrics are not yet enabled.
type LoginRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	EnableBiometrics bool   `json:"enable_biometrics,omitempty"`
}

// BiometricLoginRequest is the JSON body for POST /session/biometric-login.
// The UI shell performs the device check and reports the outcome.
type BiometricLoginRequest struct {
	BiometricVerified bool `json:"biometric_verified"`
}

// BiometricStatus is returned from GET /biometric.
type BiometricStatus struct {
	Enabled bool `json:"enabled"`
}

// SetBiometricRequest is the JSON body for PUT /biometric.
type SetBiometricRequest struct {
	Enabled  bool   `json:"enabled"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func sessionResponse(st session.State, ttl time.Duration) SessionResponse {
	resp := SessionResponse{
		Authenticated:    st.Authenticated,
		BiometricEnabled: st.BiometricEnabled,
	}
	if !st.Authenticated {
		return resp
	}
	resp.Profile = st.Profile
	if st.Token != nil {
		resp.InstanceURL = st.Token.InstanceURL
		if issued, err := st.Token.IssuedTime(); err == nil {
			exp := issued.Add(ttl)
			resp.IssuedAt = &issued
			resp.ExpiresAt = &exp
		}
	}
	return resp
}
