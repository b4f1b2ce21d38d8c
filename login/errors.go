package login

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBiometricCredentials is returned by BiometricLogin when nothing
	// has been enrolled.
	ErrNoBiometricCredentials = errors.New("login: no stored biometric credentials")
	// ErrBiometricRejected is returned when the biometric gate does not
	// confirm the device owner.
	ErrBiometricRejected = errors.New("login: biometric authentication failed")
	// ErrNoBiometricGate is returned by BiometricLogin when the orchestrator
	// was built without a gate.
	ErrNoBiometricGate = errors.New("login: no biometric gate configured")
)

const defaultLoginFailure = "Login failed"

// AuthProviderError is returned when the token endpoint rejects the
// password grant or cannot be reached. Its message is the provider's
// error_description. Err is set and StatusCode is zero when no response
// arrived.
type AuthProviderError struct {
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *AuthProviderError) Error() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Err != nil:
		return defaultLoginFailure + ": " + e.Err.Error()
	}
	return defaultLoginFailure
}

func (e *AuthProviderError) Unwrap() error { return e.Err }

// Rejected reports whether the provider refused the credentials, as opposed
// to failing or being unreachable.
func (e *AuthProviderError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ProfileFetchError is returned when the identity URL request fails after
// a token was issued.
type ProfileFetchError struct {
	StatusCode int
	Err        error
}

func (e *ProfileFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Failed to fetch user information: %v", e.Err)
	}
	return "Failed to fetch user information"
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }
