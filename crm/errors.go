package crm

import (
	"encoding/json"
	"errors"
)

// ErrNoAccessToken is returned when there is no authenticated session.
var ErrNoAccessToken = errors.New("crm: no access token available")

// APIError is a non-2xx response from the CRM REST API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// parseAPIError extracts a message from either an OAuth style body or the
// REST API's array of {message, errorCode}.
func parseAPIError(status int, body []byte, fallback string) *APIError {
	e := &APIError{StatusCode: status, Message: fallback}

	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &oauth) == nil && oauth.Description != "" {
		e.ErrorCode = oauth.Error
		e.Message = oauth.Description
		return e
	}

	var rest []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if json.Unmarshal(body, &rest) == nil && len(rest) > 0 && rest[0].Message != "" {
		e.ErrorCode = rest[0].ErrorCode
		e.Message = rest[0].Message
	}
	return e
}

