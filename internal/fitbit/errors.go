package fitbit

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotAuthorized means no usable Fitbit token is available. The user
	// has to complete the /auth flow.
	ErrNotAuthorized = errors.New("fitbit account not authorized")

	// ErrNotConfigured means the Fitbit client credentials are missing.
	ErrNotConfigured = errors.New("fitbit credentials not configured")
)

// APIError is a non-2xx response from the Fitbit Web API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string

	// RetryAfter is set for 429 responses when Fitbit says when to retry.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fitbit API %s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fitbit API %s: %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is makes a 401 match ErrNotAuthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrNotAuthorized && e.StatusCode == http.StatusUnauthorized
}

// RateLimited reports whether Fitbit rejected the call for exceeding the
// hourly request quota.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// OAuthError is a failed authorization code exchange or token refresh.
type OAuthError struct {
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *OAuthError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("fitbit oauth: %s: %s", e.Code, e.Description)
	case e.Code != "":
		return "fitbit oauth: " + e.Code
	case e.Err != nil:
		return "fitbit oauth: " + e.Err.Error()
	default:
		return fmt.Sprintf("fitbit oauth: status %d", e.Status)
	}
}

func (e *OAuthError) Unwrap() error { return e.Err }

// Is makes an invalid_grant match ErrNotAuthorized: the refresh token was
// revoked or already used.
func (e *OAuthError) Is(target error) bool {
	return target == ErrNotAuthorized && e.Code == "invalid_grant"
}
