package shared

import (
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrAmbiguousPlaylist  = fmt.Errorf("playlist title is ambiguous")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrBusy               = fmt.Errorf("operation already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthError is returned when a provider rejects the access token (HTTP 401).
type AuthError struct {
	Provider string
	Op       string
	Body     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: unauthorized: %s", e.Provider, e.Op, strings.TrimSpace(e.Body))
}

func (e *AuthError) Is(target error) bool { return target == ErrTokenExpired }

// RequestError is returned for any other non-2xx provider response.
type RequestError struct {
	Provider string
	Op       string
	Status   int
	Body     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, strings.TrimSpace(e.Body))
}

func (e *RequestError) Is(target error) bool { return target == ErrAPIRequest }

// NetworkError wraps a transport failure where no response was received.
type NetworkError struct {
	Provider string
	Op       string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrServiceUnavailable }

// ValidationError reports a malformed record. Callers log it and keep going.
type ValidationError struct {
	ID     string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid playlist %q: missing %s", e.ID, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Classify maps a non-2xx status to [AuthError] or [RequestError].
func Classify(provider, op string, status int, body string) error {
	if status == http.StatusUnauthorized {
		return &AuthError{Provider: provider, Op: op, Body: body}
	}
	return &RequestError{Provider: provider, Op: op, Status: status, Body: body}
}
