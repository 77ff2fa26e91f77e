package llm

import (
	"errors"
	"fmt"
)

// ErrNoAPIKey is wrapped by the AuthError returned when no credential is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// AuthError means the provider credential is missing or was rejected.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm auth failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ApiError covers every other provider failure: network errors, non-2xx
// statuses, oversized or malformed bodies and empty replies.
type ApiError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ApiError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm request failed (HTTP %d): %s", e.StatusCode, msg)
	}
	return "llm request failed: " + msg
}

func (e *ApiError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is worth retrying: network errors
// and 5xx responses. 4xx responses are never retried.
func (e *ApiError) Temporary() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode >= 500 && e.StatusCode <= 599
}
