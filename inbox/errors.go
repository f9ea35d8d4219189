package inbox

import (
	"errors"
	"net/http"
)

// ValidationError is returned for a body that is not an activity.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "Invalid activity: " + e.Err.Error()
	}
	return "Invalid activity"
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Status returns http.StatusBadRequest.
func (e *ValidationError) Status() int { return http.StatusBadRequest }

// AuthError is returned when a foreign request fails signature verification.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Status returns http.StatusUnauthorized.
func (e *AuthError) Status() int { return http.StatusUnauthorized }

var errMissingField = errors.New("type and actor must be strings")
