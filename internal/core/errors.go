package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Signal errors
	ErrInvalidTime   = &Error{Code: "INVALID_TIME", Message: "time must be HH:MM in 24-hour format"}
	ErrInvalidMarket = &Error{Code: "INVALID_MARKET", Message: "market must be live or otc"}
	ErrNoSignal      = &Error{Code: "NO_SIGNAL", Message: "no signal available"}

	// Source errors
	ErrSourceFailed     = &Error{Code: "SOURCE_FAILED", Message: "signal source failed"}
	ErrSnapshotNotFound = &Error{Code: "SNAPSHOT_NOT_FOUND", Message: "no archived snapshot"}

	// Auth errors
	ErrAuthFailed      = &Error{Code: "AUTH_FAILED", Message: "authentication failed"}
	ErrUnauthorized    = &Error{Code: "UNAUTHORIZED", Message: "sign in required"}
	ErrSessionNotFound = &Error{Code: "SESSION_NOT_FOUND", Message: "session not found or expired"}

	// Identity errors
	ErrIdentityNotFound = &Error{Code: "IDENTITY_NOT_FOUND", Message: "user id not set"}
	ErrIdentityTaken    = &Error{Code: "IDENTITY_TAKEN", Message: "user id already set and cannot be changed"}

	// Request errors
	ErrValidation    = &Error{Code: "VALIDATION_FAILED", Message: "request validation failed"}
	ErrRouteNotFound = &Error{Code: "NOT_FOUND", Message: "route not found"}

	// Job errors
	ErrJobNotFound   = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrJobInProgress = &Error{Code: "JOB_IN_PROGRESS", Message: "a generation is already in progress"}
	ErrShuttingDown  = &Error{Code: "SHUTTING_DOWN", Message: "service is shutting down"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
