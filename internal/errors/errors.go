package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every leaf error below unwraps to exactly one of these so callers
// can decide how to react without matching individual failures.
var (
	// ErrStorage covers the local session store. Fatal to manager construction.
	ErrStorage = errors.New("storage error")
	// ErrNetwork covers transport failures. Recoverable per attempt.
	ErrNetwork = errors.New("network error")
	// ErrAuth covers credential and second-factor rejections. Recoverable.
	ErrAuth = errors.New("authentication error")
	// ErrConfig covers config/data directory resolution.
	ErrConfig = errors.New("configuration error")
)

// Storage errors
var (
	ErrNotInitialized  = newKindError(ErrStorage, "session store is not initialized")
	ErrIOFailure       = newKindError(ErrStorage, "session store i/o failure")
	ErrSchemaFailure   = newKindError(ErrStorage, "session store schema failure")
	ErrSessionNotFound = newKindError(ErrStorage, "session not found")
)

// Network errors
var (
	ErrUnreachable       = newKindError(ErrNetwork, "endpoint unreachable")
	ErrTimeout           = newKindError(ErrNetwork, "request timed out")
	ErrMalformedResponse = newKindError(ErrNetwork, "malformed response")
	ErrRemote            = newKindError(ErrNetwork, "remote api error")
)

// Authentication errors
var (
	ErrInvalidCredentials  = newKindError(ErrAuth, "invalid credentials")
	ErrOneTimeCodeRequired = newKindError(ErrAuth, "one-time code required")
	ErrOneTimeCodeRejected = newKindError(ErrAuth, "one-time code rejected")
	ErrSessionInvalid      = newKindError(ErrAuth, "session token rejected")
)

// Configuration errors
var (
	ErrConfigDir      = newKindError(ErrConfig, "config directory unavailable")
	ErrExecutableName = newKindError(ErrConfig, "executable name unavailable")
)

// General errors
var (
	ErrInvalidState = errors.New("operation not valid in current state")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join attaches cause to a leaf error so both match with errors.Is.
func Join(leaf, cause error) error {
	if cause == nil {
		return leaf
	}
	return fmt.Errorf("%w: %w", leaf, cause)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsRecoverable reports whether the caller may retry after fixing its input.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAuth)
}
