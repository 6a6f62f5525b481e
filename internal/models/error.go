package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Authentication protocol errors. Every one of them is recoverable by the caller:
// retry the step or restart from the credentials step.
var (
	ErrRateLimited              = errors.New("identifier is temporarily locked out")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidCode              = errors.New("invalid verification code")
	ErrInvalidChallengeResponse = errors.New("invalid challenge response")
	ErrSessionExpired           = errors.New("session expired")
	ErrSessionInvalid           = errors.New("session invalid")
	ErrChallengeExpired         = errors.New("challenge expired")
	ErrChallengeConsumed        = errors.New("challenge already consumed or superseded")
	ErrAuthStepMismatch         = errors.New("authentication step out of order")

	// ErrVerificationUnavailable hides backend failures while checking a factor
	// so callers cannot tell "wrong code" apart from "system error".
	ErrVerificationUnavailable = errors.New("verification unavailable")

	// ErrStoreUnavailable wraps failures of the attempt/session/challenge backends.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LockoutError reports an active lockout together with the time left on it.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.Remaining.Round(time.Second))
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *LockoutError) Unwrap() error {
	return ErrRateLimited
}

// NewLockoutError builds a LockoutError, clamping negative durations to zero.
func NewLockoutError(remaining time.Duration) *LockoutError {
	if remaining < 0 {
		remaining = 0
	}
	return &LockoutError{Remaining: remaining}
}
