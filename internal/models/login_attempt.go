package models

import "time"

// LoginAttemptRecord tracks failed authentication attempts for one identifier
// (an IP address, a username or a composite chosen by the caller).
// LockedUntil is set exactly when FailureCount reached the configured maximum.
type LoginAttemptRecord struct {
	Identifier   string     `json:"identifier"`
	FailureCount int        `json:"failure_count"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
}

// IsLocked reports whether the record holds an active lockout at now.
func (r *LoginAttemptRecord) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// IsExpired reports whether a lockout existed and has elapsed; such a record is treated as absent.
func (r *LoginAttemptRecord) IsExpired(now time.Time) bool {
	return r.LockedUntil != nil && !now.Before(*r.LockedUntil)
}

// LockoutStatus is the answer to "is this identifier locked out right now".
type LockoutStatus struct {
	Locked    bool
	Remaining time.Duration
}

// AttemptResult is returned after recording a failed attempt.
type AttemptResult struct {
	Locked            bool
	AttemptsRemaining int
	// Triggered is true only for the failure that started the lockout.
	Triggered bool
}

// AttemptReservation is the answer to a request for one of an identifier's remaining attempts.
// A refusal with Locked unset means every remaining attempt is held by requests in flight.
type AttemptReservation struct {
	Granted   bool
	Locked    bool
	Remaining time.Duration
}
