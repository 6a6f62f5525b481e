package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// AttemptStore counts failed attempts per identifier and enforces time-boxed lockouts.
// Implementations serialize read-modify-write per identifier.
type AttemptStore interface {
	IsLockedOut(ctx context.Context, identifier string) (models.LockoutStatus, error)
	RecordFailedAttempt(ctx context.Context, identifier string) (models.AttemptResult, error)
	// ClearAttempts drops the failure count and any lockout. Reservations still in flight are kept.
	ClearAttempts(ctx context.Context, identifier string) error
	// ReserveAttempt claims one attempt before the credential is checked. Failures plus
	// reservations never exceed the policy maximum, so a burst cannot outrun the lockout.
	ReserveAttempt(ctx context.Context, identifier string) (models.AttemptReservation, error)
	// SettleAttempt returns a reservation. A failed attempt is counted like RecordFailedAttempt.
	SettleAttempt(ctx context.Context, identifier string, failed bool) (models.AttemptResult, error)
}

// SessionStore owns session records and their device binding.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID, fingerprint string) (*models.SessionRecord, error)
	// ValidateSession evicts the session when it has expired or the fingerprint differs.
	ValidateSession(ctx context.Context, sessionID, fingerprint string) (models.SessionValidation, error)
	// ExtendSession slides expiry to now + session duration; false when absent or expired.
	ExtendSession(ctx context.Context, sessionID string) (time.Time, bool, error)
	InvalidateSession(ctx context.Context, sessionID string) error
	// AdvanceStep moves the session from one protocol step to the next, failing with
	// ErrAuthStepMismatch when the session is not at from.
	AdvanceStep(ctx context.Context, sessionID string, from, to models.AuthStep) error
}

// ChallengeStore keeps the single outstanding challenge of each session.
type ChallengeStore interface {
	// PutChallenge replaces any challenge the session already had.
	PutChallenge(ctx context.Context, c *models.Challenge) error
	// TakeChallenge removes the session's challenge whatever id is presented and
	// returns it only if the id matches. Otherwise it returns ErrChallengeConsumed.
	TakeChallenge(ctx context.Context, sessionID, challengeID string) (*models.Challenge, error)
	DeleteChallenge(ctx context.Context, sessionID string) error
}

// Sweeper is implemented by in-memory stores so a background job can drop expired entries.
type Sweeper interface {
	Sweep(now time.Time) int
}

// AttemptPolicy configures lockout thresholds.
type AttemptPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// Validate rejects policies that could never lock or never unlock.
func (p AttemptPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.LockoutDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive, got %s", p.LockoutDuration)
	}
	return nil
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}
