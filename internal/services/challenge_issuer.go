package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/google/uuid"
)

// HardwareKeyChallengeBytes is the size of the nonce a hardware key signs
const HardwareKeyChallengeBytes = 32

// ChallengeIssuer produces single-use challenges for the TOTP and hardware-key steps.
// Issuing a challenge replaces whatever the session had outstanding.
type ChallengeIssuer struct {
	store repositories.ChallengeStore
	ttl   time.Duration
	now   func() time.Time
}

func NewChallengeIssuer(store repositories.ChallengeStore, ttl time.Duration) *ChallengeIssuer {
	return &ChallengeIssuer{store: store, ttl: ttl, now: time.Now}
}

func (ci *ChallengeIssuer) SetClock(now func() time.Time) {
	ci.now = now
}

// GenerateTotpChallenge returns a correlation id only; the code itself is derived from the shared secret.
func (ci *ChallengeIssuer) GenerateTotpChallenge(ctx context.Context, sessionID string) (*models.Challenge, error) {
	return ci.issue(ctx, sessionID, models.ChallengeKindTOTP, "")
}

// GenerateHardwareKeyChallenge returns 32 random bytes, hex-encoded, for the key to sign.
func (ci *ChallengeIssuer) GenerateHardwareKeyChallenge(ctx context.Context, sessionID string) (*models.Challenge, error) {
	nonce := make([]byte, HardwareKeyChallengeBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	return ci.issue(ctx, sessionID, models.ChallengeKindHardwareKey, hex.EncodeToString(nonce))
}

func (ci *ChallengeIssuer) issue(ctx context.Context, sessionID string, kind models.ChallengeKind, material string) (*models.Challenge, error) {
	now := ci.now()
	c := &models.Challenge{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		Material:  material,
		IssuedAt:  now,
		ExpiresAt: now.Add(ci.ttl),
	}
	if err := ci.store.PutChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Consume takes the session's outstanding challenge. It is gone afterwards whatever the outcome.
func (ci *ChallengeIssuer) Consume(ctx context.Context, sessionID, challengeID string, kind models.ChallengeKind) (*models.Challenge, error) {
	c, err := ci.store.TakeChallenge(ctx, sessionID, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, models.ErrAuthStepMismatch
	}
	if c.IsExpired(ci.now()) {
		return nil, models.ErrChallengeExpired
	}
	return c, nil
}

// Discard drops any outstanding challenge for the session
func (ci *ChallengeIssuer) Discard(ctx context.Context, sessionID string) error {
	return ci.store.DeleteChallenge(ctx, sessionID)
}
