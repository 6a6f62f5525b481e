package models

import "time"

// ChallengeKind identifies which factor a challenge belongs to.
type ChallengeKind string

const (
	ChallengeKindTOTP        ChallengeKind = "totp"
	ChallengeKindHardwareKey ChallengeKind = "hardware_key"
)

// Challenge is single-use material for the second or third factor.
// Only the most recent challenge of a session is kept.
type Challenge struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Kind      ChallengeKind `json:"kind"`
	// Material is the hex-encoded nonce for hardware-key challenges, empty for TOTP.
	Material  string    `json:"material,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the challenge can no longer be answered.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
