package models

import "time"

// AuthStep is the externally observable position of a caller in the login protocol.
type AuthStep string

const (
	AuthStepCredentials AuthStep = "credentials"
	AuthStepTOTP        AuthStep = "totp"
	AuthStepHardwareKey AuthStep = "hardware_key"
	AuthStepComplete    AuthStep = "complete"
)

// Valid reports whether s is one of the known steps.
func (s AuthStep) Valid() bool {
	switch s {
	case AuthStepCredentials, AuthStepTOTP, AuthStepHardwareKey, AuthStepComplete:
		return true
	}
	return false
}

// SessionRecord binds a session id to its owner and the device that created it.
type SessionRecord struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	Step              AuthStep  `json:"step"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has expired at now.
func (s *SessionRecord) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Reasons a session failed validation.
const (
	SessionReasonNotFound            = "not_found"
	SessionReasonExpired             = "expired"
	SessionReasonFingerprintMismatch = "fingerprint_mismatch"
)

// SessionValidation is the outcome of validating a session against a presented fingerprint.
type SessionValidation struct {
	Valid     bool
	OwnerID   string
	Step      AuthStep
	ExpiresAt time.Time
	// Reason is set when Valid is false.
	Reason string
}

// AuthState is the client-visible projection of the login protocol.
type AuthState struct {
	Step        AuthStep   `json:"step"`
	SessionID   string     `json:"session_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ChallengeID string     `json:"challenge_id,omitempty"`
	// Challenge is the hex nonce to sign during the hardware-key step.
	Challenge   string `json:"challenge,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}
