package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecurityEventKind enumerates every security-relevant transition of the login protocol.
type SecurityEventKind string

const (
	EventLoginAttempt        SecurityEventKind = "login_attempt"
	EventLoginSuccess        SecurityEventKind = "login_success"
	EventLoginFailed         SecurityEventKind = "login_failed"
	EventLockoutTriggered    SecurityEventKind = "lockout_triggered"
	EventTOTPVerified        SecurityEventKind = "totp_verified"
	EventTOTPFailed          SecurityEventKind = "totp_failed"
	EventHardwareKeyVerified SecurityEventKind = "hardware_key_verified"
	EventHardwareKeyFailed   SecurityEventKind = "hardware_key_failed"
	EventSessionCreated      SecurityEventKind = "session_created"
	EventSessionInvalidated  SecurityEventKind = "session_invalidated"
	EventSuspiciousActivity  SecurityEventKind = "suspicious_activity"
)

// IsFailure reports whether the kind describes a rejected or hostile action.
func (k SecurityEventKind) IsFailure() bool {
	switch k {
	case EventLoginFailed, EventLockoutTriggered, EventTOTPFailed,
		EventHardwareKeyFailed, EventSuspiciousActivity:
		return true
	}
	return false
}

// SecurityContext describes who triggered an event.
type SecurityContext struct {
	IPAddress         string `json:"ip_address,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	AdminID           string `json:"admin_id,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// SecurityEvent is one record of the audit stream.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	Kind      SecurityEventKind `json:"kind" db:"kind"`
	Timestamp time.Time         `json:"timestamp" db:"occurred_at"`
	SecurityContext
	Details EventDetails `json:"details,omitempty" db:"details"`
}

// EventDetails holds event-specific fields such as attempts remaining or lockout duration.
type EventDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetails)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetails) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(d))
}
