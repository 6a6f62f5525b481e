package repositories

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
)

// MemorySessionStore is a single-process SessionStore guarded by one mutex.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.SessionRecord
	duration time.Duration
	now      func() time.Time
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore(duration time.Duration, now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{
		sessions: make(map[string]*models.SessionRecord),
		duration: duration,
		now:      now,
	}
}

// CreateSession stores a new session pinned to fingerprint, starting at the TOTP step.
func (s *MemorySessionStore) CreateSession(_ context.Context, ownerID, fingerprint string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &models.SessionRecord{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		DeviceFingerprint: fingerprint,
		Step:              models.AuthStepTOTP,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.duration),
	}
	s.sessions[rec.ID] = rec

	out := *rec
	return &out, nil
}

// ValidateSession checks existence, expiry and device binding, evicting on the last two.
func (s *MemorySessionStore) ValidateSession(_ context.Context, sessionID, fingerprint string) (models.SessionValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return models.SessionValidation{Reason: models.SessionReasonNotFound}, nil
	}
	if rec.IsExpired(s.now()) {
		delete(s.sessions, sessionID)
		return models.SessionValidation{Reason: models.SessionReasonExpired}, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.DeviceFingerprint), []byte(fingerprint)) != 1 {
		delete(s.sessions, sessionID)
		return models.SessionValidation{Reason: models.SessionReasonFingerprintMismatch}, nil
	}

	return models.SessionValidation{
		Valid:     true,
		OwnerID:   rec.OwnerID,
		Step:      rec.Step,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// ExtendSession slides the expiry a full duration from now
func (s *MemorySessionStore) ExtendSession(_ context.Context, sessionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return time.Time{}, false, nil
	}
	now := s.now()
	if rec.IsExpired(now) {
		delete(s.sessions, sessionID)
		return time.Time{}, false, nil
	}

	rec.ExpiresAt = now.Add(s.duration)
	return rec.ExpiresAt, true, nil
}

// InvalidateSession removes the session; unknown ids are ignored
func (s *MemorySessionStore) InvalidateSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// AdvanceStep compares and sets the protocol step of a live session
func (s *MemorySessionStore) AdvanceStep(_ context.Context, sessionID string, from, to models.AuthStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrSessionInvalid
	}
	if rec.IsExpired(s.now()) {
		delete(s.sessions, sessionID)
		return models.ErrSessionExpired
	}
	if rec.Step != from {
		return models.ErrAuthStepMismatch
	}

	rec.Step = to
	return nil
}

// Sweep drops expired sessions
func (s *MemorySessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.sessions {
		if rec.IsExpired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
