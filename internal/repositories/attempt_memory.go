package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

type attemptEntry struct {
	record models.LoginAttemptRecord
	// reserved counts attempts claimed by requests still checking a credential.
	reserved int
	touched  time.Time
}

// MemoryAttemptStore is a single-process AttemptStore. One mutex guards the whole map,
// which serializes increment-and-check for every identifier.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	entries map[string]*attemptEntry
	policy  AttemptPolicy
	now     func() time.Time
}

// NewMemoryAttemptStore creates a new in-memory attempt store
func NewMemoryAttemptStore(policy AttemptPolicy, now func() time.Time) *MemoryAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptStore{
		entries: make(map[string]*attemptEntry),
		policy:  policy,
		now:     now,
	}
}

// live returns the entry for identifier, dropping it first if it is logically gone.
// Caller holds mu.
func (s *MemoryAttemptStore) live(identifier string, now time.Time) *attemptEntry {
	e, ok := s.entries[identifier]
	if !ok {
		return nil
	}
	if s.stale(e, now) {
		delete(s.entries, identifier)
		return nil
	}
	return e
}

// stale: an elapsed lockout, or an unlocked entry idle for a whole lockout duration.
func (s *MemoryAttemptStore) stale(e *attemptEntry, now time.Time) bool {
	if e.record.LockedUntil != nil {
		return e.record.IsExpired(now)
	}
	return !now.Before(e.touched.Add(s.policy.LockoutDuration))
}

// IsLockedOut reports an active lockout and its remaining duration
func (s *MemoryAttemptStore) IsLockedOut(_ context.Context, identifier string) (models.LockoutStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.live(identifier, now)
	if e == nil || !e.record.IsLocked(now) {
		return models.LockoutStatus{}, nil
	}
	return models.LockoutStatus{Locked: true, Remaining: e.record.LockedUntil.Sub(now)}, nil
}

// RecordFailedAttempt increments the counter unless a lockout is already active
func (s *MemoryAttemptStore) RecordFailedAttempt(_ context.Context, identifier string) (models.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordFailure(identifier, s.now()), nil
}

// recordFailure counts one failure. Caller holds mu.
func (s *MemoryAttemptStore) recordFailure(identifier string, now time.Time) models.AttemptResult {
	e := s.live(identifier, now)
	if e == nil {
		e = &attemptEntry{record: models.LoginAttemptRecord{Identifier: identifier}}
		s.entries[identifier] = e
	}

	if e.record.IsLocked(now) {
		return models.AttemptResult{Locked: true}
	}

	e.record.FailureCount++
	e.touched = now

	if e.record.FailureCount >= s.policy.MaxAttempts {
		until := now.Add(s.policy.LockoutDuration)
		e.record.LockedUntil = &until
		return models.AttemptResult{Locked: true, Triggered: true}
	}

	return models.AttemptResult{AttemptsRemaining: s.policy.MaxAttempts - e.record.FailureCount}
}

// ReserveAttempt claims an attempt unless the identifier is locked or out of attempts
func (s *MemoryAttemptStore) ReserveAttempt(_ context.Context, identifier string) (models.AttemptReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.live(identifier, now)
	if e == nil {
		e = &attemptEntry{record: models.LoginAttemptRecord{Identifier: identifier}}
		s.entries[identifier] = e
	}

	if e.record.IsLocked(now) {
		return models.AttemptReservation{Locked: true, Remaining: e.record.LockedUntil.Sub(now)}, nil
	}
	if e.record.FailureCount+e.reserved >= s.policy.MaxAttempts {
		return models.AttemptReservation{}, nil
	}

	e.reserved++
	e.touched = now
	return models.AttemptReservation{Granted: true}, nil
}

// SettleAttempt releases a reservation and counts it as a failure when failed is set
func (s *MemoryAttemptStore) SettleAttempt(_ context.Context, identifier string, failed bool) (models.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e := s.live(identifier, now); e != nil && e.reserved > 0 {
		e.reserved--
	}
	if !failed {
		return models.AttemptResult{}, nil
	}
	return s.recordFailure(identifier, now), nil
}

// ClearAttempts resets the identifier's record
func (s *MemoryAttemptStore) ClearAttempts(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identifier]
	if !ok {
		return nil
	}
	if e.reserved > 0 {
		e.record = models.LoginAttemptRecord{Identifier: identifier}
		return nil
	}
	delete(s.entries, identifier)
	return nil
}

// Sweep removes expired lockouts and idle entries, returning how many were dropped.
func (s *MemoryAttemptStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.stale(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
