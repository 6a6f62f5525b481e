package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// MemoryChallengeStore keeps the latest challenge per session in a map.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]models.Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]models.Challenge)}
}

func (s *MemoryChallengeStore) PutChallenge(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[c.SessionID] = *c
	return nil
}

func (s *MemoryChallengeStore) TakeChallenge(_ context.Context, sessionID, challengeID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[sessionID]
	if !ok {
		return nil, models.ErrChallengeConsumed
	}
	delete(s.challenges, sessionID)
	if c.ID != challengeID {
		return nil, models.ErrChallengeConsumed
	}
	return &c, nil
}

func (s *MemoryChallengeStore) DeleteChallenge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, sessionID)
	return nil
}

// Sweep drops challenges past their expiry
func (s *MemoryChallengeStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.challenges {
		if c.IsExpired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed
}
