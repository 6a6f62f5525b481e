package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/redis/go-redis/v9"
)

// takeChallengeScript deletes the stored challenge on every attempt and returns it
// only when its id matches ARGV[1].
const takeChallengeScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
redis.call('DEL', KEYS[1])
local ok, c = pcall(cjson.decode, raw)
if not ok or c['id'] ~= ARGV[1] then
  return false
end
return raw
`

var takeChallengeLua = redis.NewScript(takeChallengeScript)

// challengeKeyGrace keeps an expired challenge around long enough to report it as expired
// rather than missing.
const challengeKeyGrace = time.Minute

// RedisChallengeStore keeps the latest challenge per session as a JSON string.
type RedisChallengeStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisChallengeStore creates a redis-backed challenge store
func NewRedisChallengeStore(rdb redis.UniversalClient, prefix string) *RedisChallengeStore {
	return &RedisChallengeStore{rdb: rdb, prefix: prefix}
}

func (s *RedisChallengeStore) key(sessionID string) string {
	return s.prefix + ":challenge:" + sessionID
}

func (s *RedisChallengeStore) PutChallenge(ctx context.Context, c *models.Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	// The lifetime comes from the issuer's own timestamps, not the wall clock.
	ttl := c.ExpiresAt.Sub(c.IssuedAt) + challengeKeyGrace
	if ttl < challengeKeyGrace {
		ttl = challengeKeyGrace
	}
	if err := s.rdb.Set(ctx, s.key(c.SessionID), raw, ttl).Err(); err != nil {
		return storeUnavailable("put challenge", err)
	}
	return nil
}

func (s *RedisChallengeStore) TakeChallenge(ctx context.Context, sessionID, challengeID string) (*models.Challenge, error) {
	raw, err := takeChallengeLua.Run(ctx, s.rdb, []string{s.key(sessionID)}, challengeID).Text()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrChallengeConsumed
	}
	if err != nil {
		return nil, storeUnavailable("take challenge", err)
	}

	var c models.Challenge
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, storeUnavailable("take challenge", err)
	}
	return &c, nil
}

func (s *RedisChallengeStore) DeleteChallenge(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return storeUnavailable("delete challenge", err)
	}
	return nil
}
