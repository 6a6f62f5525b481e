package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session hash fields: owner, fp, step, created, expires (unix ms).
// fp holds the SHA-256 of the fingerprint so the script compares fixed-length digests.

const validateSessionScript = `
local r = redis.call('HMGET', KEYS[1], 'owner', 'fp', 'step', 'expires')
if not r[1] then
  return {'not_found'}
end
if tonumber(ARGV[1]) >= tonumber(r[4]) then
  redis.call('DEL', KEYS[1])
  return {'expired'}
end
if r[2] ~= ARGV[2] then
  redis.call('DEL', KEYS[1])
  return {'fingerprint_mismatch'}
end
return {'ok', r[1], r[3], r[4]}
`

const extendSessionScript = `
local expires = redis.call('HGET', KEYS[1], 'expires')
if not expires then
  return 0
end
local now = tonumber(ARGV[1])
if now >= tonumber(expires) then
  redis.call('DEL', KEYS[1])
  return 0
end
local next_expiry = now + tonumber(ARGV[2])
redis.call('HSET', KEYS[1], 'expires', next_expiry)
redis.call('PEXPIREAT', KEYS[1], next_expiry)
return next_expiry
`

const advanceStepScript = `
local r = redis.call('HMGET', KEYS[1], 'step', 'expires')
if not r[1] then
  return 'not_found'
end
if tonumber(ARGV[1]) >= tonumber(r[2]) then
  redis.call('DEL', KEYS[1])
  return 'expired'
end
if r[1] ~= ARGV[2] then
  return 'mismatch'
end
redis.call('HSET', KEYS[1], 'step', ARGV[3])
return 'ok'
`

var (
	validateSessionLua = redis.NewScript(validateSessionScript)
	extendSessionLua   = redis.NewScript(extendSessionScript)
	advanceStepLua     = redis.NewScript(advanceStepScript)
)

// RedisSessionStore is a SessionStore shared across instances
type RedisSessionStore struct {
	rdb      redis.UniversalClient
	prefix   string
	duration time.Duration
	now      func() time.Time
}

// NewRedisSessionStore creates a redis-backed session store
func NewRedisSessionStore(rdb redis.UniversalClient, prefix string, duration time.Duration, now func() time.Time) *RedisSessionStore {
	if now == nil {
		now = time.Now
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, duration: duration, now: now}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + ":session:" + sessionID
}

func fingerprintDigest(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

// CreateSession stores a new session pinned to fingerprint, starting at the TOTP step.
func (s *RedisSessionStore) CreateSession(ctx context.Context, ownerID, fingerprint string) (*models.SessionRecord, error) {
	now := s.now()
	rec := &models.SessionRecord{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		DeviceFingerprint: fingerprint,
		Step:              models.AuthStepTOTP,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.duration),
	}

	key := s.key(rec.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"owner", rec.OwnerID,
			"fp", fingerprintDigest(rec.DeviceFingerprint),
			"step", string(rec.Step),
			"created", rec.CreatedAt.UnixMilli(),
			"expires", rec.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		return nil, storeUnavailable("create session", err)
	}
	return rec, nil
}

// ValidateSession checks existence, expiry and device binding, evicting on the last two.
func (s *RedisSessionStore) ValidateSession(ctx context.Context, sessionID, fingerprint string) (models.SessionValidation, error) {
	reply, err := validateSessionLua.Run(ctx, s.rdb, []string{s.key(sessionID)}, s.now().UnixMilli(), fingerprintDigest(fingerprint)).StringSlice()
	if err != nil {
		return models.SessionValidation{}, storeUnavailable("validate session", err)
	}
	if len(reply) == 0 {
		return models.SessionValidation{}, storeUnavailable("validate session", fmt.Errorf("empty reply"))
	}

	if reply[0] != "ok" {
		return models.SessionValidation{Reason: reply[0]}, nil
	}
	if len(reply) != 4 {
		return models.SessionValidation{}, storeUnavailable("validate session", fmt.Errorf("unexpected reply %v", reply))
	}

	expiresMs, err := strconv.ParseInt(reply[3], 10, 64)
	if err != nil {
		return models.SessionValidation{}, storeUnavailable("validate session", err)
	}

	return models.SessionValidation{
		Valid:     true,
		OwnerID:   reply[1],
		Step:      models.AuthStep(reply[2]),
		ExpiresAt: time.UnixMilli(expiresMs),
	}, nil
}

// ExtendSession slides the expiry a full duration from now
func (s *RedisSessionStore) ExtendSession(ctx context.Context, sessionID string) (time.Time, bool, error) {
	next, err := extendSessionLua.Run(ctx, s.rdb, []string{s.key(sessionID)},
		s.now().UnixMilli(), s.duration.Milliseconds()).Int64()
	if err != nil {
		return time.Time{}, false, storeUnavailable("extend session", err)
	}
	if next == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(next), true, nil
}

// InvalidateSession removes the session; unknown ids are ignored
func (s *RedisSessionStore) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return storeUnavailable("invalidate session", err)
	}
	return nil
}

// AdvanceStep compares and sets the protocol step of a live session
func (s *RedisSessionStore) AdvanceStep(ctx context.Context, sessionID string, from, to models.AuthStep) error {
	outcome, err := advanceStepLua.Run(ctx, s.rdb, []string{s.key(sessionID)},
		s.now().UnixMilli(), string(from), string(to)).Text()
	if err != nil {
		return storeUnavailable("advance step", err)
	}

	switch outcome {
	case "ok":
		return nil
	case "not_found":
		return models.ErrSessionInvalid
	case "expired":
		return models.ErrSessionExpired
	case "mismatch":
		return models.ErrAuthStepMismatch
	}
	return storeUnavailable("advance step", fmt.Errorf("unexpected reply %q", outcome))
}
