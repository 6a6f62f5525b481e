package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/redis/go-redis/v9"
)

// Each attempt record is a hash {count, reserved, locked_until(ms)} whose TTL is the lockout
// duration, refreshed on every write. Timestamps come from the caller so a test clock drives expiry.

const isLockedOutScript = `
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked == 0 then
  return 0
end
local now = tonumber(ARGV[1])
if now >= locked then
  redis.call('DEL', KEYS[1])
  return 0
end
return locked - now
`

// recordFailureScript expects now, max and ttl in ARGV[1..3].
const recordFailureScript = `
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked > 0 then
  if now < locked then
    return {1, 0, 0}
  end
  redis.call('DEL', KEYS[1])
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if count >= max then
  redis.call('HSET', KEYS[1], 'locked_until', now + ttl)
  redis.call('PEXPIRE', KEYS[1], ttl)
  return {1, 0, 1}
end
redis.call('PEXPIRE', KEYS[1], ttl)
return {0, max - count, 0}
`

const reserveScript = `
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked > 0 then
  if now < locked then
    return {0, locked - now}
  end
  redis.call('DEL', KEYS[1])
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
if count + reserved >= max then
  return {0, 0}
end
redis.call('HINCRBY', KEYS[1], 'reserved', 1)
redis.call('PEXPIRE', KEYS[1], ttl)
return {1, 0}
`

// settleScript releases a reservation; ARGV[4] == '1' also records the failure.
const settleScript = `
if tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0') > 0 then
  redis.call('HINCRBY', KEYS[1], 'reserved', -1)
end
if ARGV[4] ~= '1' then
  return {0, 0, 0}
end
` + recordFailureScript

const clearScript = `
redis.call('HDEL', KEYS[1], 'count', 'locked_until')
if tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0') <= 0 then
  redis.call('DEL', KEYS[1])
end
return 0
`

var (
	isLockedOutLua   = redis.NewScript(isLockedOutScript)
	recordFailureLua = redis.NewScript(recordFailureScript)
	reserveLua       = redis.NewScript(reserveScript)
	settleLua        = redis.NewScript(settleScript)
	clearLua         = redis.NewScript(clearScript)
)

// RedisAttemptStore is an AttemptStore shared by every instance behind the same redis.
type RedisAttemptStore struct {
	rdb    redis.UniversalClient
	prefix string
	policy AttemptPolicy
	now    func() time.Time
}

// NewRedisAttemptStore creates a redis-backed attempt store
func NewRedisAttemptStore(rdb redis.UniversalClient, prefix string, policy AttemptPolicy, now func() time.Time) *RedisAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &RedisAttemptStore{rdb: rdb, prefix: prefix, policy: policy, now: now}
}

func (s *RedisAttemptStore) key(identifier string) string {
	return s.prefix + ":attempts:" + identifier
}

// IsLockedOut reports an active lockout and its remaining duration
func (s *RedisAttemptStore) IsLockedOut(ctx context.Context, identifier string) (models.LockoutStatus, error) {
	remainingMs, err := isLockedOutLua.Run(ctx, s.rdb, []string{s.key(identifier)}, s.now().UnixMilli()).Int64()
	if err != nil {
		return models.LockoutStatus{}, storeUnavailable("check lockout", err)
	}
	if remainingMs <= 0 {
		return models.LockoutStatus{}, nil
	}
	return models.LockoutStatus{Locked: true, Remaining: time.Duration(remainingMs) * time.Millisecond}, nil
}

// RecordFailedAttempt increments the counter unless a lockout is already active
func (s *RedisAttemptStore) RecordFailedAttempt(ctx context.Context, identifier string) (models.AttemptResult, error) {
	res, err := recordFailureLua.Run(ctx, s.rdb, []string{s.key(identifier)}, s.args()...).Int64Slice()
	if err != nil {
		return models.AttemptResult{}, storeUnavailable("record failed attempt", err)
	}
	return attemptResult("record failed attempt", res)
}

// ReserveAttempt claims an attempt unless the identifier is locked or out of attempts
func (s *RedisAttemptStore) ReserveAttempt(ctx context.Context, identifier string) (models.AttemptReservation, error) {
	res, err := reserveLua.Run(ctx, s.rdb, []string{s.key(identifier)}, s.args()...).Int64Slice()
	if err != nil {
		return models.AttemptReservation{}, storeUnavailable("reserve attempt", err)
	}
	if len(res) != 2 {
		return models.AttemptReservation{}, storeUnavailable("reserve attempt", fmt.Errorf("unexpected reply %v", res))
	}
	if res[1] > 0 {
		return models.AttemptReservation{Locked: true, Remaining: time.Duration(res[1]) * time.Millisecond}, nil
	}
	return models.AttemptReservation{Granted: res[0] == 1}, nil
}

// SettleAttempt releases a reservation and counts it as a failure when failed is set
func (s *RedisAttemptStore) SettleAttempt(ctx context.Context, identifier string, failed bool) (models.AttemptResult, error) {
	flag := "0"
	if failed {
		flag = "1"
	}
	res, err := settleLua.Run(ctx, s.rdb, []string{s.key(identifier)}, append(s.args(), flag)...).Int64Slice()
	if err != nil {
		return models.AttemptResult{}, storeUnavailable("settle attempt", err)
	}
	return attemptResult("settle attempt", res)
}

// ClearAttempts resets the identifier's record
func (s *RedisAttemptStore) ClearAttempts(ctx context.Context, identifier string) error {
	if err := clearLua.Run(ctx, s.rdb, []string{s.key(identifier)}).Err(); err != nil {
		return storeUnavailable("clear attempts", err)
	}
	return nil
}

func (s *RedisAttemptStore) args() []interface{} {
	return []interface{}{s.now().UnixMilli(), s.policy.MaxAttempts, s.policy.LockoutDuration.Milliseconds()}
}

func attemptResult(op string, res []int64) (models.AttemptResult, error) {
	if len(res) != 3 {
		return models.AttemptResult{}, storeUnavailable(op, fmt.Errorf("unexpected reply %v", res))
	}
	return models.AttemptResult{
		Locked:            res[0] == 1,
		AttemptsRemaining: int(res[1]),
		Triggered:         res[2] == 1,
	}, nil
}
