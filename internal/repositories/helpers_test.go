package repositories

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Redis keys expire on wall time, so start from it and only move forward.
	return &testClock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

var testPolicy = AttemptPolicy{MaxAttempts: 3, LockoutDuration: 30 * time.Minute}

var backends = []string{"memory", "redis"}

func newAttemptStore(t *testing.T, backend string, clock *testClock) AttemptStore {
	t.Helper()
	if backend == "redis" {
		rdb, _ := newTestRedis(t)
		return NewRedisAttemptStore(rdb, "test", testPolicy, clock.Now)
	}
	return NewMemoryAttemptStore(testPolicy, clock.Now)
}

func newSessionStore(t *testing.T, backend string, clock *testClock) SessionStore {
	t.Helper()
	if backend == "redis" {
		rdb, _ := newTestRedis(t)
		return NewRedisSessionStore(rdb, "test", time.Hour, clock.Now)
	}
	return NewMemorySessionStore(time.Hour, clock.Now)
}

func newChallengeStore(t *testing.T, backend string) ChallengeStore {
	t.Helper()
	if backend == "redis" {
		rdb, _ := newTestRedis(t)
		return NewRedisChallengeStore(rdb, "test")
	}
	return NewMemoryChallengeStore()
}
