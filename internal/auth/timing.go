package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration
	Jitter         time.Duration // upper bound of the random extra delay
	DelayOnSuccess bool
}

// TimingDelay pads failed credential checks so "unknown admin" and "wrong password"
// take about the same time.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// target returns base + a crypto-random jitter in [0, Jitter).
func (td *TimingDelay) target() time.Duration {
	d := td.config.BaseDelay
	if td.config.Jitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.Jitter))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// WaitFrom sleeps until at least the target delay has passed since start.
// A nil TimingDelay never sleeps.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if td == nil {
		return
	}
	if success && !td.config.DelayOnSuccess {
		return
	}
	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}
