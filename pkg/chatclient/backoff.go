package chatclient

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// ReconnectPolicy bounds automatic reconnection. Attempt n waits
// min(MaxDelay, InitialDelay*Factor^(n-1) plus up to Jitter of that).
type ReconnectPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       float64 // 0.0 to 1.0
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Factor:       2,
		Jitter:       0.2,
	}
}

// Delay returns the wait before attempt (starting at 1).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p ReconnectPolicy) delayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.InitialDelay) * math.Pow(p.Factor, exp)
	total := math.Min(float64(p.MaxDelay), base+base*p.Jitter*randomValue)
	return time.Duration(total)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
