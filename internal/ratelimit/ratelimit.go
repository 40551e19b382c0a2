// Package ratelimit enforces a single process-wide bytes-per-second
// ceiling shared by every engine and segment task in a run.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a process-wide token bucket over bytes. A nil *Limiter (or one
// constructed with bytesPerSecond <= 0) is a permissive no-op, matching the
// spec's "absent ⇒ no limiter" contract.
type Limiter struct {
	rl *rate.Limiter
}

// New returns a Limiter capped at bytesPerSecond, with burst equal to one
// second of capacity. bytesPerSecond <= 0 disables limiting entirely.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(bytesPerSecond), int(clampBurst(bytesPerSecond)))}
}

// clampBurst keeps the token bucket's burst size representable as an int
// even for very large configured rates.
func clampBurst(bytesPerSecond int64) int64 {
	const maxBurst = int64(1) << 30
	if bytesPerSecond > maxBurst {
		return maxBurst
	}
	return bytesPerSecond
}

// Acquire suspends the caller until n bytes are available, then debits them.
// Callers MUST NOT call Acquire with n == 0; empty chunks are never rate
// limited. For n larger than the bucket's burst, Acquire admits n in
// burst-sized sub-chunks so a single large read never starves concurrent
// callers indefinitely.
func (l *Limiter) Acquire(ctx context.Context, n int64) error {
	if l == nil || l.rl == nil || n <= 0 {
		return nil
	}
	burst := int64(l.rl.Burst())
	for remaining := n; remaining > 0; {
		take := remaining
		if burst > 0 && take > burst {
			take = burst
		}
		if err := l.rl.WaitN(ctx, int(take)); err != nil {
			return err
		}
		remaining -= take
	}
	return nil
}

// Limit reports the configured ceiling in bytes per second, or 0 if unlimited.
func (l *Limiter) Limit() int64 {
	if l == nil || l.rl == nil {
		return 0
	}
	return int64(l.rl.Limit())
}
