// Package progress tracks process-wide download counters and emits
// periodic snapshots for a UI or logger to render.
package progress

import (
	"context"
	"sync/atomic"
	"time"
)

// Counters are the three process-wide atomics every engine updates. They
// are monotonic non-decreasing across a run; observers may see any
// linearization of concurrent increments.
type Counters struct {
	completedFiles atomic.Uint64
	bytesDownloaded atomic.Uint64
	bytesKnown      atomic.Uint64
}

// New returns a zeroed Counters.
func New() *Counters { return &Counters{} }

// AddBytesDownloaded adds n to the running bytes-downloaded total.
func (c *Counters) AddBytesDownloaded(n int64) {
	if n <= 0 {
		return
	}
	c.bytesDownloaded.Add(uint64(n))
}

// AddBytesKnown adds n to the running known-total-size denominator. Called
// once per item, either from the pre-scan HEAD pass or, failing that, from
// the engine's own init_state / skip-detection step, so the denominator
// never exceeds the sum of all items actually accounted for.
func (c *Counters) AddBytesKnown(n int64) {
	if n <= 0 {
		return
	}
	c.bytesKnown.Add(uint64(n))
}

// IncCompletedFiles increments the completed-file count by one.
func (c *Counters) IncCompletedFiles() {
	c.completedFiles.Add(1)
}

// Snapshot is a point-in-time read of all three counters.
type Snapshot struct {
	CompletedFiles  uint64
	BytesDownloaded uint64
	BytesKnown      uint64
}

// Snapshot reads all three counters without any cross-counter consistency
// guarantee beyond each being individually monotonic.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		CompletedFiles:  c.completedFiles.Load(),
		BytesDownloaded: c.bytesDownloaded.Load(),
		BytesKnown:      c.bytesKnown.Load(),
	}
}

// Emitter periodically calls a callback with a Counters snapshot until its
// context is cancelled.
type Emitter struct {
	counters *Counters
	hz       float64
}

// NewEmitter returns an Emitter sampling counters at hz times per second.
// hz <= 0 defaults to 10.
func NewEmitter(counters *Counters, hz float64) *Emitter {
	if hz <= 0 {
		hz = 10
	}
	return &Emitter{counters: counters, hz: hz}
}

// Run calls onSnapshot at the configured frequency until ctx is done, then
// returns. It is safe to run in its own goroutine and is cancellable via
// ctx, independent of any engine or scheduler lifecycle.
func (e *Emitter) Run(ctx context.Context, onSnapshot func(Snapshot)) {
	interval := time.Duration(float64(time.Second) / e.hz)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onSnapshot(e.counters.Snapshot())
		}
	}
}
