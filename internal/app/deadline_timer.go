package app

import (
	"context"
	"sync/atomic"
	"time"
)

// RemainingSeconds is max(0, ceil((deadline-now)/1s)). It depends only on the
// two timestamps, so ticks that arrive late or not at all cannot skew it.
func RemainingSeconds(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	if diff <= 0 {
		return 0
	}
	secs := diff / time.Second
	if diff%time.Second != 0 {
		secs++
	}
	return int(secs)
}

// DeadlineTimer re-evaluates an absolute deadline on every tick and fires once
// when it is reached.
type DeadlineTimer struct {
	deadline time.Time
	now      func() time.Time
	interval time.Duration
	fired    atomic.Bool
}

func NewDeadlineTimer(deadline time.Time, now func() time.Time) *DeadlineTimer {
	if now == nil {
		now = time.Now
	}
	return &DeadlineTimer{deadline: deadline, now: now, interval: time.Second}
}

func (t *DeadlineTimer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns whole seconds left, never negative.
func (t *DeadlineTimer) Remaining() int {
	return RemainingSeconds(t.deadline, t.now())
}

// Poll returns the remaining seconds and reports expiry exactly once: the
// first call that observes zero returns true, later calls return false.
func (t *DeadlineTimer) Poll() (int, bool) {
	remaining := t.Remaining()
	if remaining > 0 {
		return remaining, false
	}
	return 0, t.fired.CompareAndSwap(false, true)
}

// Fired reports whether expiry has already been delivered.
func (t *DeadlineTimer) Fired() bool {
	return t.fired.Load()
}

// Run evaluates the deadline immediately and then once per interval until it
// expires or ctx is done. onTick receives every evaluation; onExpire runs at
// most once, after which Run returns.
func (t *DeadlineTimer) Run(ctx context.Context, onTick func(remaining int), onExpire func()) {
	if t.evaluate(onTick, onExpire) {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.evaluate(onTick, onExpire) {
				return
			}
		}
	}
}

func (t *DeadlineTimer) evaluate(onTick func(int), onExpire func()) bool {
	remaining, expired := t.Poll()
	if onTick != nil {
		onTick(remaining)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return remaining == 0
}
