// internal/ratelimit/tracker.go
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultFloor is the remaining-call count under which callers start waiting for the reset.
	DefaultFloor = 50
	// DefaultMargin is added on top of the reported reset time.
	DefaultMargin = time.Second
)

// Tracker holds the last rate budget reported by the API and makes callers wait
// for the reset once the budget drops under the floor. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	known     bool
	remaining int
	resetAt   time.Time
	// blockedUntil is set by secondary limits (Retry-After) and holds regardless
	// of the remaining count.
	blockedUntil time.Time

	floor  int
	margin time.Duration
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFloor sets the remaining-call threshold.
func WithFloor(floor int) Option {
	return func(t *Tracker) { t.floor = floor }
}

// WithMargin sets the safety margin added to the reset time. Values under one second are raised to one second.
func WithMargin(d time.Duration) Option {
	return func(t *Tracker) {
		if d < time.Second {
			d = time.Second
		}
		t.margin = d
	}
}

// NewTracker creates a Tracker with an unknown budget, so Wait is a no-op until
// the first Observe.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		floor:  DefaultFloor,
		margin: DefaultMargin,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records a budget reported by the API. Responses may arrive out of order,
// so an observation for an older reset window is dropped and, within the same
// window, the lowest remaining count wins.
func (t *Tracker) Observe(remaining int, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.known {
		switch {
		case resetAt.Before(t.resetAt):
			return
		case resetAt.Equal(t.resetAt) && remaining >= t.remaining:
			return
		}
	}
	t.known = true
	t.remaining = remaining
	t.resetAt = resetAt
}

// Block pauses every caller until the given time, whatever the remaining budget.
// It serves secondary limits, which come with a Retry-After instead of a budget.
// An earlier time than the current block is ignored.
func (t *Tracker) Block(until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if until.After(t.blockedUntil) {
		t.blockedUntil = until
	}
}

// Wait blocks until the budget is safe to spend. The only error it returns is the
// context's, when cancelled mid-wait.
func (t *Tracker) Wait(ctx context.Context) error {
	d, remaining, resetAt := t.pause()
	if d <= 0 {
		return nil
	}

	t.logger.Warn("Rate limited, waiting for reset",
		"remaining", remaining,
		"floor", t.floor,
		"reset_at", resetAt.Format(time.RFC3339),
		"wait", d.Round(time.Second).String(),
	)
	return t.sleep(ctx, d)
}

// pause computes how long a caller must wait right now.
func (t *Tracker) pause() (time.Duration, int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var until time.Duration
	resetAt := t.resetAt
	if t.known && t.remaining < t.floor {
		until = t.resetAt.Sub(now)
	}
	if blocked := t.blockedUntil.Sub(now); blocked > until {
		until = blocked
		resetAt = t.blockedUntil
	}
	if until <= 0 {
		return 0, t.remaining, t.resetAt
	}
	return until + t.margin, t.remaining, resetAt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
