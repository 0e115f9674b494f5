package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures requested waits instead of sleeping.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func newTestTracker(opts ...Option) (*Tracker, *recordingSleep) {
	rec := &recordingSleep{}
	tr := NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	tr.sleep = rec.sleep
	return tr, rec
}

func TestTracker_Wait(t *testing.T) {
	ctx := context.Background()

	t.Run("is a no-op while the budget is unknown", func(t *testing.T) {
		tr, rec := newTestTracker()

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})

	t.Run("waits until reset plus margin when below the floor", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(10, time.Now().Add(5*time.Second))

		require.NoError(t, tr.Wait(ctx))
		require.Len(t, rec.waits, 1)
		assert.GreaterOrEqual(t, rec.waits[0], 5*time.Second+DefaultMargin-100*time.Millisecond)
		assert.LessOrEqual(t, rec.waits[0], 5*time.Second+DefaultMargin)
	})

	t.Run("does not wait when the budget is above the floor", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(4000, time.Now().Add(time.Hour))

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})

	t.Run("does not wait when the reset time has already passed", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(0, time.Now().Add(-time.Minute))

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})

	t.Run("margin is never below one second", func(t *testing.T) {
		tr, rec := newTestTracker(WithMargin(10 * time.Millisecond))
		tr.Observe(0, time.Now().Add(2*time.Second))

		require.NoError(t, tr.Wait(ctx))
		require.Len(t, rec.waits, 1)
		assert.Greater(t, rec.waits[0], 2*time.Second)
	})

	t.Run("really sleeps with the default sleeper and honours cancellation", func(t *testing.T) {
		tr := NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)))
		tr.Observe(0, time.Now().Add(time.Hour))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := tr.Wait(cctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestTracker_Observe(t *testing.T) {
	ctx := context.Background()
	reset := time.Now().Add(10 * time.Second)

	t.Run("ignores observations from an older reset window", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(4000, reset)
		tr.Observe(1, reset.Add(-time.Hour))

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})

	t.Run("keeps the lowest remaining within the same window", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(10, reset)
		tr.Observe(3000, reset)

		require.NoError(t, tr.Wait(ctx))
		assert.Len(t, rec.waits, 1)
	})

	t.Run("a new window replaces an exhausted one", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(0, reset)
		tr.Observe(5000, reset.Add(time.Hour))

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})

	t.Run("concurrent observations are serialized", func(t *testing.T) {
		tr, _ := newTestTracker()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tr.Observe(5000-i, reset)
				_ = tr.Wait(ctx)
			}(i)
		}
		wg.Wait()

		tr.mu.Lock()
		defer tr.mu.Unlock()
		assert.Equal(t, 4901, tr.remaining)
	})
}

func TestTracker_Block(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for a block even with a healthy budget", func(t *testing.T) {
		tr, rec := newTestTracker(WithFloor(50))
		tr.Observe(4000, time.Now().Add(time.Hour))
		tr.Block(time.Now().Add(3 * time.Second))

		require.NoError(t, tr.Wait(ctx))
		require.Len(t, rec.waits, 1)
		assert.Greater(t, rec.waits[0], 3*time.Second)
		assert.LessOrEqual(t, rec.waits[0], 3*time.Second+DefaultMargin)
	})

	t.Run("an earlier block does not shorten a later one", func(t *testing.T) {
		tr, rec := newTestTracker()
		tr.Block(time.Now().Add(10 * time.Second))
		tr.Block(time.Now().Add(time.Second))

		require.NoError(t, tr.Wait(ctx))
		require.Len(t, rec.waits, 1)
		assert.Greater(t, rec.waits[0], 9*time.Second)
	})

	t.Run("an expired block is a no-op", func(t *testing.T) {
		tr, rec := newTestTracker()
		tr.Block(time.Now().Add(-time.Second))

		require.NoError(t, tr.Wait(ctx))
		assert.Empty(t, rec.waits)
	})
}
