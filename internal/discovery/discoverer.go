// Package discovery enumerates repositories through the search API. Search caps
// every query at 1000 reachable results, so the population is walked in
// creation-date windows that are each small enough to stay under the cap.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github-stats-harvester/internal/errors"
	"github-stats-harvester/internal/github"
)

const (
	// searchResultCap is the number of results the search API exposes per query.
	searchResultCap = 1000

	DefaultStepDays = 7
	DefaultPause    = 200 * time.Millisecond
)

// DefaultStart is the earliest creation date considered.
var DefaultStart = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Searcher runs one page of a repository search.
type Searcher interface {
	SearchRepositories(ctx context.Context, query, cursor string, first int) (*github.SearchPage, error)
}

// Options tunes the window walk. Zero values fall back to the package defaults.
type Options struct {
	Start    time.Time
	StepDays int
	Pause    time.Duration
	PageSize int
}

// Discoverer collects a deduplicated set of owner/name identifiers.
type Discoverer struct {
	searcher Searcher
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(searcher Searcher, logger *slog.Logger, opts Options) *Discoverer {
	if opts.Start.IsZero() {
		opts.Start = DefaultStart
	}
	if opts.StepDays <= 0 {
		opts.StepDays = DefaultStepDays
	}
	switch {
	case opts.Pause == 0:
		opts.Pause = DefaultPause
	case opts.Pause < 0:
		opts.Pause = 0
	}
	if opts.PageSize <= 0 {
		opts.PageSize = github.DefaultPageSize
	}
	return &Discoverer{
		searcher: searcher,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// collector accumulates unique names in discovery order until it is full.
type collector struct {
	target int
	seen   map[string]struct{}
	names  []string
}

func (c *collector) add(name string) {
	if c.full() {
		return
	}
	if _, dup := c.seen[name]; dup {
		return
	}
	c.seen[name] = struct{}{}
	c.names = append(c.names, name)
}

func (c *collector) full() bool { return len(c.names) >= c.target }

// Discover walks creation-date windows from the configured start until now and
// returns up to target unique full names. A window that keeps failing transiently
// is skipped; a permanent failure or cancellation aborts the walk.
func (d *Discoverer) Discover(ctx context.Context, target int) ([]string, error) {
	if target <= 0 {
		return nil, nil
	}
	col := &collector{target: target, seen: make(map[string]struct{}, target)}
	queue := Windows(d.opts.Start, d.now(), d.opts.StepDays)

	d.logger.Info("Starting discovery", "target", target, "windows", len(queue), "step_days", d.opts.StepDays)

	for len(queue) > 0 && !col.full() {
		w := queue[0]
		queue = queue[1:]

		halves, err := d.walkWindow(ctx, w, col)
		if err != nil {
			var permErr *apperrors.PermanentRequestError
			if errors.As(err, &permErr) || ctx.Err() != nil {
				return nil, fmt.Errorf("discover window %s: %w", w, err)
			}
			d.logger.Error("Abandoning window after transient failure", "window", w.String(), "error", err)
		}
		if len(halves) > 0 {
			queue = append(halves, queue...)
			continue
		}

		d.logger.Debug("Window done", "window", w.String(), "collected", len(col.names))
		if len(queue) > 0 && !col.full() {
			if err := sleepCtx(ctx, d.opts.Pause); err != nil {
				return nil, err
			}
		}
	}

	d.logger.Info("Discovery finished", "target", target, "discovered", len(col.names))
	return col.names, nil
}

// walkWindow pages through one window. When the window is denser than the search
// cap it returns its halves instead of walking it.
func (d *Discoverer) walkWindow(ctx context.Context, w Window, col *collector) ([]Window, error) {
	cursor := ""
	for page := 1; ; page++ {
		res, err := d.searcher.SearchRepositories(ctx, w.Query(), cursor, d.opts.PageSize)
		if err != nil {
			return nil, err
		}

		if page == 1 && res.RepositoryCount > searchResultCap {
			if halves, ok := w.Split(); ok {
				d.logger.Info("Window exceeds search cap, splitting",
					"window", w.String(), "repository_count", res.RepositoryCount)
				return halves, nil
			}
			d.logger.Warn("Window saturated, results beyond the search cap are unreachable",
				"window", w.String(),
				"repository_count", res.RepositoryCount,
				"unreachable", res.RepositoryCount-searchResultCap,
			)
		}

		for _, name := range res.FullNames {
			col.add(name)
		}
		if col.full() || !res.HasNextPage || res.EndCursor == "" {
			return nil, nil
		}
		cursor = res.EndCursor
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
