// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github-stats-harvester/internal/errutil"
	"github-stats-harvester/internal/harvest"
)

// Discoverer finds up to target repository identifiers.
type Discoverer interface {
	Discover(ctx context.Context, target int) ([]string, error)
}

// Harvester fetches and persists a list of identifiers.
type Harvester interface {
	HarvestAll(ctx context.Context, fullNames []string) harvest.Summary
}

// SeedStore records discovered identifiers so a later run can skip discovery.
type SeedStore interface {
	RecordSeeds(ctx context.Context, fullNames []string) error
	ListSeeds(ctx context.Context, limit int) ([]string, error)
}

// BudgetPrimer seeds the rate budget before the first request of a cycle.
type BudgetPrimer interface {
	PrimeRateBudget(ctx context.Context) error
}

// Options configures a Syncer.
type Options struct {
	Target int
	// Interval between cycles. Zero runs a single cycle.
	Interval time.Duration
	// ResumeFromSeeds reuses recorded seeds instead of discovering when enough exist.
	ResumeFromSeeds bool
}

// CycleReport summarises one discover and harvest cycle.
type CycleReport struct {
	RunID      string
	Discovered int
	Resumed    bool
	Harvest    harvest.Summary
}

// Syncer orchestrates discovery and harvesting.
type Syncer struct {
	discoverer Discoverer
	harvester  Harvester
	seeds      SeedStore
	primer     BudgetPrimer
	logger     *slog.Logger
	opts       Options
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(discoverer Discoverer, harvester Harvester, seeds SeedStore, primer BudgetPrimer, logger *slog.Logger, opts Options) *Syncer {
	return &Syncer{
		discoverer: discoverer,
		harvester:  harvester,
		seeds:      seeds,
		primer:     primer,
		logger:     logger,
		opts:       opts,
	}
}

// Start runs the first cycle immediately. With a zero interval it returns after
// that cycle; otherwise it keeps running cycles on a ticker until ctx is done.
func (s *Syncer) Start(ctx context.Context) error {
	s.logger.Info("Starting syncer", "interval", s.opts.Interval.String(), "target", s.opts.Target, "resume_from_seeds", s.opts.ResumeFromSeeds)

	_, err := s.RunCycle(ctx)
	if s.opts.Interval <= 0 {
		return err
	}
	s.logCycleError(ctx, err)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := s.RunCycle(ctx)
			s.logCycleError(ctx, err)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (s *Syncer) logCycleError(ctx context.Context, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	errutil.HandleError(ctx, s.logger, "Sync cycle failed", err)
}

// RunCycle performs one pass: prime the budget, collect identifiers, harvest them.
// Only a discovery abort is returned as an error; per-repository failures are
// counted in the report.
func (s *Syncer) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", report.RunID)
	logger.Info("Starting new sync cycle")

	if err := s.primer.PrimeRateBudget(ctx); err != nil {
		logger.Warn("Failed to prime rate budget, continuing with an unknown budget", "error", err)
	}

	names, resumed, err := s.collect(ctx, logger)
	if err != nil {
		return report, fmt.Errorf("discovery aborted: %w", err)
	}
	report.Discovered = len(names)
	report.Resumed = resumed

	if len(names) == 0 {
		logger.Info("Nothing to harvest")
		return report, nil
	}

	report.Harvest = s.harvester.HarvestAll(ctx, names)
	logger.Info("Sync cycle finished",
		"discovered", report.Discovered,
		"resumed", report.Resumed,
		"succeeded", report.Harvest.Succeeded,
		"failed", report.Harvest.Failed,
		"skipped", report.Harvest.Skipped,
	)
	return report, nil
}

// collect returns the identifiers to harvest and whether they came from seeds.
func (s *Syncer) collect(ctx context.Context, logger *slog.Logger) ([]string, bool, error) {
	if s.opts.ResumeFromSeeds && s.opts.Target > 0 {
		seeds, err := s.seeds.ListSeeds(ctx, s.opts.Target)
		switch {
		case err != nil:
			logger.Warn("Failed to load discovery seeds, discovering instead", "error", err)
		case len(seeds) >= s.opts.Target:
			logger.Info("Resuming from recorded seeds", "count", len(seeds))
			return seeds, true, nil
		default:
			logger.Info("Not enough recorded seeds, discovering", "recorded", len(seeds), "target", s.opts.Target)
		}
	}

	names, err := s.discoverer.Discover(ctx, s.opts.Target)
	if err != nil {
		return nil, false, err
	}
	logger.Info("Collected repositories to harvest", "count", len(names))

	if len(names) > 0 {
		if err := s.seeds.RecordSeeds(ctx, names); err != nil {
			errutil.HandleError(ctx, logger, "Failed to record discovery seeds", err)
		}
	}
	return names, false, nil
}
