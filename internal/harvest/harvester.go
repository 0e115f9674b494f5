// internal/harvest/harvester.go
package harvest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "github-stats-harvester/internal/errors"
	"github-stats-harvester/internal/errutil"
	"github-stats-harvester/internal/model"
)

const (
	// DefaultConcurrency is the number of detail fetches in flight at once.
	DefaultConcurrency = 6
	// DefaultBatchSize bounds the number of outstanding tasks.
	DefaultBatchSize = 2000
)

// Fetcher fetches the authoritative detail of one repository.
type Fetcher interface {
	GetRepository(ctx context.Context, owner, name string) (*model.Repository, error)
}

// Store persists current state and history. Persist writes both or neither.
type Store interface {
	Persist(ctx context.Context, repo *model.Repository) error
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

// Summary counts the outcome of a HarvestAll call.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Harvester fetches and persists repositories in bounded concurrent batches.
type Harvester struct {
	fetcher     Fetcher
	store       Store
	logger      *slog.Logger
	concurrency int
	batchSize   int
}

// NewHarvester creates a Harvester. Non-positive limits fall back to the defaults.
func NewHarvester(fetcher Fetcher, store Store, logger *slog.Logger, concurrency, batchSize int) *Harvester {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Harvester{
		fetcher:     fetcher,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

// HarvestAll harvests every identifier. Batches run one after another; inside a
// batch at most h.concurrency repositories are in flight. A failing repository is
// logged and counted, never aborting its siblings. Cancellation is honoured between
// batches; the remaining identifiers, and in-flight ones cut short by it, are
// counted as skipped.
func (h *Harvester) HarvestAll(ctx context.Context, fullNames []string) Summary {
	var sum Summary
	h.logger.Info("Starting harvest", "repositories", len(fullNames), "concurrency", h.concurrency, "batch_size", h.batchSize)

	for start := 0; start < len(fullNames); start += h.batchSize {
		if ctx.Err() != nil {
			sum.Skipped += len(fullNames) - start
			h.logger.Info("Harvest interrupted between batches", "reason", ctx.Err(), "skipped", sum.Skipped)
			break
		}

		end := min(start+h.batchSize, len(fullNames))
		ok, failed, skipped := h.harvestBatch(ctx, fullNames[start:end])
		sum.Succeeded += ok
		sum.Failed += failed
		sum.Skipped += skipped
		h.logger.Info("Finished batch", "from", start, "to", end, "succeeded", ok, "failed", failed, "skipped", skipped)
	}

	h.logger.Info("Harvest finished", "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum
}

func (h *Harvester) harvestBatch(ctx context.Context, batch []string) (int, int, int) {
	var succeeded, failed, skipped int64

	// Tasks never return an error, so a failure can't cancel its siblings.
	var g errgroup.Group
	g.SetLimit(h.concurrency)

	for _, fullName := range batch {
		g.Go(func() error {
			err := h.harvestOne(ctx, fullName)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case errors.Is(err, context.Canceled):
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&failed, 1)
				errutil.HandleError(ctx, h.logger, "Failed to harvest repository", err, "full_name", fullName)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(succeeded), int(failed), int(skipped)
}

// harvestOne runs the fetch, map and persist sequence for a single repository.
func (h *Harvester) harvestOne(ctx context.Context, fullName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperrors.ItemHarvestFailure{FullName: fullName, Stage: "panic", Err: errutil.FromPanic(r)}
		}
	}()

	id, err := ParseRepoIdentifier(fullName)
	if err != nil {
		return &apperrors.ItemHarvestFailure{FullName: fullName, Stage: "parse", Err: err}
	}

	repo, err := h.fetcher.GetRepository(ctx, id.Owner, id.Name)
	if err != nil {
		return &apperrors.ItemHarvestFailure{FullName: fullName, Stage: "fetch", Err: err}
	}

	if err := h.store.Persist(ctx, repo); err != nil {
		return &apperrors.ItemHarvestFailure{FullName: fullName, Stage: "persist", Err: err}
	}

	h.logger.Debug("Harvested repository", "full_name", repo.FullName, "stars", repo.StarsCount, "forks", repo.ForksCount, "watchers", repo.WatchersCount)
	return nil
}

// ParseRepoIdentifier splits an "owner/name" string.
func ParseRepoIdentifier(fullName string) (RepoIdentifier, error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoIdentifier{}, &apperrors.ErrInvalidRepoFormat{Repo: fullName}
	}
	return RepoIdentifier{Owner: parts[0], Name: parts[1]}, nil
}
