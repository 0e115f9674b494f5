// internal/store/store.go
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/m-mizutani/goerr/v2"

	"github-stats-harvester/internal/database"
	"github-stats-harvester/internal/model"
)

// Pool runs statements and opens transactions; *pgxpool.Pool satisfies it.
type Pool interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists harvested repositories. Every method is a single statement, so
// each call is atomic on its own; Persist groups the per-item writes in one
// transaction.
type Store struct {
	q       database.Querier
	queries *database.Queries
	pool    Pool
	logger  *slog.Logger
}

// New creates a Store on top of a Querier. A Store built this way cannot Persist.
func New(q database.Querier, logger *slog.Logger) *Store {
	return &Store{q: q, logger: logger}
}

// NewWithPool creates a Store that can also run transactions.
func NewWithPool(pool Pool, logger *slog.Logger) *Store {
	queries := database.New(pool)
	return &Store{q: queries, queries: queries, pool: pool, logger: logger}
}

// Persist upserts the repository and appends its snapshot in one transaction, so
// a failure in either write leaves neither behind.
func (s *Store) Persist(ctx context.Context, repo *model.Repository) error {
	if s.pool == nil {
		return goerr.New("store has no pool to run transactions on", goerr.V("repo_id", repo.ID))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "begin transaction", goerr.V("repo_id", repo.ID))
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	harvested := repo.LastHarvestedAt
	txStore := &Store{q: s.queries.WithTx(tx), logger: s.logger}
	if err := txStore.Upsert(ctx, repo); err != nil {
		return err
	}
	if err := txStore.AppendSnapshot(ctx, model.SnapshotOf(repo)); err != nil {
		repo.LastHarvestedAt = harvested
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		repo.LastHarvestedAt = harvested
		return goerr.Wrap(err, "commit transaction", goerr.V("repo_id", repo.ID))
	}
	return nil
}

// Upsert inserts the repository or overwrites its mutable fields, stamping the
// harvest time. The stored harvest time is copied back into repo.
func (s *Store) Upsert(ctx context.Context, repo *model.Repository) error {
	row, err := s.q.UpsertRepository(ctx, database.UpsertRepositoryParams{
		ID:              repo.ID,
		Owner:           repo.Owner,
		Name:            repo.Name,
		FullName:        repo.FullName,
		Url:             repo.URL,
		Description:     toText(repo.Description),
		Language:        toText(repo.Language),
		Stars:           int32(repo.StarsCount),
		Forks:           int32(repo.ForksCount),
		Watchers:        int32(repo.WatchersCount),
		OpenIssuesCount: toInt4(repo.OpenIssuesCount),
		CreatedAt:       toTimestamptz(repo.RepoCreatedAt),
		UpdatedAt:       toTimestamptz(repo.RepoUpdatedAt),
	})
	if err != nil {
		return goerr.Wrap(err, "upsert repository",
			goerr.V("repo_id", repo.ID),
			goerr.V("full_name", repo.FullName),
		)
	}

	repo.LastHarvestedAt.Time = row.LastHarvestedAt.Time
	repo.LastHarvestedAt.Valid = row.LastHarvestedAt.Valid
	return nil
}

// AppendSnapshot always inserts a new history row.
func (s *Store) AppendSnapshot(ctx context.Context, snap model.Snapshot) error {
	_, err := s.q.InsertSnapshot(ctx, database.InsertSnapshotParams{
		RepoID:          snap.RepoID,
		Stars:           int32(snap.StarsCount),
		Forks:           int32(snap.ForksCount),
		Watchers:        int32(snap.WatchersCount),
		OpenIssuesCount: toInt4(snap.OpenIssuesCount),
	})
	if err != nil {
		return goerr.Wrap(err, "insert snapshot", goerr.V("repo_id", snap.RepoID))
	}
	return nil
}

// RecordSeed stores a discovered full name; recording it again is a no-op.
func (s *Store) RecordSeed(ctx context.Context, fullName string) error {
	if err := s.q.InsertDiscoverySeed(ctx, fullName); err != nil {
		return goerr.Wrap(err, "record discovery seed", goerr.V("full_name", fullName))
	}
	return nil
}

// RecordSeeds records many seeds in one batch.
func (s *Store) RecordSeeds(ctx context.Context, fullNames []string) error {
	if err := s.q.InsertDiscoverySeeds(ctx, fullNames); err != nil {
		return goerr.Wrap(err, "record discovery seeds", goerr.V("count", len(fullNames)))
	}
	s.logger.Debug("Recorded discovery seeds", "count", len(fullNames))
	return nil
}

// ListSeeds returns up to limit recorded seeds, oldest first.
func (s *Store) ListSeeds(ctx context.Context, limit int) ([]string, error) {
	seeds, err := s.q.ListDiscoverySeeds(ctx, int32(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "list discovery seeds", goerr.V("limit", limit))
	}
	names := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		names = append(names, seed.FullName)
	}
	return names, nil
}

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toInt4(n *int) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
