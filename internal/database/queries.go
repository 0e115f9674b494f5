package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	CountSnapshotsByRepoID(ctx context.Context, repoID string) (int64, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (Repository, error)
	InsertDiscoverySeed(ctx context.Context, fullName string) error
	InsertDiscoverySeeds(ctx context.Context, fullNames []string) error
	InsertSnapshot(ctx context.Context, arg InsertSnapshotParams) (RepoSnapshot, error)
	ListDiscoverySeeds(ctx context.Context, limit int32) ([]DiscoverySeed, error)
	ListSnapshotsByRepoID(ctx context.Context, arg ListSnapshotsByRepoIDParams) ([]RepoSnapshot, error)
	UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (Repository, error)
}

var _ Querier = (*Queries)(nil)

const repositoryColumns = `id, owner, name, full_name, url, description, language, stars, forks, watchers,
    open_issues_count, created_at, updated_at, last_harvested_at`

const snapshotColumns = `id, repo_id, stars, forks, watchers, open_issues_count, captured_at`

func scanRepository(row pgx.Row) (Repository, error) {
	var i Repository
	err := row.Scan(
		&i.ID,
		&i.Owner,
		&i.Name,
		&i.FullName,
		&i.Url,
		&i.Description,
		&i.Language,
		&i.Stars,
		&i.Forks,
		&i.Watchers,
		&i.OpenIssuesCount,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.LastHarvestedAt,
	)
	return i, err
}

func scanSnapshot(row pgx.Row) (RepoSnapshot, error) {
	var i RepoSnapshot
	err := row.Scan(
		&i.ID,
		&i.RepoID,
		&i.Stars,
		&i.Forks,
		&i.Watchers,
		&i.OpenIssuesCount,
		&i.CapturedAt,
	)
	return i, err
}

const upsertRepository = `-- name: UpsertRepository :one
INSERT INTO repositories (
    id, owner, name, full_name, url, description, language, stars, forks, watchers,
    open_issues_count, created_at, updated_at, last_harvested_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, clock_timestamp()
)
ON CONFLICT (id) DO UPDATE SET
    owner             = EXCLUDED.owner,
    name              = EXCLUDED.name,
    full_name         = EXCLUDED.full_name,
    url               = EXCLUDED.url,
    description       = EXCLUDED.description,
    language          = EXCLUDED.language,
    stars             = EXCLUDED.stars,
    forks             = EXCLUDED.forks,
    watchers          = EXCLUDED.watchers,
    open_issues_count = EXCLUDED.open_issues_count,
    updated_at        = EXCLUDED.updated_at,
    last_harvested_at = clock_timestamp()
RETURNING ` + repositoryColumns

type UpsertRepositoryParams struct {
	ID              string
	Owner           string
	Name            string
	FullName        string
	Url             string
	Description     pgtype.Text
	Language        pgtype.Text
	Stars           int32
	Forks           int32
	Watchers        int32
	OpenIssuesCount pgtype.Int4
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// UpsertRepository leaves id and created_at untouched on conflict.
func (q *Queries) UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (Repository, error) {
	row := q.db.QueryRow(ctx, upsertRepository,
		arg.ID,
		arg.Owner,
		arg.Name,
		arg.FullName,
		arg.Url,
		arg.Description,
		arg.Language,
		arg.Stars,
		arg.Forks,
		arg.Watchers,
		arg.OpenIssuesCount,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanRepository(row)
}

const insertSnapshot = `-- name: InsertSnapshot :one
INSERT INTO repo_snapshots (repo_id, stars, forks, watchers, open_issues_count)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + snapshotColumns

type InsertSnapshotParams struct {
	RepoID          string
	Stars           int32
	Forks           int32
	Watchers        int32
	OpenIssuesCount pgtype.Int4
}

func (q *Queries) InsertSnapshot(ctx context.Context, arg InsertSnapshotParams) (RepoSnapshot, error) {
	row := q.db.QueryRow(ctx, insertSnapshot,
		arg.RepoID,
		arg.Stars,
		arg.Forks,
		arg.Watchers,
		arg.OpenIssuesCount,
	)
	return scanSnapshot(row)
}

const insertDiscoverySeed = `-- name: InsertDiscoverySeed :exec
INSERT INTO discovery_seeds (full_name) VALUES ($1)
ON CONFLICT (full_name) DO NOTHING`

func (q *Queries) InsertDiscoverySeed(ctx context.Context, fullName string) error {
	_, err := q.db.Exec(ctx, insertDiscoverySeed, fullName)
	return err
}

// InsertDiscoverySeeds queues one insert per name in a single round trip.
func (q *Queries) InsertDiscoverySeeds(ctx context.Context, fullNames []string) error {
	if len(fullNames) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, name := range fullNames {
		batch.Queue(insertDiscoverySeed, name)
	}
	return q.db.SendBatch(ctx, batch).Close()
}

const listDiscoverySeeds = `-- name: ListDiscoverySeeds :many
SELECT full_name, discovered_at FROM discovery_seeds
ORDER BY discovered_at, full_name
LIMIT $1`

func (q *Queries) ListDiscoverySeeds(ctx context.Context, limit int32) ([]DiscoverySeed, error) {
	rows, err := q.db.Query(ctx, listDiscoverySeeds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DiscoverySeed
	for rows.Next() {
		var i DiscoverySeed
		if err := rows.Scan(&i.FullName, &i.DiscoveredAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRepositoryByFullName = `-- name: GetRepositoryByFullName :one
SELECT ` + repositoryColumns + ` FROM repositories
WHERE full_name = $1
ORDER BY last_harvested_at DESC
LIMIT 1`

func (q *Queries) GetRepositoryByFullName(ctx context.Context, fullName string) (Repository, error) {
	row := q.db.QueryRow(ctx, getRepositoryByFullName, fullName)
	return scanRepository(row)
}

const listSnapshotsByRepoID = `-- name: ListSnapshotsByRepoID :many
SELECT ` + snapshotColumns + ` FROM repo_snapshots
WHERE repo_id = $1
ORDER BY captured_at DESC, id DESC
LIMIT $2`

type ListSnapshotsByRepoIDParams struct {
	RepoID string
	Limit  int32
}

func (q *Queries) ListSnapshotsByRepoID(ctx context.Context, arg ListSnapshotsByRepoIDParams) ([]RepoSnapshot, error) {
	rows, err := q.db.Query(ctx, listSnapshotsByRepoID, arg.RepoID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RepoSnapshot
	for rows.Next() {
		i, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countSnapshotsByRepoID = `-- name: CountSnapshotsByRepoID :one
SELECT count(*) FROM repo_snapshots WHERE repo_id = $1`

func (q *Queries) CountSnapshotsByRepoID(ctx context.Context, repoID string) (int64, error) {
	row := q.db.QueryRow(ctx, countSnapshotsByRepoID, repoID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
