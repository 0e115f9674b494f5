// internal/model/models.go
package model

import (
	"database/sql"
	"time"
)

// Repository is the canonical shape of a GitHub repository's current state.
type Repository struct {
	ID              string `json:"id"` // GraphQL node id
	Owner           string
	Name            string
	FullName        string
	URL             string
	Description     *string
	Language        *string
	StarsCount      int
	ForksCount      int
	WatchersCount   int
	OpenIssuesCount *int
	RepoCreatedAt   time.Time
	RepoUpdatedAt   time.Time
	LastHarvestedAt sql.NullTime
}

// Snapshot is one immutable observation of a repository's popularity metrics.
type Snapshot struct {
	RepoID          string
	StarsCount      int
	ForksCount      int
	WatchersCount   int
	OpenIssuesCount *int
	CapturedAt      time.Time
}

// SnapshotOf derives the snapshot row that accompanies an upsert of r.
func SnapshotOf(r *Repository) Snapshot {
	return Snapshot{
		RepoID:          r.ID,
		StarsCount:      r.StarsCount,
		ForksCount:      r.ForksCount,
		WatchersCount:   r.WatchersCount,
		OpenIssuesCount: r.OpenIssuesCount,
	}
}

// DiscoverySeed records a full name selected for harvesting.
type DiscoverySeed struct {
	FullName     string
	DiscoveredAt time.Time
}
