package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Repository struct {
	ID              string             `json:"id"`
	Owner           string             `json:"owner"`
	Name            string             `json:"name"`
	FullName        string             `json:"full_name"`
	Url             string             `json:"url"`
	Description     pgtype.Text        `json:"description"`
	Language        pgtype.Text        `json:"language"`
	Stars           int32              `json:"stars"`
	Forks           int32              `json:"forks"`
	Watchers        int32              `json:"watchers"`
	OpenIssuesCount pgtype.Int4        `json:"open_issues_count"`
	CreatedAt       pgtype.Timestamptz `json:"created_at"`
	UpdatedAt       pgtype.Timestamptz `json:"updated_at"`
	LastHarvestedAt pgtype.Timestamptz `json:"last_harvested_at"`
}

type RepoSnapshot struct {
	ID              int64              `json:"id"`
	RepoID          string             `json:"repo_id"`
	Stars           int32              `json:"stars"`
	Forks           int32              `json:"forks"`
	Watchers        int32              `json:"watchers"`
	OpenIssuesCount pgtype.Int4        `json:"open_issues_count"`
	CapturedAt      pgtype.Timestamptz `json:"captured_at"`
}

type DiscoverySeed struct {
	FullName     string             `json:"full_name"`
	DiscoveredAt pgtype.Timestamptz `json:"discovered_at"`
}
