//go:build integration

// cmd/harvester/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (string, func()) {
	// Start a postgres container
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	teardown := func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}
	return connStr, teardown
}

// fakeGitHub serves the search and repository queries plus the REST rate_limit
// endpoint. Star counts grow by one on every repository fetch.
func fakeGitHub(t *testing.T) (*httptest.Server, *int64) {
	var fetches int64
	resetAt := time.Now().Add(time.Hour).UTC()
	rateLimit := map[string]any{"limit": 5000, "cost": 1, "remaining": 4900, "resetAt": resetAt.Format(time.RFC3339)}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/rate_limit") {
			fmt.Fprintf(w, `{"resources":{"graphql":{"limit":5000,"remaining":4950,"reset":%d}}}`, resetAt.Unix())
			return
		}

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var data map[string]any
		if strings.Contains(req.Query, "search(") {
			data = map[string]any{
				"search": map[string]any{
					"repositoryCount": 2,
					"pageInfo":        map[string]any{"hasNextPage": false, "endCursor": nil},
					"nodes": []any{
						map[string]any{"name": "Hello-World", "owner": map[string]any{"login": "octocat"}},
						map[string]any{"name": "Spoon-Knife", "owner": map[string]any{"login": "octocat"}},
					},
				},
				"rateLimit": rateLimit,
			}
		} else {
			n := atomic.AddInt64(&fetches, 1)
			owner, name := req.Variables["owner"].(string), req.Variables["name"].(string)
			data = map[string]any{
				"repository": map[string]any{
					"id":              "R_" + name,
					"name":            name,
					"url":             "https://github.com/" + owner + "/" + name,
					"description":     nil,
					"primaryLanguage": map[string]any{"name": "Go"},
					"owner":           map[string]any{"login": owner},
					"stargazerCount":  100 + n,
					"forkCount":       3,
					"watchers":        map[string]any{"totalCount": 7},
					"createdAt":       "2011-01-26T19:01:12Z",
					"updatedAt":       "2024-01-01T00:00:00Z",
				},
				"rateLimit": rateLimit,
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	})

	return httptest.NewServer(handler), &fetches
}

func TestHarvester_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	server, fetches := fakeGitHub(t)
	defer server.Close()

	t.Setenv("DB_URL", connStr)
	t.Setenv("GITHUB_TOKEN", "ghp_integration")
	t.Setenv("GITHUB_GRAPHQL_URL", server.URL+"/graphql")
	t.Setenv("GITHUB_API_URL", server.URL+"/")
	t.Setenv("WINDOW_PAUSE", "-1ms")
	t.Setenv("LOG_LEVEL", "debug")

	// Two passes: the second one re-samples the same repositories.
	require.NoError(t, run([]string{"--target", "2", "--concurrency", "2"}))
	require.NoError(t, run([]string{"--target", "2", "--concurrency", "2"}))
	assert.EqualValues(t, 4, atomic.LoadInt64(fetches))

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer dbpool.Close()

	var repos, snapshots, seeds int
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT count(*) FROM repositories").Scan(&repos))
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT count(*) FROM repo_snapshots").Scan(&snapshots))
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT count(*) FROM discovery_seeds").Scan(&seeds))
	assert.Equal(t, 2, repos)
	assert.Equal(t, 4, snapshots)
	assert.Equal(t, 2, seeds)

	var stars int
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT stars FROM repositories WHERE id = 'R_Hello-World'").Scan(&stars))
	assert.Greater(t, stars, 102, "current state holds the latest harvest")

	t.Run("resume from seeds skips discovery", func(t *testing.T) {
		t.Setenv("RESUME_FROM_SEEDS", "true")
		require.NoError(t, run([]string{"--target", "2"}))

		require.NoError(t, dbpool.QueryRow(ctx, "SELECT count(*) FROM repo_snapshots").Scan(&snapshots))
		assert.Equal(t, 6, snapshots)
	})
}
