package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-stats-harvester/internal/database"
	"github-stats-harvester/internal/database/dbmock"
)

func setupRouter(t *testing.T) (http.Handler, *dbmock.MockQuerier) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mockQ := new(dbmock.MockQuerier)
	return NewRouter(mockQ, logger), mockQ
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

var helloWorld = database.Repository{
	ID:       "R_1",
	Owner:    "octocat",
	Name:     "Hello-World",
	FullName: "octocat/Hello-World",
	Url:      "https://github.com/octocat/Hello-World",
	Language: pgtype.Text{String: "Go", Valid: true},
	Stars:    42,
	Forks:    7,
	Watchers: 9,
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)

	rec := serve(router, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetRepository(t *testing.T) {
	t.Run("returns the stored state", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "octocat/Hello-World").Return(helloWorld, nil).Once()

		rec := serve(router, "/v1/repos/octocat/Hello-World")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "R_1", body["id"])
		assert.Equal(t, "Go", body["language"])
		assert.EqualValues(t, 42, body["stars"])
		assert.Nil(t, body["description"])
		assert.Nil(t, body["open_issues_count"])
	})

	t.Run("unknown repository is a 404", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "nobody/nothing").Return(database.Repository{}, pgx.ErrNoRows).Once()

		rec := serve(router, "/v1/repos/nobody/nothing")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Repository not found"}`, rec.Body.String())
	})

	t.Run("database failure is a 500", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "octocat/Hello-World").Return(database.Repository{}, errors.New("db down")).Once()

		rec := serve(router, "/v1/repos/octocat/Hello-World")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetSnapshots(t *testing.T) {
	snaps := []database.RepoSnapshot{
		{ID: 2, RepoID: "R_1", Stars: 42, Forks: 7, Watchers: 9},
		{ID: 1, RepoID: "R_1", Stars: 10, Forks: 2, Watchers: 5},
	}

	t.Run("uses the default limit", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "octocat/Hello-World").Return(helloWorld, nil).Once()
		mockQ.On("ListSnapshotsByRepoID", mock.Anything, database.ListSnapshotsByRepoIDParams{RepoID: "R_1", Limit: 100}).Return(snaps, nil).Once()
		mockQ.On("CountSnapshotsByRepoID", mock.Anything, "R_1").Return(int64(2), nil).Once()

		rec := serve(router, "/v1/repos/octocat/Hello-World/snapshots")

		require.Equal(t, http.StatusOK, rec.Code)
		var body snapshotsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "R_1", body.RepoID)
		assert.Equal(t, int64(2), body.Total)
		require.Len(t, body.Snapshots, 2)
		assert.EqualValues(t, 42, body.Snapshots[0].Stars)
		mockQ.AssertExpectations(t)
	})

	t.Run("honours an explicit limit", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "octocat/Hello-World").Return(helloWorld, nil).Once()
		mockQ.On("ListSnapshotsByRepoID", mock.Anything, database.ListSnapshotsByRepoIDParams{RepoID: "R_1", Limit: 1}).Return(snaps[:1], nil).Once()
		mockQ.On("CountSnapshotsByRepoID", mock.Anything, "R_1").Return(int64(2), nil).Once()

		rec := serve(router, "/v1/repos/octocat/Hello-World/snapshots?limit=1")

		require.Equal(t, http.StatusOK, rec.Code)
		mockQ.AssertExpectations(t)
	})

	t.Run("empty history is an empty list", func(t *testing.T) {
		router, mockQ := setupRouter(t)
		mockQ.On("GetRepositoryByFullName", mock.Anything, "octocat/Hello-World").Return(helloWorld, nil).Once()
		mockQ.On("ListSnapshotsByRepoID", mock.Anything, mock.Anything).Return([]database.RepoSnapshot(nil), nil).Once()
		mockQ.On("CountSnapshotsByRepoID", mock.Anything, "R_1").Return(int64(0), nil).Once()

		rec := serve(router, "/v1/repos/octocat/Hello-World/snapshots")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"snapshots":[]`)
	})

	for _, limit := range []string{"0", "1001", "abc", "-5"} {
		t.Run("rejects limit "+limit, func(t *testing.T) {
			router, mockQ := setupRouter(t)

			rec := serve(router, "/v1/repos/octocat/Hello-World/snapshots?limit="+limit)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			mockQ.AssertNotCalled(t, "GetRepositoryByFullName", mock.Anything, mock.Anything)
		})
	}
}
