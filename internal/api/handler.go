// internal/api/handler.go
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-stats-harvester/internal/database"
)

const (
	defaultSnapshotLimit = 100
	maxSnapshotLimit     = 1000
)

// Handler is the container for API dependencies.
type Handler struct {
	db     database.Querier
	logger *slog.Logger
}

// snapshotsResponse is the body of the snapshot history endpoint.
type snapshotsResponse struct {
	RepoID    string                  `json:"repo_id"`
	FullName  string                  `json:"full_name"`
	Total     int64                   `json:"total"`
	Snapshots []database.RepoSnapshot `json:"snapshots"`
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db database.Querier, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{name}", h.getRepository)
		r.Get("/repos/{owner}/{name}/snapshots", h.getSnapshots)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getRepository returns the current state of a harvested repository.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepository(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, repo)
}

// getSnapshots returns the newest snapshots of a repository, newest first.
// GET /v1/repos/{owner}/{name}/snapshots?limit=N
func (h *Handler) getSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := defaultSnapshotLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 || n > maxSnapshotLimit {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
			return
		}
		limit = n
	}

	repo, ok := h.lookupRepository(w, r)
	if !ok {
		return
	}

	snapshots, err := h.db.ListSnapshotsByRepoID(r.Context(), database.ListSnapshotsByRepoIDParams{
		RepoID: repo.ID,
		Limit:  int32(limit),
	})
	if err != nil {
		h.logger.Error("Failed to list snapshots", "repo_id", repo.ID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if snapshots == nil {
		snapshots = []database.RepoSnapshot{}
	}

	total, err := h.db.CountSnapshotsByRepoID(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to count snapshots", "repo_id", repo.ID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, snapshotsResponse{
		RepoID:    repo.ID,
		FullName:  repo.FullName,
		Total:     total,
		Snapshots: snapshots,
	})
}

// lookupRepository resolves the {owner}/{name} path parameters. On failure the
// response has already been written.
func (h *Handler) lookupRepository(w http.ResponseWriter, r *http.Request) (database.Repository, bool) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	repo, err := h.db.GetRepositoryByFullName(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return database.Repository{}, false
		}
		h.logger.Error("Failed to get repository", "full_name", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return database.Repository{}, false
	}
	return repo, true
}
