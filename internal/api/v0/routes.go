// Package v0 provides the REST API handlers for repository sync state.
package v0

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/depsync/internal/api/common"
	"github.com/stacklok/depsync/internal/store"
	"github.com/stacklok/depsync/internal/sync/coordinator"
	"github.com/stacklok/depsync/internal/versions"
)

// RunReporter exposes the most recent run
type RunReporter interface {
	LastRun() *coordinator.RunSummary
}

// RepositoryResponse summarizes one repository's records
type RepositoryResponse struct {
	Repository    string     `json:"repository"`
	Published     int        `json:"published"`
	Rejected      int        `json:"rejected"`
	LatestVersion string     `json:"latest_version,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

// VersionsResponse lists the known versions of a repository, oldest first
type VersionsResponse struct {
	Repository string   `json:"repository"`
	Published  []string `json:"published"`
	Rejected   []string `json:"rejected"`
}

// RunResponse describes the latest run
type RunResponse struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Aborted    bool             `json:"aborted"`
	Totals     map[string]int   `json:"totals"`
	Failures   []RunFailureItem `json:"failures,omitempty"`
}

// RunFailureItem is one failed repository pass
type RunFailureItem struct {
	Repository string `json:"repository"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// Routes serves the store and run state
type Routes struct {
	store store.VersionStore
	runs  RunReporter
}

// NewRoutes creates a new Routes instance
func NewRoutes(versionStore store.VersionStore, runs RunReporter) *Routes {
	return &Routes{store: versionStore, runs: runs}
}

// Router creates a new router for the v0 API
func Router(versionStore store.VersionStore, runs RunReporter) http.Handler {
	routes := NewRoutes(versionStore, runs)

	r := chi.NewRouter()
	r.Get("/repositories", routes.listRepositories)
	r.Get("/versions", routes.listVersions)
	r.Get("/runs/latest", routes.latestRun)
	return r
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(runs RunReporter) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(runs))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once the first run has completed
func readinessHandler(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if runs == nil || runs.LastRun() == nil {
			common.WriteErrorResponse(w, "no completed run yet", http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

// listRepositories handles GET /v0/repositories
func (rr *Routes) listRepositories(w http.ResponseWriter, r *http.Request) {
	summaries, err := rr.store.ListRepositories(r.Context())
	if err != nil {
		slog.Error("Failed to list repositories", "error", err)
		common.WriteErrorResponse(w, "Failed to list repositories", http.StatusInternalServerError)
		return
	}

	response := make([]RepositoryResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, RepositoryResponse{
			Repository:    s.Repository,
			Published:     len(s.Published),
			Rejected:      len(s.Rejected),
			LatestVersion: versions.Latest(s.Published),
			LastActivity:  s.LastActivity,
		})
	}
	common.WriteJSONResponse(w, response, http.StatusOK)
}

// listVersions handles GET /v0/versions?repository={id}
func (rr *Routes) listVersions(w http.ResponseWriter, r *http.Request) {
	repository := strings.TrimSpace(r.URL.Query().Get("repository"))
	if repository == "" {
		common.WriteErrorResponse(w, "repository query parameter is required", http.StatusBadRequest)
		return
	}

	published, err := rr.store.GetPublished(r.Context(), repository)
	if err != nil {
		slog.Error("Failed to read published versions", "repository", repository, "error", err)
		common.WriteErrorResponse(w, "Failed to read versions", http.StatusInternalServerError)
		return
	}
	rejected, err := rr.store.GetRejected(r.Context(), repository)
	if err != nil {
		slog.Error("Failed to read rejected versions", "repository", repository, "error", err)
		common.WriteErrorResponse(w, "Failed to read versions", http.StatusInternalServerError)
		return
	}

	if len(published) == 0 && len(rejected) == 0 {
		common.WriteErrorResponse(w, "repository has no records", http.StatusNotFound)
		return
	}

	common.WriteJSONResponse(w, VersionsResponse{
		Repository: repository,
		Published:  sortedVersions(published),
		Rejected:   sortedVersions(rejected),
	}, http.StatusOK)
}

// latestRun handles GET /v0/runs/latest
func (rr *Routes) latestRun(w http.ResponseWriter, _ *http.Request) {
	var summary *coordinator.RunSummary
	if rr.runs != nil {
		summary = rr.runs.LastRun()
	}
	if summary == nil {
		common.WriteErrorResponse(w, "no completed run yet", http.StatusNotFound)
		return
	}

	response := RunResponse{
		RunID:      summary.RunID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Aborted:    summary.Aborted,
		Totals:     map[string]int{},
	}
	for state, n := range summary.Totals() {
		response.Totals[string(state)] = n
	}
	for _, report := range summary.Failed() {
		response.Failures = append(response.Failures, RunFailureItem{
			Repository: report.Repository,
			Stage:      report.Err.Stage,
			Error:      report.Err.Error(),
		})
	}
	common.WriteJSONResponse(w, response, http.StatusOK)
}

func sortedVersions(set store.VersionSet) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	versions.Sort(out)
	return out
}
