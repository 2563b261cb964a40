package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/otel"
	pkgsync "github.com/stacklok/depsync/internal/sync"
)

// ErrRunAborted is returned when a fatal repository failure ended the run
var ErrRunAborted = errors.New("run aborted")

// StagePacing marks a pass that never started because the run was interrupted
const StagePacing = "pacing"

// RepositoryReport is the outcome of one repository in a run
type RepositoryReport struct {
	Repository string
	Reason     pkgsync.Reason

	// Synced is false when the repository was not due
	Synced   bool
	Result   *pkgsync.Result
	Err      *pkgsync.Error
	Duration time.Duration
}

// RunSummary describes a completed run. Reports follow the repository order.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Reports    []RepositoryReport
	Aborted    bool
}

// Totals counts version outcomes across all repositories
func (s *RunSummary) Totals() map[pkgsync.State]int {
	totals := map[pkgsync.State]int{}
	for _, report := range s.Reports {
		if report.Result == nil {
			continue
		}
		for _, outcome := range report.Result.Outcomes {
			totals[outcome.State]++
		}
	}
	return totals
}

// Failed returns the reports of repositories whose pass failed
func (s *RunSummary) Failed() []RepositoryReport {
	var failed []RepositoryReport
	for _, report := range s.Reports {
		if report.Err != nil {
			failed = append(failed, report)
		}
	}
	return failed
}

// RunOnce processes the repositories in a bounded pool
func (c *defaultCoordinator) RunOnce(ctx context.Context, repos []config.Repository, force bool) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     c.newRunID(),
		StartedAt: time.Now(),
		Reports:   make([]RepositoryReport, len(repos)),
	}
	logger := slog.With("run_id", summary.RunID)
	logger.Info("Starting run", "repository_count", len(repos), "force", force)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)

	for i, repo := range repos {
		summary.Reports[i] = RepositoryReport{Repository: repo.ID}
		group.Go(func() error {
			// each worker owns its own slot of Reports
			report := c.syncRepository(groupCtx, logger, repo, force)
			summary.Reports[i] = report
			if report.Err != nil && report.Err.Fatal {
				return report.Err
			}
			return nil
		})
	}

	err := group.Wait()
	summary.FinishedAt = time.Now()
	summary.Aborted = err != nil
	c.setLastRun(summary)

	totals := summary.Totals()
	logger.Info("Run finished",
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"published", totals[pkgsync.StatePublished],
		"rejected", totals[pkgsync.StateRejected],
		"deferred", totals[pkgsync.StatePublishDeferred],
		"skipped", totals[pkgsync.StateSkipped],
		"failed_repositories", len(summary.Failed()),
		"aborted", summary.Aborted)

	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrRunAborted, err)
	}
	return summary, nil
}

// syncRepository runs one repository pass when it is due
func (c *defaultCoordinator) syncRepository(
	ctx context.Context, logger *slog.Logger, repo config.Repository, force bool,
) RepositoryReport {
	report := RepositoryReport{Repository: repo.ID}

	if ctx.Err() != nil {
		report.Err = &pkgsync.Error{Repository: repo.ID, Stage: StagePacing, Message: "run interrupted", Err: ctx.Err()}
		return report
	}

	report.Reason = c.manager.ShouldSync(ctx, repo, force)
	if !report.Reason.ShouldSync() {
		logger.Info("Repository does not need sync", "repository", repo.ID, "reason", report.Reason.String())
		return report
	}

	if err := c.limiter.Wait(ctx); err != nil {
		report.Err = &pkgsync.Error{Repository: repo.ID, Stage: StagePacing, Message: "run interrupted", Err: err}
		return report
	}

	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.repository", trace.WithAttributes(
		otel.AttrRepository.String(repo.ID),
		otel.AttrKind.String(repo.Kind),
		otel.AttrReason.String(report.Reason.String()),
	))
	defer span.End()

	logger.Info("Starting sync operation", "repository", repo.ID, "reason", report.Reason.String())
	startTime := time.Now()
	result, syncErr := c.manager.PerformSync(ctx, repo)
	report.Duration = time.Since(startTime)
	report.Synced = true
	report.Result = result
	report.Err = syncErr

	c.syncMetrics.RecordSyncDuration(ctx, repo.ID, report.Duration, syncErr == nil)

	if syncErr != nil {
		otel.RecordError(span, syncErr.Stage, syncErr)
		logger.Error("Sync failed",
			"repository", repo.ID,
			"stage", syncErr.Stage,
			"fatal", syncErr.Fatal,
			"error", syncErr)
		return report
	}

	logger.Info("Sync completed",
		"repository", repo.ID,
		"discovered", result.Discovered,
		"published", result.Count(pkgsync.StatePublished),
		"rejected", result.Count(pkgsync.StateRejected),
		"deferred", result.Count(pkgsync.StatePublishDeferred),
		"skipped", result.Count(pkgsync.StateSkipped),
		"duration", report.Duration)
	return report
}
