package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/stacklok/depsync/internal/artifact"
	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/naming"
	"github.com/stacklok/depsync/internal/npm"
	"github.com/stacklok/depsync/internal/otel"
	"github.com/stacklok/depsync/internal/publish"
	"github.com/stacklok/depsync/internal/sources"
	"github.com/stacklok/depsync/internal/store"
	"github.com/stacklok/depsync/internal/telemetry"
)

const defaultFreshnessWindow = time.Hour

// Components are the collaborators of a pass
type Components struct {
	Discoverers sources.DiscovererFactory
	Normalizer  *naming.Normalizer
	Store       store.VersionStore
	Fetcher     Fetcher
	Extractor   Extractor
	Installer   Installer
	Workspace   Workspace
	Publisher   publish.Publisher
}

// Option configures the default manager
type Option func(*defaultSyncManager)

// WithFreshnessWindow sets how long store activity keeps a repository from syncing
func WithFreshnessWindow(window time.Duration) Option {
	return func(m *defaultSyncManager) {
		m.freshnessWindow = window
	}
}

// WithPrepareConcurrency sets how many versions may be prepared ahead of publishing
func WithPrepareConcurrency(n int) Option {
	return func(m *defaultSyncManager) {
		if n > 0 {
			m.prepareConcurrency = n
		}
	}
}

// WithAbortOnExtractionError makes a corrupt archive end the run
func WithAbortOnExtractionError(abort bool) Option {
	return func(m *defaultSyncManager) {
		m.abortOnExtraction = abort
	}
}

// WithDryRun reports what would be processed without fetching, publishing or writing
func WithDryRun(dryRun bool) Option {
	return func(m *defaultSyncManager) {
		m.dryRun = dryRun
	}
}

// WithSyncMetrics records version outcomes
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultSyncManager) {
		m.metrics = metrics
	}
}

// WithTracerProvider traces each version's preparation and publish
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(m *defaultSyncManager) {
		if provider != nil {
			m.tracer = provider.Tracer(telemetry.SyncTracerName)
		}
	}
}

// WithClock overrides the time source used for records and freshness checks
func WithClock(now func() time.Time) Option {
	return func(m *defaultSyncManager) {
		m.now = now
	}
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	Components

	freshnessWindow    time.Duration
	prepareConcurrency int
	abortOnExtraction  bool
	dryRun             bool
	metrics            *telemetry.SyncMetrics
	tracer             trace.Tracer
	now                func() time.Time
}

var _ Manager = (*defaultSyncManager)(nil)

// NewDefaultSyncManager creates a new manager
func NewDefaultSyncManager(components Components, opts ...Option) Manager {
	m := &defaultSyncManager{
		Components:         components,
		freshnessWindow:    defaultFreshnessWindow,
		prepareConcurrency: 1,
		tracer:             noop.NewTracerProvider().Tracer(telemetry.SyncTracerName),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldSync decides from the repository's last store activity
func (m *defaultSyncManager) ShouldSync(ctx context.Context, repo config.Repository, force bool) Reason {
	if force {
		return ReasonForced
	}

	last, err := m.Store.LastActivity(ctx, repo.ID)
	if err != nil {
		slog.Warn("Failed to read last activity, syncing anyway", "repository", repo.ID, "error", err)
		return ReasonErrorCheckingActivity
	}
	if last == nil {
		return ReasonNeverSynced
	}
	if m.now().Sub(*last) < m.freshnessWindow {
		return ReasonRecentlySynced
	}
	return ReasonFreshnessWindowElapsed
}

// workItem is a candidate that survived filtering
type workItem struct {
	raw      string
	version  string
	locator  string
	prepared chan preparation
}

// preparation is the result of fetch and extract, or install
type preparation struct {
	state State
	path  string
	lease *artifact.Lease
	err   error

	// slot is true when the item holds a preparation window slot
	slot bool
}

// PerformSync runs one pass over the repository
func (m *defaultSyncManager) PerformSync(ctx context.Context, repo config.Repository) (*Result, *Error) {
	discoverer, err := m.Discoverers.CreateDiscoverer(repo.Kind)
	if err != nil {
		return nil, &Error{Repository: repo.ID, Stage: StageDiscovery, Message: "no discoverer for repository kind", Err: err}
	}

	candidates, err := discoverer.ListVersions(ctx, repo)
	if err != nil {
		return nil, &Error{Repository: repo.ID, Stage: StageDiscovery, Message: "failed to discover versions", Err: err}
	}

	published, err := m.Store.GetPublished(ctx, repo.ID)
	if err != nil {
		return nil, &Error{Repository: repo.ID, Stage: StageStore, Message: "failed to read published versions", Err: err}
	}
	rejected, err := m.Store.GetRejected(ctx, repo.ID)
	if err != nil {
		return nil, &Error{Repository: repo.ID, Stage: StageStore, Message: "failed to read rejected versions", Err: err}
	}

	name := m.Normalizer.RepositoryName(repo.ID)
	result := &Result{Repository: repo.ID, Kind: repo.Kind, Name: name, Discovered: len(candidates)}

	seen := store.VersionSet{}
	var items []*workItem
	for _, candidate := range candidates {
		version := m.Normalizer.VersionName(name, candidate.Name)
		switch {
		case version == "":
			m.record(ctx, result, VersionOutcome{
				Raw: candidate.Name, State: StateSkipped, Err: errors.New("empty version name"),
			})
		case published.Has(version), rejected.Has(version), seen.Has(version):
			m.record(ctx, result, VersionOutcome{Raw: candidate.Name, Version: version, State: StateFiltered})
		default:
			seen.Add(version)
			items = append(items, &workItem{
				raw:      candidate.Name,
				version:  version,
				locator:  candidate.Locator,
				prepared: make(chan preparation, 1),
			})
		}
	}

	slog.Info("Filtered candidate versions",
		"repository", repo.ID,
		"name", name,
		"discovered", len(candidates),
		"remaining", len(items))

	if m.dryRun {
		for _, item := range items {
			m.record(ctx, result, VersionOutcome{Raw: item.raw, Version: item.version, State: StatePending})
		}
		return result, nil
	}

	syncErr := m.process(ctx, repo, name, items, result)
	m.recordKnownVersions(ctx, repo.ID, published, rejected, result)
	return result, syncErr
}

// process prepares items inside the window and publishes them in order
func (m *defaultSyncManager) process(
	ctx context.Context, repo config.Repository, name string, items []*workItem, result *Result,
) *Error {
	prepareCtx, cancelPrepare := context.WithCancel(ctx)
	defer cancelPrepare()

	window := semaphore.NewWeighted(int64(m.prepareConcurrency))
	go func() {
		for _, item := range items {
			if err := window.Acquire(prepareCtx, 1); err != nil {
				item.prepared <- preparation{state: StateSkipped, err: err}
				continue
			}
			go func() {
				p := m.prepare(prepareCtx, repo, name, item)
				p.slot = true
				item.prepared <- p
			}()
		}
	}()

	var syncErr *Error
	for _, item := range items {
		p := <-item.prepared

		switch {
		case syncErr != nil:
			// draining after an abort
			p.state, p.err = StateSkipped, syncErr
		case p.state == StateExtracted && ctx.Err() != nil:
			p.state, p.err = StateSkipped, ctx.Err()
		}

		outcome := m.finish(ctx, repo, name, item, p)
		m.record(ctx, result, outcome)

		var extractErr *artifact.ExtractionError
		if syncErr == nil && m.abortOnExtraction && errors.As(outcome.Err, &extractErr) {
			syncErr = &Error{
				Repository: repo.ID,
				Stage:      StageExtraction,
				Message:    "aborting on extraction failure",
				Err:        outcome.Err,
				Fatal:      true,
			}
			cancelPrepare()
		}

		if p.lease != nil {
			if err := p.lease.Release(); err != nil {
				slog.Warn("Failed to release working directory", "path", p.lease.Path, "error", err)
			}
		}
		if p.slot {
			window.Release(1)
		}
	}
	return syncErr
}

// prepare produces the directory to publish for one item
func (m *defaultSyncManager) prepare(ctx context.Context, repo config.Repository, name string, item *workItem) preparation {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.prepare", otel.VersionAttributes(repo.ID, item.version))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return preparation{state: StateSkipped, err: err}
	}

	lease, err := m.Workspace.Acquire(name, item.version)
	if err != nil {
		return preparation{state: StateSkipped, err: err}
	}

	if !repo.IsSourceControl() {
		path, err := m.Installer.Install(ctx, repo.ID, item.raw, lease.Path)
		if err != nil {
			var validationErr *npm.ValidationError
			if errors.As(err, &validationErr) {
				return preparation{state: StateRejected, lease: lease, err: err}
			}
			return preparation{state: StateSkipped, lease: lease, err: err}
		}
		return preparation{state: StateExtracted, lease: lease, path: path}
	}

	slog.Debug("Fetching archive", "repository", repo.ID, "version", item.version, "locator", item.locator)
	data, err := m.Fetcher.Fetch(ctx, item.locator)
	if err != nil {
		return preparation{state: StateSkipped, lease: lease, err: err}
	}

	if err := m.Extractor.Extract(data, lease.Path); err != nil {
		return preparation{
			state: StateSkipped,
			lease: lease,
			err:   &artifact.ExtractionError{Name: name, Version: item.version, Err: err},
		}
	}
	return preparation{state: StateExtracted, lease: lease, path: lease.Path}
}

// finish publishes a prepared item and writes its terminal record
func (m *defaultSyncManager) finish(
	ctx context.Context, repo config.Repository, name string, item *workItem, p preparation,
) VersionOutcome {
	outcome := VersionOutcome{Raw: item.raw, Version: item.version, State: p.state, Err: p.err}
	// an in-flight publish and its record outlive an interrupt
	writeCtx := context.WithoutCancel(ctx)

	switch p.state {
	case StateRejected:
		if err := m.Store.PutRejected(writeCtx, repo.ID, item.version, m.now()); err != nil {
			outcome.State = StateSkipped
			outcome.Err = fmt.Errorf("failed to record rejected version: %w", err)
		}
		return outcome

	case StateExtracted:
		spanCtx, span := otel.StartSpan(writeCtx, m.tracer, "sync.publish", otel.VersionAttributes(repo.ID, item.version))
		defer span.End()

		res, err := m.Publisher.Publish(spanCtx, publish.Request{Name: name, Version: item.version, Path: p.path})
		if err != nil {
			outcome.State = StatePublishDeferred
			outcome.Err = err
			return outcome
		}

		if err := m.Store.PutPublished(spanCtx, repo.ID, item.version, m.now()); err != nil {
			outcome.State = StatePublishDeferred
			outcome.Err = fmt.Errorf("failed to record published version: %w", err)
			return outcome
		}
		outcome.State = StatePublished
		outcome.PublishResult = res
		return outcome

	default:
		return outcome
	}
}

func (m *defaultSyncManager) record(ctx context.Context, result *Result, outcome VersionOutcome) {
	result.Outcomes = append(result.Outcomes, outcome)
	m.metrics.RecordVersion(ctx, result.Repository, result.Kind, string(outcome.State))

	attrs := []any{"repository", result.Repository, "version", outcome.Version, "state", outcome.State}
	switch outcome.State {
	case StateFiltered:
		slog.Debug("Version already processed", attrs...)
	case StatePublished:
		slog.Info("Version published", append(attrs, "result", outcome.PublishResult)...)
	case StateRejected:
		slog.Info("Version rejected", append(attrs, "error", outcome.Err)...)
	case StatePending:
		slog.Info("Version pending", append(attrs, "raw", outcome.Raw)...)
	default:
		slog.Warn("Version not published", append(attrs, "raw", outcome.Raw, "error", outcome.Err)...)
	}
}

func (m *defaultSyncManager) recordKnownVersions(
	ctx context.Context, repository string, published, rejected store.VersionSet, result *Result,
) {
	m.metrics.RecordKnownVersions(ctx, repository,
		len(published)+result.Count(StatePublished),
		len(rejected)+result.Count(StateRejected))
}
