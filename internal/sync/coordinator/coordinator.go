package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/stacklok/depsync/internal/config"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/telemetry"
)

const (
	defaultInterval = time.Hour
	defaultWorkers  = 4

	// jitterDivisor sets the maximum offset applied to the interval (±10%)
	jitterDivisor = 10
)

// Coordinator runs repository passes once or on an interval
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks -source=coordinator.go Coordinator
type Coordinator interface {
	// RunOnce runs one pass per repository and waits for all of them
	RunOnce(ctx context.Context, repos []config.Repository, force bool) (*RunSummary, error)

	// Start begins the watch loop over the configured repositories.
	// Blocks until context is cancelled, Stop is called or a run aborts.
	Start(ctx context.Context) error

	// Stop gracefully stops the watch loop
	Stop() error

	// LastRun returns the summary of the most recent completed run, or nil
	LastRun() *RunSummary
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager      pkgsync.Manager
	repositories []config.Repository

	workers  int
	interval time.Duration
	limiter  *rate.Limiter
	newRunID func() string

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}

	mu      sync.RWMutex
	lastRun *RunSummary

	syncMetrics *telemetry.SyncMetrics
	tracer      trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithWorkers sets how many repositories are processed concurrently
func WithWorkers(n int) Option {
	return func(c *defaultCoordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithInterval sets the base period of the watch loop
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithRateLimit paces repository discovery passes. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *defaultCoordinator) {
		limit := rate.Inf
		if perSecond > 0 {
			limit = rate.Limit(perSecond)
		}
		c.limiter = rate.NewLimiter(limit, max(burst, 1))
	}
}

// WithRunIDGenerator replaces the random run identifiers
func WithRunIDGenerator(gen func() string) Option {
	return func(c *defaultCoordinator) {
		c.newRunID = gen
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithTracerProvider traces each repository pass
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *defaultCoordinator) {
		if provider != nil {
			c.tracer = provider.Tracer(telemetry.SyncTracerName)
		}
	}
}

// New creates a new coordinator with injected dependencies
func New(manager pkgsync.Manager, repositories []config.Repository, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:      manager,
		repositories: repositories,
		workers:      defaultWorkers,
		interval:     defaultInterval,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		newRunID:     uuid.NewString,
		done:         make(chan struct{}),
		tracer:       noop.NewTracerProvider().Tracer(telemetry.SyncTracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the interval with a random jitter of up to ±10% applied
func calculatePollingInterval(interval time.Duration) time.Duration {
	jitter := interval / jitterDivisor
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return interval + jitterOffset
}

// Start runs once immediately, then once per interval
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting sync coordinator",
		"repository_count", len(c.repositories),
		"workers", c.workers,
		"interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Sync coordinator shutting down")
	}()

	if _, err := c.RunOnce(coordCtx, c.repositories, false); err != nil {
		return err
	}

	ticker := time.NewTicker(calculatePollingInterval(c.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.RunOnce(coordCtx, c.repositories, false); err != nil {
				return err
			}

			// Recalculate interval with new jitter for next iteration
			next := calculatePollingInterval(c.interval)
			ticker.Reset(next)
			slog.Debug("Scheduled next run", "in", next)
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping sync coordinator")
		c.cancelFunc()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}

// LastRun returns the most recent completed run summary
func (c *defaultCoordinator) LastRun() *RunSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun
}

func (c *defaultCoordinator) setLastRun(summary *RunSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = summary
}
