// Package coordinator runs synchronization passes across repositories.
//
// It sits on top of sync.Manager and handles:
//
//   - A bounded pool of repository workers
//   - Pacing of discovery passes with a token bucket
//   - Run identifiers and per-run summaries
//   - The watch loop: an initial run, then one run per interval with jitter
//   - Graceful shutdown
//
// # Core Interface
//
//	type Coordinator interface {
//	    RunOnce(ctx context.Context, repos []config.Repository, force bool) (*RunSummary, error)
//	    Start(ctx context.Context) error   // Begin the watch loop
//	    Stop() error                       // Graceful shutdown
//	    LastRun() *RunSummary              // Thread-safe access to the latest summary
//	}
//
// # Usage Example
//
//	manager := sync.NewDefaultSyncManager(components)
//	coord := coordinator.New(manager, cfg.Repositories,
//	    coordinator.WithWorkers(cfg.Sync.GetWorkers()),
//	    coordinator.WithRateLimit(cfg.Sync.GetRequestsPerSecond(), cfg.Sync.GetBurst()))
//
//	summary, err := coord.RunOnce(ctx, cfg.Repositories, force)
//
// # Error Handling
//
// A failed repository pass is logged and reported in the summary; the run
// continues with the other repositories. A fatal pass error (extraction
// abort policy) cancels the remaining passes and RunOnce returns
// ErrRunAborted. In watch mode an aborted run ends the loop.
//
// Interrupting the parent context stops new repositories and new versions
// from starting; RunOnce then returns the partial summary without error.
package coordinator
