package sync

import (
	"context"
	"fmt"

	"github.com/stacklok/depsync/internal/artifact"
	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/publish"
)

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=types.go Manager

// State is the position of a candidate version in the pass
type State string

// Version states
const (
	StateDiscovered      State = "discovered"
	StateFiltered        State = "filtered"
	StateFetching        State = "fetching"
	StateFetched         State = "fetched"
	StateRejected        State = "rejected"
	StateExtracting      State = "extracting"
	StateExtracted       State = "extracted"
	StatePublishing      State = "publishing"
	StatePublished       State = "published"
	StatePublishDeferred State = "publish-deferred"
	StateSkipped         State = "skipped"
	StatePending         State = "pending"
)

// Terminal reports whether no further transition leaves the state
func (s State) Terminal() bool {
	switch s {
	case StateFiltered, StateRejected, StatePublished, StatePublishDeferred, StateSkipped, StatePending:
		return true
	default:
		return false
	}
}

// Reason represents the decision and reason for whether a pass is needed
type Reason int

// Sync reasons
const (
	ReasonNeverSynced Reason = iota
	ReasonFreshnessWindowElapsed
	ReasonForced
	ReasonErrorCheckingActivity
	ReasonRecentlySynced
)

// String returns the string representation of the sync reason
func (r Reason) String() string {
	switch r {
	case ReasonNeverSynced:
		return "never-synced"
	case ReasonFreshnessWindowElapsed:
		return "freshness-window-elapsed"
	case ReasonForced:
		return "forced"
	case ReasonErrorCheckingActivity:
		return "error-checking-activity"
	case ReasonRecentlySynced:
		return "recently-synced"
	default:
		return "unknown-sync-reason"
	}
}

// ShouldSync returns true if a pass is needed, false otherwise
func (r Reason) ShouldSync() bool {
	return r != ReasonRecentlySynced
}

// Stages at which a pass can fail as a whole
const (
	StageDiscovery  = "discovery"
	StageStore      = "store"
	StageExtraction = "extraction"
)

// Error represents a failed repository pass
type Error struct {
	Repository string
	Stage      string
	Message    string
	Err        error

	// Fatal ends the whole run, not just this repository
	Fatal bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// VersionOutcome is where one candidate ended up
type VersionOutcome struct {
	// Raw is the upstream label
	Raw string

	// Version is the normalized name, as recorded in the store
	Version string

	State State

	// PublishResult is set for published versions
	PublishResult publish.Result

	// Err explains skipped, rejected and deferred versions
	Err error
}

// Result summarizes a repository pass
type Result struct {
	Repository string
	Kind       string

	// Name is the canonical registry name
	Name string

	Discovered int
	Outcomes   []VersionOutcome
}

// Count returns the number of outcomes in the given state
func (r *Result) Count(state State) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Manager handles one repository's synchronization pass
type Manager interface {
	// ShouldSync decides whether the repository needs a pass
	ShouldSync(ctx context.Context, repo config.Repository, force bool) Reason

	// PerformSync runs one pass. A fatal Error may come with the partial Result.
	PerformSync(ctx context.Context, repo config.Repository) (*Result, *Error)
}

// Fetcher downloads an archive
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Extractor unpacks an archive into a directory
type Extractor interface {
	Extract(data []byte, dir string) error
}

// Installer installs a registry package into a prefix and returns its directory
type Installer interface {
	Install(ctx context.Context, pkg, version, prefix string) (string, error)
}

// Workspace hands out per-version working directories
type Workspace interface {
	Acquire(repository, version string) (*artifact.Lease, error)
}
