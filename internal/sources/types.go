package sources

import (
	"context"
	"fmt"

	"github.com/stacklok/depsync/internal/config"
)

//go:generate mockgen -destination=mocks/mock_discoverer.go -package=mocks -source=types.go Discoverer,DiscovererFactory

// CandidateVersion is a version discovered upstream in this run
type CandidateVersion struct {
	// Name is the raw version label
	Name string

	// Locator is the archive address; empty for registry packages
	Locator string
}

// Discoverer lists the versions of one kind of repository
type Discoverer interface {
	// ListVersions returns the candidates of the repository ordered oldest to newest
	ListVersions(ctx context.Context, repo config.Repository) ([]CandidateVersion, error)
}

// DiscovererFactory creates discoverers based on repository kind
type DiscovererFactory interface {
	// CreateDiscoverer returns the discoverer for the given kind
	CreateDiscoverer(kind string) (Discoverer, error)
}

// DiscoveryError reports a failed discovery pass for a repository
type DiscoveryError struct {
	Repository string
	Err        error

	// Permanent is true when the upstream answered authoritatively
	// (not found, unauthorized, malformed request) rather than transiently
	Permanent bool
}

func (e *DiscoveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("discovery failed for %s (%s): %v", e.Repository, kind, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
