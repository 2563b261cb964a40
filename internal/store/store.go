// Package store persists the two disjoint version lifecycles tracked per
// repository: versions known to be published (valid) and versions proven
// unusable (rejected). A version name is unique within each set for a
// repository and never appears in both.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrVersionRejected is returned by PutPublished when the version is already
// recorded as rejected for the repository.
var ErrVersionRejected = errors.New("version already recorded as rejected")

// VersionSet is a set of normalized version names.
type VersionSet map[string]struct{}

// Has reports whether the set contains the version.
func (s VersionSet) Has(version string) bool {
	_, ok := s[version]
	return ok
}

// Add inserts a version into the set.
func (s VersionSet) Add(version string) {
	s[version] = struct{}{}
}

// RepositorySummary aggregates the records of one repository.
type RepositorySummary struct {
	Repository   string     `json:"repository"`
	Published    []string   `json:"published"`
	Rejected     []string   `json:"rejected"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
}

// VersionStore is the persistent record of processed versions.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/depsync/internal/store VersionStore
type VersionStore interface {
	// GetPublished returns the published version names of a repository
	GetPublished(ctx context.Context, repository string) (VersionSet, error)

	// GetRejected returns the rejected version names of a repository
	GetRejected(ctx context.Context, repository string) (VersionSet, error)

	// PutPublished records a published version. Re-recording an existing
	// published version is a no-op.
	PutPublished(ctx context.Context, repository, version string, at time.Time) error

	// PutRejected records a rejected version. Re-recording an existing
	// rejected version is a no-op.
	PutRejected(ctx context.Context, repository, version string, at time.Time) error

	// LastActivity returns the most recent record timestamp across both sets,
	// or nil when the repository has no records.
	LastActivity(ctx context.Context, repository string) (*time.Time, error)

	// ListRepositories summarizes every repository with at least one record
	ListRepositories(ctx context.Context) ([]RepositorySummary, error)

	// Close releases the underlying resources
	Close() error
}
