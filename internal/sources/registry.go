package sources

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/httpclient"
)

// VersionLister lists every published version of a registry package,
// ordered oldest to newest
type VersionLister interface {
	ListVersions(ctx context.Context, pkg string) ([]string, error)
}

type registryDiscoverer struct {
	lister VersionLister
}

var _ Discoverer = (*registryDiscoverer)(nil)

// NewRegistryDiscoverer creates a discoverer for registry packages
func NewRegistryDiscoverer(lister VersionLister) Discoverer {
	return &registryDiscoverer{lister: lister}
}

// ListVersions returns one candidate per published version; locators are empty
func (d *registryDiscoverer) ListVersions(ctx context.Context, repo config.Repository) ([]CandidateVersion, error) {
	versions, err := d.lister.ListVersions(ctx, repo.ID)
	if err != nil {
		var httpErr *httpclient.HTTPError
		permanent := errors.As(err, &httpErr) && !httpErr.Retryable()
		return nil, &DiscoveryError{Repository: repo.ID, Err: err, Permanent: permanent}
	}

	candidates := make([]CandidateVersion, 0, len(versions))
	for _, v := range versions {
		candidates = append(candidates, CandidateVersion{Name: v})
	}

	slog.Debug("Discovered registry versions", "repository", repo.ID, "count", len(candidates))
	return candidates, nil
}
