// Package git resolves branch heads by listing a remote's references, the
// equivalent of `git ls-remote`, without cloning.
package git

import (
	"context"
	"fmt"
	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/stacklok/depsync/internal/sources"
)

// RemoteResolver implements sources.BranchResolver over the git protocol
type RemoteResolver struct {
	baseURL string
	auth    *githttp.BasicAuth
}

var _ sources.BranchResolver = (*RemoteResolver)(nil)

// NewRemoteResolver creates a resolver for repositories under baseURL
// (e.g. "https://github.com/"). A non-empty token is sent as basic auth.
func NewRemoteResolver(baseURL, token string) *RemoteResolver {
	r := &RemoteResolver{baseURL: baseURL}
	if token != "" {
		r.auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	return r
}

// DefaultBranchHead returns the head of main, or of master when main is absent
func (r *RemoteResolver) DefaultBranchHead(ctx context.Context, owner, repo string) (string, string, error) {
	url := fmt.Sprintf("%s%s/%s.git", r.baseURL, owner, repo)
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: gogit.DefaultRemoteName,
		URLs: []string{url},
	})

	opts := &gogit.ListOptions{}
	if r.auth != nil {
		opts.Auth = r.auth
	}

	refs, err := remote.ListContext(ctx, opts)
	if err != nil {
		return "", "", fmt.Errorf("failed to list remote references of %s: %w", url, err)
	}

	slog.Debug("Listed remote references", "url", url, "count", len(refs))
	return SelectDefaultBranch(refs)
}

// SelectDefaultBranch picks main, falling back to master, from a reference listing
func SelectDefaultBranch(refs []*plumbing.Reference) (string, string, error) {
	heads := make(map[string]string, 2)
	for _, ref := range refs {
		if ref.Type() != plumbing.HashReference || !ref.Name().IsBranch() {
			continue
		}
		heads[ref.Name().Short()] = ref.Hash().String()
	}

	for _, preferred := range []string{"main", "master"} {
		if sha, ok := heads[preferred]; ok {
			return preferred, sha, nil
		}
	}
	return "", "", sources.ErrNoDefaultBranch
}
