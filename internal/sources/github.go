package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/stacklok/depsync/internal/config"
)

// ErrNoDefaultBranch is returned when a branch-tracking repository has
// neither a main nor a master branch.
var ErrNoDefaultBranch = errors.New("repository has no main or master branch")

// BranchResolver resolves the head commit of a repository's main or master branch
type BranchResolver interface {
	// DefaultBranchHead returns the branch name and its head commit SHA
	DefaultBranchHead(ctx context.Context, owner, repo string) (branch, sha string, err error)
}

// SourceControlOption configures the source-control discoverer
type SourceControlOption func(*sourceControlDiscoverer)

// WithBranchResolver replaces the API-based branch resolver
func WithBranchResolver(resolver BranchResolver) SourceControlOption {
	return func(d *sourceControlDiscoverer) {
		d.branches = resolver
	}
}

// WithPaging sets the listing page size and the maximum number of pages read
func WithPaging(perPage, maxPages int) SourceControlOption {
	return func(d *sourceControlDiscoverer) {
		if perPage > 0 {
			d.perPage = perPage
		}
		if maxPages > 0 {
			d.maxPages = maxPages
		}
	}
}

// WithMaxTries caps the attempts of each upstream call
func WithMaxTries(n uint) SourceControlOption {
	return func(d *sourceControlDiscoverer) {
		if n > 0 {
			d.retry.maxTries = n
		}
	}
}

func withRetryPolicy(policy retryPolicy) SourceControlOption {
	return func(d *sourceControlDiscoverer) {
		d.retry = policy
	}
}

type sourceControlDiscoverer struct {
	client   *github.Client
	branches BranchResolver
	perPage  int
	maxPages int
	retry    retryPolicy
}

var _ Discoverer = (*sourceControlDiscoverer)(nil)

// NewGitHubClient creates an API client for the configured base URL,
// authenticated when a token is available.
func NewGitHubClient(ctx context.Context, cfg *config.SourceControlConfig) (*github.Client, error) {
	var httpClient *http.Client
	if token := cfg.GetToken(); token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	client := github.NewClient(httpClient)
	baseURL, err := url.Parse(cfg.GetAPIURL())
	if err != nil {
		return nil, fmt.Errorf("invalid source-control API URL: %w", err)
	}
	client.BaseURL = baseURL
	return client, nil
}

// NewSourceControlDiscoverer creates the tiered release/tag/branch discoverer
func NewSourceControlDiscoverer(client *github.Client, opts ...SourceControlOption) Discoverer {
	d := &sourceControlDiscoverer{
		client:   client,
		perPage:  100,
		maxPages: 10,
		retry:    defaultRetryPolicy(5),
	}
	d.branches = &apiBranchResolver{discoverer: d}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ListVersions returns release, tag or branch candidates ordered oldest to newest
func (d *sourceControlDiscoverer) ListVersions(ctx context.Context, repo config.Repository) ([]CandidateVersion, error) {
	owner, name, ok := strings.Cut(repo.ID, "/")
	if !ok || owner == "" || name == "" {
		return nil, &DiscoveryError{
			Repository: repo.ID,
			Err:        fmt.Errorf("malformed repository identifier"),
			Permanent:  true,
		}
	}

	if repo.TrackBranch {
		return d.branchCandidate(ctx, repo.ID, owner, name)
	}

	var candidates []CandidateVersion
	if !repo.SkipReleases && repo.GetTagPolicy() != config.TagsAlways {
		releases, err := d.listReleases(ctx, repo.ID, owner, name)
		if err != nil {
			return nil, err
		}
		candidates = releases
	}

	policy := repo.GetTagPolicy()
	if policy == config.TagsAlways || (policy == config.TagsFallback && len(candidates) == 0) {
		tags, err := d.listTags(ctx, repo.ID, owner, name)
		if err != nil {
			return nil, err
		}
		candidates = tags
	}

	slog.Debug("Discovered source-control versions", "repository", repo.ID, "count", len(candidates))
	return candidates, nil
}

func (d *sourceControlDiscoverer) listReleases(ctx context.Context, id, owner, name string) ([]CandidateVersion, error) {
	var candidates []CandidateVersion
	opts := &github.ListOptions{PerPage: d.perPage}
	for page := 0; page < d.maxPages; page++ {
		type result struct {
			releases []*github.RepositoryRelease
			resp     *github.Response
		}
		res, permanent, err := retry(ctx, d.retry, func() (result, error) {
			releases, resp, err := d.client.Repositories.ListReleases(ctx, owner, name, opts)
			return result{releases: releases, resp: resp}, err
		})
		if err != nil {
			return nil, &DiscoveryError{Repository: id, Err: fmt.Errorf("listing releases: %w", err), Permanent: permanent}
		}

		for _, release := range res.releases {
			label := release.GetName()
			if label == "" {
				label = release.GetTagName()
			}
			version := ExtractVersionLabel(label)
			if version == "" {
				continue
			}
			locator := release.GetZipballURL()
			if locator == "" {
				locator = d.zipballURL(owner, name, release.GetTagName())
			}
			candidates = append(candidates, CandidateVersion{Name: version, Locator: locator})
		}

		if res.resp == nil || res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	// the API lists newest first
	slices.Reverse(candidates)
	return candidates, nil
}

func (d *sourceControlDiscoverer) listTags(ctx context.Context, id, owner, name string) ([]CandidateVersion, error) {
	var candidates []CandidateVersion
	opts := &github.ListOptions{PerPage: d.perPage}
	for page := 0; page < d.maxPages; page++ {
		type result struct {
			tags []*github.RepositoryTag
			resp *github.Response
		}
		res, permanent, err := retry(ctx, d.retry, func() (result, error) {
			tags, resp, err := d.client.Repositories.ListTags(ctx, owner, name, opts)
			return result{tags: tags, resp: resp}, err
		})
		if err != nil {
			return nil, &DiscoveryError{Repository: id, Err: fmt.Errorf("listing tags: %w", err), Permanent: permanent}
		}

		for _, tag := range res.tags {
			label := tag.GetName()
			if label == "" {
				label = tag.GetCommit().GetSHA()
			}
			version := ExtractVersionLabel(label)
			if version == "" {
				continue
			}
			locator := tag.GetZipballURL()
			if locator == "" {
				locator = d.zipballURL(owner, name, label)
			}
			candidates = append(candidates, CandidateVersion{Name: version, Locator: locator})
		}

		if res.resp == nil || res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	slices.Reverse(candidates)
	return candidates, nil
}

func (d *sourceControlDiscoverer) branchCandidate(ctx context.Context, id, owner, name string) ([]CandidateVersion, error) {
	branch, sha, err := d.branches.DefaultBranchHead(ctx, owner, name)
	if err != nil {
		var discoveryErr *DiscoveryError
		if errors.As(err, &discoveryErr) {
			return nil, err
		}
		return nil, &DiscoveryError{
			Repository: id,
			Err:        fmt.Errorf("resolving default branch: %w", err),
			Permanent:  errors.Is(err, ErrNoDefaultBranch),
		}
	}

	slog.Debug("Resolved tracked branch", "repository", id, "branch", branch, "sha", sha)
	return []CandidateVersion{{Name: sha, Locator: d.zipballURL(owner, name, sha)}}, nil
}

func (d *sourceControlDiscoverer) zipballURL(owner, name, ref string) string {
	return fmt.Sprintf("%srepos/%s/%s/zipball/%s", d.client.BaseURL.String(), owner, name, ref)
}

// apiBranchResolver scans every page of the branch listing for main and master
type apiBranchResolver struct {
	discoverer *sourceControlDiscoverer
}

func (r *apiBranchResolver) DefaultBranchHead(ctx context.Context, owner, repo string) (string, string, error) {
	d := r.discoverer
	heads := map[string]string{}
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: d.perPage}}
	for {
		type result struct {
			branches []*github.Branch
			resp     *github.Response
		}
		res, permanent, err := retry(ctx, d.retry, func() (result, error) {
			branches, resp, err := d.client.Repositories.ListBranches(ctx, owner, repo, opts)
			return result{branches: branches, resp: resp}, err
		})
		if err != nil {
			return "", "", &DiscoveryError{
				Repository: owner + "/" + repo,
				Err:        fmt.Errorf("listing branches: %w", err),
				Permanent:  permanent,
			}
		}

		for _, branch := range res.branches {
			if n := branch.GetName(); n == "main" || n == "master" {
				heads[n] = branch.GetCommit().GetSHA()
			}
		}

		if res.resp == nil || res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	for _, preferred := range []string{"main", "master"} {
		if sha, ok := heads[preferred]; ok && sha != "" {
			return preferred, sha, nil
		}
	}
	return "", "", ErrNoDefaultBranch
}

// ExtractVersionLabel derives a version from a release or tag label: a
// leading "v" marker is stripped, otherwise the last whitespace-separated
// token is used.
func ExtractVersionLabel(label string) string {
	label = strings.TrimSpace(label)
	if len(label) > 1 && label[0] == 'v' && unicode.IsDigit(rune(label[1])) {
		return label[1:]
	}
	if fields := strings.Fields(label); len(fields) > 1 {
		return fields[len(fields)-1]
	}
	return label
}
