package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/depsync/internal/config"
)

// fakeAPI serves paginated JSON listings keyed by request path.
type fakeAPI struct {
	pages  map[string][]any
	status map[string]int
	calls  atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if code, ok := f.status[r.URL.Path]; ok {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
		return
	}
	pages, ok := f.pages[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	if page < len(pages) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.RequestURI()))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pages[page-1])
}

func newTestDiscoverer(t *testing.T, api *fakeAPI, opts ...SourceControlOption) (Discoverer, string) {
	t.Helper()
	server := httptest.NewServer(api)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	opts = append([]SourceControlOption{
		withRetryPolicy(retryPolicy{maxTries: 3, newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} }}),
	}, opts...)
	return NewSourceControlDiscoverer(client, opts...), base.String()
}

func release(name, tag string) map[string]any {
	return map[string]any{
		"name":        name,
		"tag_name":    tag,
		"zipball_url": "https://api.example.com/repos/acme/lib/zipball/" + tag,
	}
}

func tag(name, sha string) map[string]any {
	return map[string]any{"name": name, "commit": map[string]any{"sha": sha}}
}

func branch(name, sha string) map[string]any {
	return map[string]any{"name": name, "commit": map[string]any{"sha": sha}}
}

func names(candidates []CandidateVersion) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Name)
	}
	return out
}

func TestSourceControlDiscoverer_Releases(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[string][]any{
		// newest first, as the API returns them
		"/repos/acme/lib/releases": {
			[]any{release("v1.0.0", "v1.0.0"), release("", "v0.9.0-beta")},
		},
	}}
	d, _ := newTestDiscoverer(t, api)

	candidates, err := d.ListVersions(context.Background(), config.Repository{ID: "acme/lib", Kind: config.KindSourceControl})
	require.NoError(t, err)

	assert.Equal(t, []string{"0.9.0-beta", "1.0.0"}, names(candidates))
	assert.Equal(t, "https://api.example.com/repos/acme/lib/zipball/v0.9.0-beta", candidates[0].Locator)
}

func TestSourceControlDiscoverer_ReleasesAcrossPages(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[string][]any{
		"/repos/acme/lib/releases": {
			[]any{release("Release 3.0", "v3.0"), release("v2.0", "v2.0")},
			[]any{release("v1.0", "v1.0")},
		},
	}}
	d, _ := newTestDiscoverer(t, api)

	candidates, err := d.ListVersions(context.Background(), config.Repository{ID: "acme/lib", Kind: config.KindSourceControl})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "2.0", "3.0"}, names(candidates))
}

func TestSourceControlDiscoverer_TagFallback(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[string][]any{
		"/repos/acme/lib/releases": {[]any{}},
		"/repos/acme/lib/tags": {
			[]any{tag("v2.0.0", "bbb"), tag("", "aaa111")},
		},
	}}
	d, base := newTestDiscoverer(t, api)

	candidates, err := d.ListVersions(context.Background(), config.Repository{ID: "acme/lib", Kind: config.KindSourceControl})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "aaa111", candidates[0].Name, "an unnamed tag falls back to its commit sha")
	assert.Equal(t, base+"repos/acme/lib/zipball/aaa111", candidates[0].Locator)
	assert.Equal(t, "2.0.0", candidates[1].Name)
	assert.Equal(t, base+"repos/acme/lib/zipball/v2.0.0", candidates[1].Locator)
}

func TestSourceControlDiscoverer_TierPolicies(t *testing.T) {
	t.Parallel()

	pages := map[string][]any{
		"/repos/acme/lib/releases": {[]any{release("v1.0.0", "v1.0.0")}},
		"/repos/acme/lib/tags":     {[]any{tag("v1.0.1", "ccc"), tag("v1.0.0", "bbb")}},
	}

	tests := []struct {
		name string
		repo config.Repository
		want []string
	}{
		{
			name: "releases win by default",
			repo: config.Repository{ID: "acme/lib", Kind: config.KindSourceControl},
			want: []string{"1.0.0"},
		},
		{
			name: "tag preferring",
			repo: config.Repository{ID: "acme/lib", Kind: config.KindSourceControl, Tags: config.TagsAlways},
			want: []string{"1.0.0", "1.0.1"},
		},
		{
			name: "skip releases falls through to tags",
			repo: config.Repository{ID: "acme/lib", Kind: config.KindSourceControl, SkipReleases: true},
			want: []string{"1.0.0", "1.0.1"},
		},
		{
			name: "skip releases and never tags yields nothing",
			repo: config.Repository{ID: "acme/lib", Kind: config.KindSourceControl, SkipReleases: true, Tags: config.TagsNever},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, _ := newTestDiscoverer(t, &fakeAPI{pages: pages})
			candidates, err := d.ListVersions(context.Background(), tt.repo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(candidates))
		})
	}
}

func TestSourceControlDiscoverer_TrackBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pages   []any
		wantSHA string
		wantErr error
	}{
		{
			name:    "main on a later page wins over master",
			pages:   []any{[]any{branch("develop", "d1"), branch("master", "m1")}, []any{branch("main", "a1")}},
			wantSHA: "a1",
		},
		{
			name:    "master fallback",
			pages:   []any{[]any{branch("develop", "d1")}, []any{branch("master", "m1")}},
			wantSHA: "m1",
		},
		{
			name:    "no default branch",
			pages:   []any{[]any{branch("develop", "d1")}},
			wantErr: ErrNoDefaultBranch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{pages: map[string][]any{"/repos/acme/tracked/branches": tt.pages}}
			d, base := newTestDiscoverer(t, api)

			candidates, err := d.ListVersions(context.Background(), config.Repository{
				ID: "acme/tracked", Kind: config.KindSourceControl, TrackBranch: true,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var discoveryErr *DiscoveryError
				require.True(t, errors.As(err, &discoveryErr))
				assert.True(t, discoveryErr.Permanent)
				return
			}
			require.NoError(t, err)
			require.Len(t, candidates, 1, "branch tracking yields exactly one candidate")
			assert.Equal(t, tt.wantSHA, candidates[0].Name)
			assert.Equal(t, base+"repos/acme/tracked/zipball/"+tt.wantSHA, candidates[0].Locator)
		})
	}
}

type staticResolver struct {
	branch, sha string
	err         error
}

func (s staticResolver) DefaultBranchHead(context.Context, string, string) (string, string, error) {
	return s.branch, s.sha, s.err
}

func TestSourceControlDiscoverer_CustomBranchResolver(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, _ := newTestDiscoverer(t, api, WithBranchResolver(staticResolver{branch: "main", sha: "feed"}))

	candidates, err := d.ListVersions(context.Background(), config.Repository{
		ID: "acme/tracked", Kind: config.KindSourceControl, TrackBranch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"feed"}, names(candidates))
	assert.Zero(t, api.calls.Load(), "resolver replaces the branch listing")
}

func TestSourceControlDiscoverer_Errors(t *testing.T) {
	t.Parallel()

	t.Run("not found is permanent and not retried", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{}
		d, _ := newTestDiscoverer(t, api)

		_, err := d.ListVersions(context.Background(), config.Repository{ID: "acme/missing", Kind: config.KindSourceControl})
		var discoveryErr *DiscoveryError
		require.True(t, errors.As(err, &discoveryErr))
		assert.True(t, discoveryErr.Permanent)
		assert.Equal(t, "acme/missing", discoveryErr.Repository)
		assert.Equal(t, int32(1), api.calls.Load())
	})

	t.Run("server errors are retried then transient", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{status: map[string]int{"/repos/acme/lib/releases": http.StatusBadGateway}}
		d, _ := newTestDiscoverer(t, api)

		_, err := d.ListVersions(context.Background(), config.Repository{ID: "acme/lib", Kind: config.KindSourceControl})
		var discoveryErr *DiscoveryError
		require.True(t, errors.As(err, &discoveryErr))
		assert.False(t, discoveryErr.Permanent)
		assert.Equal(t, int32(3), api.calls.Load())
	})

	t.Run("malformed identifier", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDiscoverer(t, &fakeAPI{})
		_, err := d.ListVersions(context.Background(), config.Repository{ID: "no-slash", Kind: config.KindSourceControl})
		var discoveryErr *DiscoveryError
		require.True(t, errors.As(err, &discoveryErr))
		assert.True(t, discoveryErr.Permanent)
	})
}

func TestExtractVersionLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  string
	}{
		{label: "v1.0.0", want: "1.0.0"},
		{label: "v0.9.0-beta", want: "0.9.0-beta"},
		{label: "Release 2.1", want: "2.1"},
		{label: "Morpho Blue v1.1", want: "v1.1"},
		{label: "1.2.3", want: "1.2.3"},
		{label: "vNext", want: "vNext"},
		{label: "  v2  ", want: "2"},
		{label: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractVersionLabel(tt.label))
		})
	}
}
