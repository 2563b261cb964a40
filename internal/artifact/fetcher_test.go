package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/depsync/internal/httpclient"
)

// archiveHost serves canned responses per path and records every request.
type archiveHost struct {
	mu        sync.Mutex
	responses map[string]func(w http.ResponseWriter)
	requests  []string
}

func (h *archiveHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r.URL.Path)
	respond, ok := h.responses[r.URL.Path]
	h.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	respond(w)
}

func (h *archiveHost) paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

func body(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(content))
	}
}

func newFetcher(t *testing.T, host *archiveHost) (*Fetcher, string) {
	t.Helper()
	server := httptest.NewServer(host)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)

	client := httpclient.NewDefaultClient(0,
		httpclient.WithMaxTries(1),
		httpclient.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	return NewFetcher(client), server.URL
}

const notFoundDocument = `{"message":"Not Found","status":"404"}`

func TestFetcherFetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		responses    map[string]func(w http.ResponseWriter)
		path         string
		want         string
		wantErr      bool
		wantRequests []string
	}{
		{
			name:         "archive on the first shape",
			responses:    map[string]func(w http.ResponseWriter){"/repos/acme/lib/zipball/v1.0.0": body("PK-archive")},
			path:         "/repos/acme/lib/zipball/v1.0.0",
			want:         "PK-archive",
			wantRequests: []string{"/repos/acme/lib/zipball/v1.0.0"},
		},
		{
			name: "error document triggers exactly one alternate attempt",
			responses: map[string]func(w http.ResponseWriter){
				"/repos/acme/lib/zipball/v1.0.0":           body(notFoundDocument),
				"/repos/acme/lib/zipball/refs/tags/v1.0.0": body("PK-tagged"),
			},
			path:         "/repos/acme/lib/zipball/v1.0.0",
			want:         "PK-tagged",
			wantRequests: []string{"/repos/acme/lib/zipball/v1.0.0", "/repos/acme/lib/zipball/refs/tags/v1.0.0"},
		},
		{
			name: "error document on both shapes gives up",
			responses: map[string]func(w http.ResponseWriter){
				"/repos/acme/lib/zipball/v1.0.0":           body(notFoundDocument),
				"/repos/acme/lib/zipball/refs/tags/v1.0.0": body(notFoundDocument),
			},
			path:         "/repos/acme/lib/zipball/v1.0.0",
			wantErr:      true,
			wantRequests: []string{"/repos/acme/lib/zipball/v1.0.0", "/repos/acme/lib/zipball/refs/tags/v1.0.0"},
		},
		{
			name: "404 triggers the alternate attempt",
			responses: map[string]func(w http.ResponseWriter){
				"/repos/acme/lib/zipball/refs/tags/v2": body("PK-v2"),
			},
			path:         "/repos/acme/lib/zipball/v2",
			want:         "PK-v2",
			wantRequests: []string{"/repos/acme/lib/zipball/v2", "/repos/acme/lib/zipball/refs/tags/v2"},
		},
		{
			name:         "reference-qualified locator has no alternate",
			responses:    map[string]func(w http.ResponseWriter){"/repos/acme/lib/zipball/refs/tags/v1": body(notFoundDocument)},
			path:         "/repos/acme/lib/zipball/refs/tags/v1",
			wantErr:      true,
			wantRequests: []string{"/repos/acme/lib/zipball/refs/tags/v1"},
		},
		{
			name: "server errors do not switch shapes",
			responses: map[string]func(w http.ResponseWriter){
				"/repos/acme/lib/zipball/v1": func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) },
			},
			path:         "/repos/acme/lib/zipball/v1",
			wantErr:      true,
			wantRequests: []string{"/repos/acme/lib/zipball/v1"},
		},
		{
			name:         "JSON without both fields is an artifact",
			responses:    map[string]func(w http.ResponseWriter){"/repos/acme/lib/zipball/v1": body(`{"message":"hello"}`)},
			path:         "/repos/acme/lib/zipball/v1",
			want:         `{"message":"hello"}`,
			wantRequests: []string{"/repos/acme/lib/zipball/v1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := &archiveHost{responses: tt.responses}
			fetcher, base := newFetcher(t, host)

			data, err := fetcher.Fetch(context.Background(), base+tt.path)
			assert.Equal(t, tt.wantRequests, host.paths())
			if tt.wantErr {
				var fetchErr *FetchError
				require.True(t, errors.As(err, &fetchErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestFetcherErrorDocumentDetails(t *testing.T) {
	t.Parallel()

	host := &archiveHost{responses: map[string]func(w http.ResponseWriter){
		"/repos/acme/lib/zipball/refs/tags/v1": body(notFoundDocument),
	}}
	fetcher, base := newFetcher(t, host)

	_, err := fetcher.Fetch(context.Background(), base+"/repos/acme/lib/zipball/refs/tags/v1")
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "Not Found", upstreamErr.Message)
	assert.Equal(t, "404", upstreamErr.Status)
}

func TestAlternateLocator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		locator string
		want    string
		wantOK  bool
	}{
		{
			locator: "https://api.github.com/repos/acme/lib/zipball/v1.0.0",
			want:    "https://api.github.com/repos/acme/lib/zipball/refs/tags/v1.0.0",
			wantOK:  true,
		},
		{locator: "https://api.github.com/repos/acme/lib/zipball/refs/tags/v1.0.0"},
		{locator: "https://example.com/archive.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			t.Parallel()
			got, ok := AlternateLocator(tt.locator)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
