package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/depsync/internal/artifact"
	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/httpclient"
	"github.com/stacklok/depsync/internal/sources"
	"github.com/stacklok/depsync/internal/store"
)

func createValidTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir: t.TempDir(),
		Storage: config.StorageConfig{Type: config.StorageTypeMemory},
		Repositories: []config.Repository{
			{ID: "acme/lib", Kind: config.KindSourceControl},
			{ID: "left-pad", Kind: config.KindRegistry},
			{ID: "acme/tools", Kind: config.KindSourceControl, TrackBranch: true},
		},
	}
}

func TestBaseConfigDefaults(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithConfig(createValidTestConfig(t)))
	require.NoError(t, err)
	assert.Equal(t, ":8080", built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	assert.Equal(t, defaultReadTimeout, built.readTimeout)
	assert.Equal(t, defaultWriteTimeout, built.writeTimeout)
	assert.Equal(t, defaultIdleTimeout, built.idleTimeout)
	assert.False(t, built.dryRun)
}

func TestBaseConfigRequiresConfig(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithDryRun(true))
	require.Error(t, err)
	assert.Nil(t, built)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "port only", address: ":9090"},
		{name: "localhost", address: "localhost:9090"},
		{name: "ip and port", address: "127.0.0.1:0"},
		{name: "empty", address: "", wantErr: true},
		{name: "missing port", address: ":", wantErr: true},
		{name: "no separator", address: "9090", wantErr: true},
		{name: "bad port", address: ":http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			built, err := baseConfig(WithConfig(createValidTestConfig(t)), WithAddress(tt.address))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, built)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.address, built.address)
		})
	}
}

func TestSelectRepositories(t *testing.T) {
	t.Parallel()
	cfg := createValidTestConfig(t)

	all, err := selectRepositories(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// configuration order wins over flag order
	some, err := selectRepositories(cfg, []string{"acme/tools", "acme/lib", "acme/lib"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "acme/lib", some[0].ID)
	assert.Equal(t, "acme/tools", some[1].ID)

	_, err = selectRepositories(cfg, []string{"acme/unknown"})
	require.ErrorContains(t, err, `repository "acme/unknown" is not configured`)
}

func TestNewBuildsComponents(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	cfg.SourceControl.BranchResolver = config.BranchResolverGit

	app, err := New(context.Background(), WithConfig(cfg), WithRepositories("left-pad"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	components := app.GetComponents()
	require.NotNil(t, components.Store)
	require.NotNil(t, components.Workspace)
	require.NotNil(t, components.Manager)
	require.NotNil(t, components.Coordinator)
	require.NotNil(t, components.Telemetry)

	assert.Equal(t, cfg.WorkDir, components.Workspace.Root())
	assert.Same(t, cfg, app.GetConfig())
	require.Len(t, app.Repositories(), 1)
	assert.Equal(t, "left-pad", app.Repositories()[0].ID)
	assert.Equal(t, ":8080", app.GetHTTPServer().Addr)
}

func TestNewReleasesWorkRootOnError(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	cfg.Publisher.Command = []string{""}

	_, err := New(context.Background(), WithConfig(cfg))
	require.ErrorContains(t, err, "publisher command is required")

	// the lock taken before the failure has been released
	workspace, err := artifact.OpenWorkspace(cfg.WorkDir)
	require.NoError(t, err)
	require.NoError(t, workspace.Close())
}

func TestNewRefusesLockedWorkRoot(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	first, err := New(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(context.Background()) })

	_, err = New(context.Background(), WithConfig(cfg))
	require.ErrorIs(t, err, artifact.ErrWorkspaceLocked)
}

func TestNewUsesInjectedComponents(t *testing.T) {
	t.Parallel()

	versionStore := store.NewMemoryStore()
	discoverers := sources.NewDiscovererFactory(nil, nil)

	app, err := New(context.Background(),
		WithConfig(createValidTestConfig(t)),
		WithStore(versionStore),
		WithDiscovererFactory(discoverers),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Same(t, versionStore, app.GetComponents().Store)
}

func TestNewDownloadClient(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("z", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
				return
			}
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name          string
		sourceControl config.SourceControlConfig
		path          string
		wantErr       error
		wantTimeout   bool
	}{
		{name: "defaults allow archives above the API limit", path: "/archive"},
		{
			name:          "configured size cap rejects larger archives",
			sourceControl: config.SourceControlConfig{DownloadMaxSize: 1024},
			path:          "/archive",
			wantErr:       httpclient.ErrResponseTooLarge,
		},
		{
			name:          "configured timeout bounds the download",
			sourceControl: config.SourceControlConfig{DownloadTimeout: "50ms"},
			path:          "/slow",
			wantTimeout:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := createValidTestConfig(t)
			cfg.SourceControl = tt.sourceControl
			cfg.Sync.MaxRetries = 1
			timeout, err := cfg.SourceControl.GetDownloadTimeout()
			require.NoError(t, err)

			got, err := newDownloadClient(cfg, timeout).Get(context.Background(), server.URL+tt.path)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantTimeout:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Len(t, got, len(body))
			}
		})
	}
}
