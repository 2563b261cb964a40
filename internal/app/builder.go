package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/depsync/internal/api"
	"github.com/stacklok/depsync/internal/artifact"
	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/git"
	"github.com/stacklok/depsync/internal/httpclient"
	"github.com/stacklok/depsync/internal/naming"
	"github.com/stacklok/depsync/internal/npm"
	"github.com/stacklok/depsync/internal/publish"
	"github.com/stacklok/depsync/internal/sources"
	"github.com/stacklok/depsync/internal/store"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/sync/coordinator"
	"github.com/stacklok/depsync/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Option is a function that configures the app builder
type Option func(*appConfig) error

// appConfig collects everything needed to build an App.
// Component overrides are primarily for testing; production uses the defaults.
type appConfig struct {
	config *config.Config

	repositories []string
	dryRun       bool

	// Optional component overrides
	store       store.VersionStore
	discoverers sources.DiscovererFactory
	fetcher     pkgsync.Fetcher
	installer   pkgsync.Installer
	publisher   publish.Publisher
	telemetry   *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.Server.GetAddress()
	}

	return cfg, nil
}

// New builds the pipeline described by the configuration
func New(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	repositories, err := selectRepositories(cfg.config, cfg.repositories)
	if err != nil {
		return nil, err
	}

	components := &Components{}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			if err := components.close(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release components", "error", err)
			}
		}
	}()

	if err := buildStorageComponents(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build storage components: %w", err)
	}

	if err := buildSyncComponents(ctx, cfg, components, repositories); err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &App{
		config:       cfg.config,
		repositories: repositories,
		components:   components,
		httpServer:   httpServer,
		ctx:          appCtx,
		cancelFunc:   cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Option {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithRepositories restricts runs to the given repository identifiers
func WithRepositories(ids ...string) Option {
	return func(cfg *appConfig) error {
		cfg.repositories = ids
		return nil
	}
}

// WithDryRun reports pending versions without fetching, publishing or writing
func WithDryRun(dryRun bool) Option {
	return func(cfg *appConfig) error {
		cfg.dryRun = dryRun
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore allows injecting a version store (for testing)
func WithStore(s store.VersionStore) Option {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithDiscovererFactory allows injecting discoverers (for testing)
func WithDiscovererFactory(f sources.DiscovererFactory) Option {
	return func(cfg *appConfig) error {
		cfg.discoverers = f
		return nil
	}
}

// WithFetcher allows injecting the archive fetcher (for testing)
func WithFetcher(f pkgsync.Fetcher) Option {
	return func(cfg *appConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithInstaller allows injecting the package installer (for testing)
func WithInstaller(i pkgsync.Installer) Option {
	return func(cfg *appConfig) error {
		cfg.installer = i
		return nil
	}
}

// WithPublisher allows injecting the registry publisher (for testing).
// The publisher is wrapped so pushes stay mutually exclusive.
func WithPublisher(p publish.Publisher) Option {
	return func(cfg *appConfig) error {
		cfg.publisher = p
		return nil
	}
}

// WithTelemetry sets already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// selectRepositories narrows the configured repositories to ids, keeping configuration order
func selectRepositories(cfg *config.Config, ids []string) ([]config.Repository, error) {
	if len(ids) == 0 {
		return cfg.Repositories, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := cfg.FindRepository(id); !ok {
			return nil, fmt.Errorf("repository %q is not configured", id)
		}
		wanted[id] = true
	}

	selected := make([]config.Repository, 0, len(wanted))
	for _, repo := range cfg.Repositories {
		if wanted[repo.ID] {
			selected = append(selected, repo)
		}
	}
	return selected, nil
}

// buildStorageComponents opens the telemetry providers, the version store and the work root
func buildStorageComponents(ctx context.Context, b *appConfig, components *Components) error {
	var err error

	components.Telemetry = b.telemetry
	if components.Telemetry == nil {
		components.Telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		components.ownsTelemetry = true
	}

	components.Store = b.store
	if components.Store == nil {
		components.Store, err = store.New(ctx, b.config)
		if err != nil {
			return fmt.Errorf("failed to open version store: %w", err)
		}
		slog.Info("Version store opened", "type", b.config.Storage.GetType())
	}

	components.Workspace, err = artifact.OpenWorkspace(b.config.GetWorkDir())
	if err != nil {
		return err
	}
	slog.Debug("Work directory locked", "path", components.Workspace.Root())
	return nil
}

// buildSyncComponents builds discovery, fetching, publishing, the sync manager and the coordinator
func buildSyncComponents(
	ctx context.Context,
	b *appConfig,
	components *Components,
	repositories []config.Repository,
) error {
	slog.Info("Initializing sync components")
	cfg := b.config

	npmClient := npm.NewClient(
		npm.NewPackumentHTTPClient(cfg.Sync.GetMaxRetries()),
		cfg.Registry.GetURL(),
		npm.WithCommand(cfg.Registry.GetNPMCommand()),
	)

	if b.discoverers == nil {
		sourceControl, err := buildSourceControlDiscoverer(ctx, cfg)
		if err != nil {
			return err
		}
		b.discoverers = sources.NewDiscovererFactory(sourceControl, sources.NewRegistryDiscoverer(npmClient))
	}

	if b.installer == nil {
		b.installer = npmClient
	}

	if b.fetcher == nil {
		downloadTimeout, err := cfg.SourceControl.GetDownloadTimeout()
		if err != nil {
			return fmt.Errorf("invalid download timeout: %w", err)
		}
		b.fetcher = artifact.NewFetcher(newDownloadClient(cfg, downloadTimeout))
	}

	if b.publisher == nil {
		timeout, err := cfg.Publisher.GetTimeout()
		if err != nil {
			return fmt.Errorf("invalid publisher timeout: %w", err)
		}
		b.publisher, err = publish.NewCLIPublisher(
			cfg.Publisher.GetCommand(),
			cfg.Publisher.GetExtraArgs(),
			publish.WithTimeout(timeout),
		)
		if err != nil {
			return fmt.Errorf("failed to create publisher: %w", err)
		}
	}

	syncMetrics, err := telemetry.NewSyncMetrics(components.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	freshness, err := cfg.Sync.GetFreshnessWindow()
	if err != nil {
		return fmt.Errorf("invalid freshness window: %w", err)
	}
	interval, err := cfg.Sync.GetInterval()
	if err != nil {
		return fmt.Errorf("invalid sync interval: %w", err)
	}

	components.Manager = pkgsync.NewDefaultSyncManager(
		pkgsync.Components{
			Discoverers: b.discoverers,
			Normalizer:  naming.FromConfig(cfg),
			Store:       components.Store,
			Fetcher:     b.fetcher,
			Extractor:   artifact.NewExtractor(),
			Installer:   b.installer,
			Workspace:   components.Workspace,
			Publisher:   publish.Exclusive(b.publisher),
		},
		pkgsync.WithFreshnessWindow(freshness),
		pkgsync.WithPrepareConcurrency(cfg.Sync.GetPrepareConcurrency()),
		pkgsync.WithAbortOnExtractionError(cfg.Sync.AbortOnExtractionError),
		pkgsync.WithDryRun(b.dryRun),
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithTracerProvider(components.Telemetry.TracerProvider()),
	)

	components.Coordinator = coordinator.New(components.Manager, repositories,
		coordinator.WithWorkers(cfg.Sync.GetWorkers()),
		coordinator.WithInterval(interval),
		coordinator.WithRateLimit(cfg.Sync.GetRequestsPerSecond(), cfg.Sync.GetBurst()),
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithTracerProvider(components.Telemetry.TracerProvider()),
	)

	slog.Info("Sync components initialized successfully",
		"repository_count", len(repositories),
		"dry_run", b.dryRun)
	return nil
}

// buildSourceControlDiscoverer creates the GitHub discoverer with the configured branch resolver
func buildSourceControlDiscoverer(ctx context.Context, cfg *config.Config) (sources.Discoverer, error) {
	client, err := sources.NewGitHubClient(ctx, &cfg.SourceControl)
	if err != nil {
		return nil, err
	}

	opts := []sources.SourceControlOption{
		sources.WithPaging(cfg.SourceControl.GetPerPage(), cfg.SourceControl.GetMaxPages()),
		sources.WithMaxTries(cfg.Sync.GetMaxRetries()),
	}
	if cfg.SourceControl.GetBranchResolver() == config.BranchResolverGit {
		opts = append(opts, sources.WithBranchResolver(
			git.NewRemoteResolver(cfg.SourceControl.GetGitURL(), cfg.SourceControl.GetToken()),
		))
		slog.Debug("Resolving tracked branches over git")
	}

	return sources.NewSourceControlDiscoverer(client, opts...), nil
}

// buildHTTPServer builds the watch-mode HTTP server with router and middleware
func buildHTTPServer(b *appConfig, components *Components) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first so they capture every request
	httpMetrics, err := telemetry.NewHTTPMetrics(components.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(components.Telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if handler := components.Telemetry.MetricsHandler(); handler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(handler))
	}

	router := api.NewServer(components.Store, components.Coordinator, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Debug("HTTP server configured", "address", b.address)
	return server, nil
}

// newDownloadClient builds the archive download client. Archives are far
// larger than API responses, so both limits come from configuration.
func newDownloadClient(cfg *config.Config, timeout time.Duration) *httpclient.DefaultClient {
	return httpclient.NewDefaultClient(timeout,
		httpclient.WithUserAgent(httpclient.BrowserUserAgent),
		httpclient.WithMaxTries(cfg.Sync.GetMaxRetries()),
		httpclient.WithMaxResponseSize(cfg.SourceControl.GetDownloadMaxSize()),
	)
}
