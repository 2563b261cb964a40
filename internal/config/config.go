// Package config provides configuration loading and management for depsync.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/depsync/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read by depsync.
const EnvPrefix = "DEPSYNC"

const (
	// KindSourceControl tracks a repository hosted on a source-control platform
	KindSourceControl = "source-control"

	// KindRegistry tracks a package published on a package registry
	KindRegistry = "registry"
)

// Tag policies for source-control repositories.
const (
	// TagsFallback lists tags only when no release is found
	TagsFallback = "fallback"

	// TagsAlways lists tags instead of releases
	TagsAlways = "always"

	// TagsNever never lists tags
	TagsNever = "never"
)

const (
	// StorageTypeSQLite stores version records in a local SQLite file
	StorageTypeSQLite = "sqlite"

	// StorageTypeDatabase stores version records in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps version records in memory only
	StorageTypeMemory = "memory"
)

const (
	// BranchResolverAPI resolves branch heads through the source-control API
	BranchResolverAPI = "api"

	// BranchResolverGit resolves branch heads by listing the remote's references
	BranchResolverGit = "git"
)

const (
	defaultWorkDir            = "./data/work"
	defaultSQLitePath         = "./data/repositories.db"
	defaultFreshnessWindow    = time.Hour
	defaultSyncInterval       = time.Hour
	defaultWorkers            = 4
	defaultPrepareConcurrency = 1
	defaultRequestsPerSecond  = 1.0
	defaultBurst              = 1
	defaultMaxRetries         = 5
	defaultAPIURL             = "https://api.github.com/"
	defaultTokenEnv           = "GITHUB_TOKEN"
	defaultGitURL             = "https://github.com/"
	defaultPerPage            = 100
	defaultMaxPages           = 10
	defaultDownloadTimeout    = 10 * time.Minute
	defaultDownloadMaxSize    = 1 << 30
	defaultRegistryURL        = "https://registry.npmjs.org"
	defaultNPMCommand         = "npm"
	defaultPublishTimeout     = 10 * time.Minute
	defaultServerAddress      = ":8080"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		realPath, err := resolveLocalPath(path)
		if err != nil {
			return err
		}
		cfg.path = realPath
		return nil
	}
}

// resolveLocalPath resolves symlinks and rejects relative paths that escape
// the working directory.
func resolveLocalPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate symlinks: %w", err)
	}

	if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
		return "", fmt.Errorf("path is not local or contains invalid traversal: %s", path)
	}
	return realPath, nil
}

// Config represents the root configuration structure
type Config struct {
	// WorkDir is the root under which artifacts are extracted and packages installed
	WorkDir string `yaml:"workDir,omitempty"`

	// RepositoriesFile optionally points at a legacy TOML repository list.
	// Relative paths are resolved against the directory of the YAML file.
	RepositoriesFile string `yaml:"repositoriesFile,omitempty"`

	Storage       StorageConfig       `yaml:"storage,omitempty"`
	Database      *DatabaseConfig     `yaml:"database,omitempty"`
	Sync          SyncConfig          `yaml:"sync,omitempty"`
	SourceControl SourceControlConfig `yaml:"sourceControl,omitempty"`
	Registry      RegistryConfig      `yaml:"registry,omitempty"`
	Publisher     PublisherConfig     `yaml:"publisher,omitempty"`
	Naming        NamingConfig        `yaml:"naming,omitempty"`
	Server        ServerConfig        `yaml:"server,omitempty"`
	Telemetry     *telemetry.Config   `yaml:"telemetry,omitempty"`

	// Repositories is the flat list of tracked repositories
	Repositories []Repository `yaml:"repositories"`
}

// Repository is one tracked upstream dependency
type Repository struct {
	// ID is the upstream identifier, "org/project" or a package name
	ID string `yaml:"id"`

	// Kind selects the discovery strategy: source-control or registry
	Kind string `yaml:"kind"`

	// Name overrides the canonical registry name for this repository
	Name string `yaml:"name,omitempty"`

	// StrictVersion enables strict version-name normalization
	StrictVersion bool `yaml:"strictVersion,omitempty"`

	// SkipReleases disables release discovery
	SkipReleases bool `yaml:"skipReleases,omitempty"`

	// Tags is the tag discovery policy: fallback (default), always or never
	Tags string `yaml:"tags,omitempty"`

	// TrackBranch publishes the head of main/master instead of releases or tags
	TrackBranch bool `yaml:"trackBranch,omitempty"`
}

// GetTagPolicy returns the tag policy, defaulting to fallback
func (r *Repository) GetTagPolicy() string {
	if r.Tags == "" {
		return TagsFallback
	}
	return r.Tags
}

// IsSourceControl reports whether the repository is discovered through source control
func (r *Repository) IsSourceControl() bool {
	return r.Kind == KindSourceControl
}

// StorageConfig selects the VersionStore backend
type StorageConfig struct {
	// Type is one of sqlite (default), database or memory
	Type string `yaml:"type,omitempty"`

	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
}

// SQLiteConfig configures the SQLite store
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"`
}

// GetType returns the storage type, defaulting to sqlite
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeSQLite
	}
	return s.Type
}

// GetPath returns the SQLite database path
func (s *SQLiteConfig) GetPath() string {
	if s.Path == "" {
		return defaultSQLitePath
	}
	return s.Path
}

// SyncConfig controls the pace and parallelism of a run
type SyncConfig struct {
	// FreshnessWindow skips repositories with store activity more recent than this (e.g., "1h")
	FreshnessWindow string `yaml:"freshnessWindow,omitempty"`

	// Interval is the period between runs in watch mode (e.g., "1h")
	Interval string `yaml:"interval,omitempty"`

	// Workers is the number of repositories processed concurrently
	Workers int `yaml:"workers,omitempty"`

	// PrepareConcurrency is the number of versions of one repository prepared ahead of publishing
	PrepareConcurrency int `yaml:"prepareConcurrency,omitempty"`

	// RequestsPerSecond paces repository discovery passes
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// Burst is the token bucket size for discovery pacing
	Burst int `yaml:"burst,omitempty"`

	// MaxRetries caps retries of transient upstream failures
	MaxRetries uint `yaml:"maxRetries,omitempty"`

	// AbortOnExtractionError ends the whole run on a corrupt archive
	AbortOnExtractionError bool `yaml:"abortOnExtractionError,omitempty"`
}

// GetFreshnessWindow returns the parsed freshness window
func (s *SyncConfig) GetFreshnessWindow() (time.Duration, error) {
	return parseDurationOr(s.FreshnessWindow, defaultFreshnessWindow)
}

// GetInterval returns the parsed watch interval
func (s *SyncConfig) GetInterval() (time.Duration, error) {
	return parseDurationOr(s.Interval, defaultSyncInterval)
}

// GetWorkers returns the repository worker count
func (s *SyncConfig) GetWorkers() int {
	return intOr(s.Workers, defaultWorkers)
}

// GetPrepareConcurrency returns the per-repository preparation window
func (s *SyncConfig) GetPrepareConcurrency() int {
	return intOr(s.PrepareConcurrency, defaultPrepareConcurrency)
}

// GetRequestsPerSecond returns the discovery pacing rate
func (s *SyncConfig) GetRequestsPerSecond() float64 {
	if s.RequestsPerSecond <= 0 {
		return defaultRequestsPerSecond
	}
	return s.RequestsPerSecond
}

// GetBurst returns the discovery pacing burst
func (s *SyncConfig) GetBurst() int {
	return intOr(s.Burst, defaultBurst)
}

// GetMaxRetries returns the retry cap for transient failures
func (s *SyncConfig) GetMaxRetries() uint {
	if s.MaxRetries == 0 {
		return defaultMaxRetries
	}
	return s.MaxRetries
}

// SourceControlConfig configures the source-control platform client
type SourceControlConfig struct {
	// APIURL is the REST API base URL
	APIURL string `yaml:"apiURL,omitempty"`

	// TokenEnv names the environment variable holding the API token
	TokenEnv string `yaml:"tokenEnv,omitempty"`

	// BranchResolver is api (default) or git
	BranchResolver string `yaml:"branchResolver,omitempty"`

	// GitURL is the clone URL base used by the git branch resolver
	GitURL string `yaml:"gitURL,omitempty"`

	// PerPage is the listing page size
	PerPage int `yaml:"perPage,omitempty"`

	// MaxPages caps how many pages of releases or tags are read
	MaxPages int `yaml:"maxPages,omitempty"`

	// DownloadTimeout bounds one source archive download (e.g., "10m")
	DownloadTimeout string `yaml:"downloadTimeout,omitempty"`

	// DownloadMaxSize caps one source archive in bytes
	DownloadMaxSize int64 `yaml:"downloadMaxSize,omitempty"`
}

// GetAPIURL returns the API base URL with a trailing slash
func (s *SourceControlConfig) GetAPIURL() string {
	if s.APIURL == "" {
		return defaultAPIURL
	}
	if !strings.HasSuffix(s.APIURL, "/") {
		return s.APIURL + "/"
	}
	return s.APIURL
}

// GetToken returns the API token from the configured environment variable
func (s *SourceControlConfig) GetToken() string {
	name := s.TokenEnv
	if name == "" {
		name = defaultTokenEnv
	}
	return os.Getenv(name)
}

// GetBranchResolver returns the branch resolver, defaulting to api
func (s *SourceControlConfig) GetBranchResolver() string {
	if s.BranchResolver == "" {
		return BranchResolverAPI
	}
	return s.BranchResolver
}

// GetGitURL returns the clone URL base with a trailing slash
func (s *SourceControlConfig) GetGitURL() string {
	if s.GitURL == "" {
		return defaultGitURL
	}
	if !strings.HasSuffix(s.GitURL, "/") {
		return s.GitURL + "/"
	}
	return s.GitURL
}

// GetPerPage returns the listing page size
func (s *SourceControlConfig) GetPerPage() int {
	return intOr(s.PerPage, defaultPerPage)
}

// GetMaxPages returns the listing page cap
func (s *SourceControlConfig) GetMaxPages() int {
	return intOr(s.MaxPages, defaultMaxPages)
}

// GetDownloadTimeout returns the parsed archive download timeout
func (s *SourceControlConfig) GetDownloadTimeout() (time.Duration, error) {
	return parseDurationOr(s.DownloadTimeout, defaultDownloadTimeout)
}

// GetDownloadMaxSize returns the archive size cap in bytes
func (s *SourceControlConfig) GetDownloadMaxSize() int64 {
	if s.DownloadMaxSize <= 0 {
		return defaultDownloadMaxSize
	}
	return s.DownloadMaxSize
}

// RegistryConfig configures the upstream package registry
type RegistryConfig struct {
	URL        string `yaml:"url,omitempty"`
	NPMCommand string `yaml:"npmCommand,omitempty"`
}

// GetURL returns the registry base URL without a trailing slash
func (r *RegistryConfig) GetURL() string {
	if r.URL == "" {
		return defaultRegistryURL
	}
	return strings.TrimSuffix(r.URL, "/")
}

// GetNPMCommand returns the package manager binary
func (r *RegistryConfig) GetNPMCommand() string {
	if r.NPMCommand == "" {
		return defaultNPMCommand
	}
	return r.NPMCommand
}

// PublisherConfig configures the internal registry push client
type PublisherConfig struct {
	// Command is the push command and its leading arguments
	Command []string `yaml:"command,omitempty"`

	// ExtraArgs are appended after the dependency and path arguments
	ExtraArgs []string `yaml:"extraArgs,omitempty"`

	// Timeout bounds a single push (e.g., "10m")
	Timeout string `yaml:"timeout,omitempty"`
}

// GetCommand returns the push command
func (p *PublisherConfig) GetCommand() []string {
	if len(p.Command) == 0 {
		return []string{"soldeer", "push"}
	}
	return p.Command
}

// GetExtraArgs returns the trailing push arguments
func (p *PublisherConfig) GetExtraArgs() []string {
	if p.ExtraArgs == nil {
		return []string{"--skip-warnings"}
	}
	return p.ExtraArgs
}

// GetTimeout returns the parsed push timeout
func (p *PublisherConfig) GetTimeout() (time.Duration, error) {
	return parseDurationOr(p.Timeout, defaultPublishTimeout)
}

// NamingConfig holds the name normalization tables
type NamingConfig struct {
	// RepositoryNames maps repository identifiers to registry names
	RepositoryNames map[string]string `yaml:"repositoryNames,omitempty"`

	// StrictVersions lists canonical repository names with strict version normalization
	StrictVersions []string `yaml:"strictVersions,omitempty"`
}

// ServerConfig configures the watch-mode HTTP server
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// GetAddress returns the listen address
func (s *ServerConfig) GetAddress() string {
	if s.Address == "" {
		return defaultServerAddress
	}
	return s.Address
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password, read from PasswordFile when set
// and from DEPSYNC_DATABASE_PASSWORD otherwise.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL URL with the password escaped
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.RepositoriesFile != "" {
		listPath := config.RepositoriesFile
		if !filepath.IsAbs(listPath) {
			listPath = filepath.Join(filepath.Dir(loaderCfg.path), listPath)
		}
		legacy, err := LoadRepositoriesFile(listPath)
		if err != nil {
			return nil, err
		}
		config.Repositories = mergeRepositories(config.Repositories, legacy)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetWorkDir returns the work root
func (c *Config) GetWorkDir() string {
	if c.WorkDir == "" {
		return defaultWorkDir
	}
	return c.WorkDir
}

// FindRepository returns the repository with the given identifier
func (c *Config) FindRepository(id string) (Repository, bool) {
	for _, repo := range c.Repositories {
		if repo.ID == id {
			return repo, true
		}
	}
	return Repository{}, false
}

// mergeRepositories appends legacy entries whose identifier is not already configured.
func mergeRepositories(configured, legacy []Repository) []Repository {
	seen := make(map[string]bool, len(configured))
	for _, repo := range configured {
		seen[repo.ID] = true
	}
	for _, repo := range legacy {
		if seen[repo.ID] {
			continue
		}
		seen[repo.ID] = true
		configured = append(configured, repo)
	}
	return configured
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Repositories) == 0 {
		return fmt.Errorf("at least one repository must be configured")
	}

	ids := make(map[string]bool)
	for i, repo := range c.Repositories {
		if err := validateRepository(&repo, i); err != nil {
			return err
		}
		if ids[repo.ID] {
			return fmt.Errorf("repository[%d]: duplicate repository id '%s'", i, repo.ID)
		}
		ids[repo.ID] = true
	}

	switch c.Storage.GetType() {
	case StorageTypeSQLite, StorageTypeMemory:
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("storage type %s requires a database section", StorageTypeDatabase)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.SourceControl.GetBranchResolver() {
	case BranchResolverAPI, BranchResolverGit:
	default:
		return fmt.Errorf("unsupported branch resolver: %s", c.SourceControl.BranchResolver)
	}

	if _, err := c.Sync.GetFreshnessWindow(); err != nil {
		return fmt.Errorf("sync.freshnessWindow: %w", err)
	}
	if _, err := c.Sync.GetInterval(); err != nil {
		return fmt.Errorf("sync.interval: %w", err)
	}
	if _, err := c.Publisher.GetTimeout(); err != nil {
		return fmt.Errorf("publisher.timeout: %w", err)
	}
	if _, err := c.SourceControl.GetDownloadTimeout(); err != nil {
		return fmt.Errorf("sourceControl.downloadTimeout: %w", err)
	}
	if c.SourceControl.DownloadMaxSize < 0 {
		return fmt.Errorf("sourceControl.downloadMaxSize must not be negative")
	}

	return nil
}

func validateRepository(repo *Repository, index int) error {
	if repo.ID == "" {
		return fmt.Errorf("repository[%d]: id is required", index)
	}

	prefix := fmt.Sprintf("repository[%d] (%s)", index, repo.ID)

	switch repo.Kind {
	case KindSourceControl:
		owner, name, ok := strings.Cut(repo.ID, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("%s: source-control id must have the form org/project", prefix)
		}
		switch repo.GetTagPolicy() {
		case TagsFallback, TagsAlways, TagsNever:
		default:
			return fmt.Errorf("%s: unsupported tag policy '%s'", prefix, repo.Tags)
		}
	case KindRegistry:
		if repo.SkipReleases || repo.TrackBranch || repo.Tags != "" {
			return fmt.Errorf("%s: discovery tier flags apply to source-control repositories only", prefix)
		}
	case "":
		return fmt.Errorf("%s: kind is required", prefix)
	default:
		return fmt.Errorf("%s: unsupported kind '%s'", prefix, repo.Kind)
	}

	return nil
}

func parseDurationOr(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", value)
	}
	return d, nil
}

func intOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
