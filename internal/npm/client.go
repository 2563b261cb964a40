package npm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/depsync/internal/httpclient"
	"github.com/stacklok/depsync/internal/process"
)

// packumentAccept requests the abbreviated metadata document when the
// registry supports it; the full document is accepted otherwise.
const packumentAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

// Client lists and installs npm packages
type Client struct {
	httpClient  httpclient.Client
	registryURL string
	command     string
	runner      process.Runner
}

// Option configures a Client
type Option func(*Client)

// WithRunner replaces the process runner used for installs
func WithRunner(runner process.Runner) Option {
	return func(c *Client) {
		c.runner = runner
	}
}

// WithCommand sets the npm executable
func WithCommand(command string) Option {
	return func(c *Client) {
		if command != "" {
			c.command = command
		}
	}
}

// NewClient creates a client for the registry at registryURL
func NewClient(httpClient httpclient.Client, registryURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:  httpClient,
		registryURL: strings.TrimSuffix(registryURL, "/"),
		command:     "npm",
		runner:      process.ExecRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPackumentHTTPClient creates the HTTP client used for packument requests
func NewPackumentHTTPClient(maxTries uint) *httpclient.DefaultClient {
	return httpclient.NewDefaultClient(0,
		httpclient.WithUserAgent("depsync"),
		httpclient.WithAccept(packumentAccept),
		httpclient.WithMaxTries(maxTries),
	)
}

// ListVersions returns every published version of pkg, oldest first. Versions
// are ordered by publish time when the packument carries one for every version,
// and by document order otherwise.
func (c *Client) ListVersions(ctx context.Context, pkg string) ([]string, error) {
	body, err := c.httpClient.Get(ctx, c.packumentURL(pkg))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch packument for %s: %w", pkg, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid packument for %s", pkg)
	}

	doc := gjson.ParseBytes(body)
	times := doc.Get("time")

	type entry struct {
		version   string
		published time.Time
	}
	var (
		entries []entry
		timed   = true
	)
	doc.Get("versions").ForEach(func(key, _ gjson.Result) bool {
		v := key.String()
		e := entry{version: v}
		if ts := times.Get(gjson.Escape(v)); ts.Exists() {
			if parsed, err := time.Parse(time.RFC3339, ts.String()); err == nil {
				e.published = parsed
			} else {
				timed = false
			}
		} else {
			timed = false
		}
		entries = append(entries, e)
		return true
	})

	if timed {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].published.Before(entries[j].published)
		})
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.version)
	}

	slog.Debug("Listed registry versions", "package", pkg, "count", len(versions), "byPublishTime", timed)
	return versions, nil
}

// Install installs pkg@version under prefix and returns the installed package
// directory. A non-zero npm exit yields a *ValidationError.
func (c *Client) Install(ctx context.Context, pkg, version, prefix string) (string, error) {
	if err := os.MkdirAll(prefix, 0o750); err != nil {
		return "", fmt.Errorf("failed to create install prefix: %w", err)
	}

	args := []string{
		"install", pkg + "@" + version,
		"--force",
		"--no-save",
		"--no-package-lock",
		"--ignore-scripts",
		"--prefix", prefix,
	}
	output, exitCode, err := c.runner.Run(ctx, prefix, c.command, args...)
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", c.command, err)
	}
	if exitCode != 0 {
		return "", &ValidationError{
			Package:  pkg,
			Version:  version,
			ExitCode: exitCode,
			Output:   strings.TrimSpace(string(output)),
		}
	}

	dir := filepath.Join(prefix, "node_modules", filepath.FromSlash(pkg))
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("installed package directory missing: %w", err)
	}
	return dir, nil
}

func (c *Client) packumentURL(pkg string) string {
	// scoped names keep the @ and encode the separator
	if strings.HasPrefix(pkg, "@") {
		return c.registryURL + "/" + strings.Replace(pkg, "/", "%2f", 1)
	}
	return c.registryURL + "/" + url.PathEscape(pkg)
}
