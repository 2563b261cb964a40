package helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/depsync/internal/app"
	"github.com/stacklok/depsync/internal/config"
)

// PipelineConfig describes the configuration file written for one test
type PipelineConfig struct {
	Dir                    string
	SourceControlURL       string
	RegistryURL            string
	Repositories           []config.Repository
	FreshnessWindow        string
	AbortOnExtractionError bool
}

// WriteConfigYAML writes a depsync configuration backed by SQLite under dir
// and returns its path
func WriteConfigYAML(pc PipelineConfig) string {
	window := pc.FreshnessWindow
	if window == "" {
		window = "1h"
	}

	var repos strings.Builder
	for _, repo := range pc.Repositories {
		fmt.Fprintf(&repos, "  - id: %q\n    kind: %s\n", repo.ID, repo.Kind)
		if repo.Name != "" {
			fmt.Fprintf(&repos, "    name: %s\n", repo.Name)
		}
		if repo.Tags != "" {
			fmt.Fprintf(&repos, "    tags: %s\n", repo.Tags)
		}
		if repo.TrackBranch {
			repos.WriteString("    trackBranch: true\n")
		}
		if repo.StrictVersion {
			repos.WriteString("    strictVersion: true\n")
		}
	}

	content := fmt.Sprintf(`workDir: %s
storage:
  type: sqlite
  sqlite:
    path: %s
sync:
  freshnessWindow: %s
  interval: 1h
  workers: 2
  prepareConcurrency: 2
  requestsPerSecond: 100
  burst: 10
  maxRetries: 1
  abortOnExtractionError: %t
sourceControl:
  apiURL: %s
  tokenEnv: DEPSYNC_TEST_GITHUB_TOKEN
registry:
  url: %s
repositories:
%s`,
		filepath.Join(pc.Dir, "work"),
		filepath.Join(pc.Dir, "repositories.db"),
		window,
		pc.AbortOnExtractionError,
		pc.SourceControlURL,
		pc.RegistryURL,
		repos.String(),
	)

	path := filepath.Join(pc.Dir, "depsync.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}

// BuildApp loads configPath and builds an App with the given overrides
func BuildApp(ctx context.Context, configPath string, opts ...app.Option) *app.App {
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	pipeline, err := app.New(ctx, append([]app.Option{app.WithConfig(cfg)}, opts...)...)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return pipeline
}

// ServerTestHelper drives an App in watch mode
type ServerTestHelper struct {
	app        *app.App
	baseURL    string
	httpClient *http.Client
	errCh      chan error
}

// StartServer starts watch mode on the given port
func StartServer(ctx context.Context, configPath string, port int, opts ...app.Option) *ServerTestHelper {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	pipeline := BuildApp(ctx, configPath, append(opts, app.WithAddress(address))...)

	s := &ServerTestHelper{
		app:        pipeline,
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		errCh:      make(chan error, 1),
	}
	go func() {
		s.errCh <- pipeline.Start()
	}()
	return s
}

// WaitForReady waits until the first run has completed
func (s *ServerTestHelper) WaitForReady(timeout time.Duration) {
	gomega.Eventually(func() (int, error) {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode, nil
	}, timeout, 100*time.Millisecond).Should(gomega.Equal(http.StatusOK), "server should become ready")
}

// Get performs a GET request and returns the status code and body
func (s *ServerTestHelper) Get(path string) (int, []byte) {
	resp, err := s.httpClient.Get(s.baseURL + path)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return resp.StatusCode, body
}

// Done returns the result of Start once watch mode has ended
func (s *ServerTestHelper) Done() <-chan error {
	return s.errCh
}

// Close releases the app without stopping it, for runs that ended on their own
func (s *ServerTestHelper) Close() {
	gomega.Expect(s.app.Close(context.Background())).To(gomega.Succeed())
}

// Stop ends watch mode and releases the app
func (s *ServerTestHelper) Stop() {
	gomega.Expect(s.app.Stop(5 * time.Second)).To(gomega.Succeed())
	gomega.Eventually(s.errCh, 5*time.Second).Should(gomega.Receive(gomega.BeNil()))
	gomega.Expect(s.app.Close(context.Background())).To(gomega.Succeed())
}
