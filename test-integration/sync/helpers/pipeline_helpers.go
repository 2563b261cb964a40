package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/onsi/gomega"

	"github.com/stacklok/depsync/internal/npm"
	"github.com/stacklok/depsync/internal/publish"
)

// PublishedPackage is one call seen by RecordingPublisher
type PublishedPackage struct {
	Dependency string
	Files      []string
}

// RecordingPublisher records every publish request and the files present in
// the published directory at the time of the call
type RecordingPublisher struct {
	mu        sync.Mutex
	published []PublishedPackage
	failures  map[string]error
}

// NewRecordingPublisher creates an empty publisher
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{failures: map[string]error{}}
}

// FailOnce makes the next publish of dependency fail
func (p *RecordingPublisher) FailOnce(dependency string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[dependency] = fmt.Errorf("registry unavailable")
}

// Publish implements publish.Publisher
func (p *RecordingPublisher) Publish(_ context.Context, req publish.Request) (publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.failures[req.Dependency()]; ok {
		delete(p.failures, req.Dependency())
		return "", &publish.Error{Request: req, Err: err}
	}

	var files []string
	err := filepath.WalkDir(req.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(req.Path, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", &publish.Error{Request: req, Err: err}
	}
	sort.Strings(files)

	p.published = append(p.published, PublishedPackage{Dependency: req.Dependency(), Files: files})
	return publish.ResultPublished, nil
}

// Published returns the recorded calls in order
func (p *RecordingPublisher) Published() []PublishedPackage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedPackage(nil), p.published...)
}

// Dependencies returns the recorded dependency identifiers in order
func (p *RecordingPublisher) Dependencies() []string {
	var out []string
	for _, pkg := range p.Published() {
		out = append(out, pkg.Dependency)
	}
	return out
}

// FakeInstaller lays out node_modules/{package} with a package.json instead of
// running npm. Versions listed as invalid fail validation.
type FakeInstaller struct {
	Invalid map[string]bool
}

// Install implements the registry installer
func (i FakeInstaller) Install(_ context.Context, pkg, version, prefix string) (string, error) {
	if i.Invalid[version] {
		return "", &npm.ValidationError{Package: pkg, Version: version, ExitCode: 1, Output: "npm error code ETARGET"}
	}
	dir := filepath.Join(prefix, "node_modules", filepath.FromSlash(pkg))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	manifest, err := json.Marshal(map[string]string{"name": pkg, "version": version})
	if err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, "package.json"), manifest, 0o600)
}

// NewPackumentServer serves registry documents for the given packages,
// mapping each name to its versions in publish order
func NewPackumentServer(packages map[string][]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := unescapePackage(r.URL.EscapedPath())
		versions, ok := packages[name]
		if err != nil || !ok {
			writeNotFound(w)
			return
		}

		doc := map[string]any{"name": name}
		versionMap := map[string]any{}
		times := map[string]string{"created": "2014-01-01T00:00:00.000Z"}
		for i, v := range versions {
			versionMap[v] = map[string]string{"version": v}
			times[v] = fmt.Sprintf("%d-01-01T00:00:00.000Z", 2015+i)
		}
		doc["versions"] = versionMap
		doc["time"] = times
		writeJSON(w, doc)
	}))
}

func unescapePackage(escaped string) (string, error) {
	if len(escaped) < 2 {
		return "", fmt.Errorf("empty package path")
	}
	return url.PathUnescape(escaped[1:])
}

// FreePort returns a TCP port that was free at the time of the call
func FreePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}
