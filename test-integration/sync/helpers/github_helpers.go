// Package helpers provides fakes and fixtures for the sync integration tests.
package helpers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/onsi/gomega"
)

// FakeRelease is one release served by FakeGitHub
type FakeRelease struct {
	Name    string
	TagName string
}

type fakeRepository struct {
	releases []FakeRelease
	tags     []string
	branches map[string]string
	archives map[string][]byte

	// errorDocs lists refs whose default-shape zipball is an error document
	errorDocs map[string]bool
}

// FakeGitHub serves the subset of the GitHub REST API depsync reads:
// releases, tags, branches and zipball downloads.
type FakeGitHub struct {
	server *httptest.Server

	mu           sync.Mutex
	repositories map[string]*fakeRepository
	downloads    map[string]int
}

// NewFakeGitHub starts a fake API server
func NewFakeGitHub() *FakeGitHub {
	f := &FakeGitHub{
		repositories: make(map[string]*fakeRepository),
		downloads:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}/releases", f.handleReleases)
	r.Get("/repos/{owner}/{repo}/tags", f.handleTags)
	r.Get("/repos/{owner}/{repo}/branches", f.handleBranches)
	r.Get("/repos/{owner}/{repo}/zipball/refs/tags/{ref}", f.handleTagZipball)
	r.Get("/repos/{owner}/{repo}/zipball/{ref}", f.handleZipball)
	f.server = httptest.NewServer(r)
	return f
}

// URL returns the API base URL with a trailing slash
func (f *FakeGitHub) URL() string {
	return f.server.URL + "/"
}

// Close stops the server
func (f *FakeGitHub) Close() {
	f.server.Close()
}

func (f *FakeGitHub) repository(id string) *fakeRepository {
	repo, ok := f.repositories[id]
	if !ok {
		repo = &fakeRepository{
			branches:  map[string]string{},
			archives:  map[string][]byte{},
			errorDocs: map[string]bool{},
		}
		f.repositories[id] = repo
	}
	return repo
}

// AddRelease publishes a release whose zipball contains files. Releases are
// listed newest first, in reverse order of addition.
func (f *FakeGitHub) AddRelease(id string, release FakeRelease, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repository(id)
	repo.releases = append(repo.releases, release)
	repo.archives[release.TagName] = BuildZipball(id, release.TagName, files)
}

// AddTag adds a tag whose zipball contains files
func (f *FakeGitHub) AddTag(id, tag string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repository(id)
	repo.tags = append(repo.tags, tag)
	repo.archives[tag] = BuildZipball(id, tag, files)
}

// SetBranchHead points a branch at sha and serves files for that commit
func (f *FakeGitHub) SetBranchHead(id, branch, sha string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repository(id)
	repo.branches[branch] = sha
	repo.archives[sha] = BuildZipball(id, sha, files)
}

// SetArchive replaces the zipball served for ref with raw bytes
func (f *FakeGitHub) SetArchive(id, ref string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repository(id).archives[ref] = data
}

// ServeErrorDocument makes the default zipball URL of ref answer with a JSON
// error document, leaving only the tag-qualified URL serving the archive
func (f *FakeGitHub) ServeErrorDocument(id, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repository(id).errorDocs[ref] = true
}

// Downloads returns how many times the zipball for ref was fetched
func (f *FakeGitHub) Downloads(id, ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[id+"@"+ref]
}

func (f *FakeGitHub) lookup(r *http.Request) (string, *fakeRepository, bool) {
	id := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	repo, ok := f.repositories[id]
	return id, repo, ok
}

func (f *FakeGitHub) handleReleases(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, repo, ok := f.lookup(r)
	if !ok {
		writeNotFound(w)
		return
	}

	body := make([]map[string]string, 0, len(repo.releases))
	for i := len(repo.releases) - 1; i >= 0; i-- {
		release := repo.releases[i]
		body = append(body, map[string]string{
			"name":        release.Name,
			"tag_name":    release.TagName,
			"zipball_url": fmt.Sprintf("%srepos/%s/zipball/%s", f.URL(), id, release.TagName),
		})
	}
	writeJSON(w, body)
}

func (f *FakeGitHub) handleTags(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, repo, ok := f.lookup(r)
	if !ok {
		writeNotFound(w)
		return
	}

	body := make([]map[string]string, 0, len(repo.tags))
	for i := len(repo.tags) - 1; i >= 0; i-- {
		tag := repo.tags[i]
		body = append(body, map[string]string{
			"name":        tag,
			"zipball_url": fmt.Sprintf("%srepos/%s/zipball/%s", f.URL(), id, tag),
		})
	}
	writeJSON(w, body)
}

func (f *FakeGitHub) handleBranches(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, repo, ok := f.lookup(r)
	if !ok {
		writeNotFound(w)
		return
	}

	body := make([]map[string]any, 0, len(repo.branches))
	for name, sha := range repo.branches {
		body = append(body, map[string]any{"name": name, "commit": map[string]string{"sha": sha}})
	}
	writeJSON(w, body)
}

func (f *FakeGitHub) handleZipball(w http.ResponseWriter, r *http.Request) {
	f.serveZipball(w, r, false)
}

func (f *FakeGitHub) handleTagZipball(w http.ResponseWriter, r *http.Request) {
	f.serveZipball(w, r, true)
}

func (f *FakeGitHub) serveZipball(w http.ResponseWriter, r *http.Request, tagShape bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, repo, ok := f.lookup(r)
	ref := chi.URLParam(r, "ref")
	if !ok || repo.archives[ref] == nil {
		writeNotFound(w)
		return
	}
	if repo.errorDocs[ref] && !tagShape {
		writeJSON(w, map[string]string{"message": "No such ref", "status": "404"})
		return
	}
	f.downloads[id+"@"+ref]++

	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(repo.archives[ref])
}

// BuildZipball builds an archive laid out like a GitHub zipball, with every
// file under a single top-level directory
func BuildZipball(id, ref string, files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	top := fmt.Sprintf("%s-%s/", SanitizeID(id), ref)
	for name, content := range files {
		w, err := zw.Create(top + name)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		_, err = w.Write([]byte(content))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	}
	gomega.Expect(zw.Close()).To(gomega.Succeed())
	return buf.Bytes()
}

// SanitizeID replaces the owner separator the way zipball directory names do
func SanitizeID(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"message":"Not Found"}`))
}
