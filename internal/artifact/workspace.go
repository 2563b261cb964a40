package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const lockFileName = ".depsync.lock"

// separatorReplacer keeps each path component a single directory level
var separatorReplacer = strings.NewReplacer("/", "_", `\`, "_")

var (
	// ErrWorkspaceLocked is returned when another process holds the work root
	ErrWorkspaceLocked = errors.New("work directory is locked by another process")

	// ErrLeaseInUse is returned when a (repository, version) directory is already leased
	ErrLeaseInUse = errors.New("working directory already in use")
)

// Workspace hands out one working directory per (repository, version) under
// a root that is locked for the lifetime of the process.
type Workspace struct {
	root string
	lock *flock.Flock

	mu     sync.Mutex
	leased map[string]struct{}
}

// Lease is an exclusively owned working directory
type Lease struct {
	Path string

	workspace *Workspace
	key       string
	once      sync.Once
}

// OpenWorkspace creates root if needed and takes its process lock
func OpenWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	lock := flock.New(filepath.Join(root, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock work directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceLocked, root)
	}

	return &Workspace{
		root:   root,
		lock:   lock,
		leased: make(map[string]struct{}),
	}, nil
}

// Root returns the workspace root directory
func (w *Workspace) Root() string {
	return w.root
}

// Acquire leases the directory {root}/{repository}/{version}. Leftovers of an
// earlier run are removed first.
func (w *Workspace) Acquire(repository, version string) (*Lease, error) {
	repoDir, err := pathComponent(repository)
	if err != nil {
		return nil, err
	}
	versionDir, err := pathComponent(version)
	if err != nil {
		return nil, err
	}
	key := filepath.Join(repoDir, versionDir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.leased[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLeaseInUse, key)
	}

	dir := filepath.Join(w.root, key)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear working directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	w.leased[key] = struct{}{}
	return &Lease{Path: dir, workspace: w, key: key}, nil
}

func pathComponent(name string) (string, error) {
	component := separatorReplacer.Replace(name)
	if component == "" || component == "." || !filepath.IsLocal(component) {
		return "", fmt.Errorf("invalid working directory name %q", name)
	}
	return component, nil
}

// Release removes the directory and returns it to the workspace. The
// repository directory goes too once its last version is released. It is
// safe to call more than once.
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() {
		err = os.RemoveAll(l.Path)

		l.workspace.mu.Lock()
		delete(l.workspace.leased, l.key)
		// fails harmlessly while sibling versions remain
		_ = os.Remove(filepath.Dir(l.Path))
		l.workspace.mu.Unlock()

		if err != nil {
			slog.Warn("Failed to remove working directory", "path", l.Path, "error", err)
		}
	})
	return err
}

// Close releases the process lock
func (w *Workspace) Close() error {
	return w.lock.Unlock()
}
