// Package publish pushes prepared package directories into the internal
// registry.
package publish

import (
	"context"
	"fmt"
)

// Result is the success-equivalent outcome of a publish call
type Result string

const (
	// ResultPublished means this call wrote the version
	ResultPublished Result = "published"

	// ResultAlreadyExists means the registry already held the version
	ResultAlreadyExists Result = "already-exists"
)

// Request names one directory to publish as {Name}~{Version}
type Request struct {
	Name    string
	Version string
	Path    string
}

// Dependency returns the registry identifier of the request
func (r Request) Dependency() string {
	return r.Name + "~" + r.Version
}

// Publisher pushes a directory into the registry
//
//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks -source=publisher.go Publisher
type Publisher interface {
	// Publish returns ResultPublished or ResultAlreadyExists on success and
	// a *Error otherwise.
	Publish(ctx context.Context, req Request) (Result, error)
}

// Error is a publish failure other than an existing version. The version is
// retried on the next pass.
type Error struct {
	Request Request
	Output  string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to publish %s: %v", e.Request.Dependency(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
