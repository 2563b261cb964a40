package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/stacklok/depsync/internal/process"
)

// DefaultTimeout bounds a single push
const DefaultTimeout = 10 * time.Minute

// alreadyExistsMarker is the registry's response to a version it already holds
const alreadyExistsMarker = "Dependency already exists"

// CLIPublisher publishes by running the registry push client, by default
// `soldeer push {name}~{version} {path} --skip-warnings`
type CLIPublisher struct {
	command   []string
	extraArgs []string
	timeout   time.Duration
	runner    process.Runner
}

var _ Publisher = (*CLIPublisher)(nil)

// CLIOption configures a CLIPublisher
type CLIOption func(*CLIPublisher)

// WithRunner replaces the process runner
func WithRunner(runner process.Runner) CLIOption {
	return func(p *CLIPublisher) {
		p.runner = runner
	}
}

// WithTimeout bounds each push
func WithTimeout(timeout time.Duration) CLIOption {
	return func(p *CLIPublisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewCLIPublisher creates a publisher running command followed by the
// dependency, the path and extraArgs
func NewCLIPublisher(command, extraArgs []string, opts ...CLIOption) (*CLIPublisher, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("publisher command is required")
	}
	p := &CLIPublisher{
		command:   append([]string(nil), command...),
		extraArgs: append([]string(nil), extraArgs...),
		timeout:   DefaultTimeout,
		runner:    process.ExecRunner{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish runs the push client for the request
func (p *CLIPublisher) Publish(ctx context.Context, req Request) (Result, error) {
	if req.Name == "" || req.Version == "" {
		return "", &Error{Request: req, Err: errors.New("name and version are required")}
	}
	if info, err := os.Stat(req.Path); err != nil || !info.IsDir() {
		return "", &Error{Request: req, Err: fmt.Errorf("source path %q is not a directory", req.Path)}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := make([]string, 0, len(p.command)+len(p.extraArgs)+1)
	args = append(args, p.command[1:]...)
	args = append(args, req.Dependency(), req.Path)
	args = append(args, p.extraArgs...)

	start := time.Now()
	output, exitCode, err := p.runner.Run(ctx, "", p.command[0], args...)
	if err != nil {
		return "", &Error{Request: req, Output: string(output), Err: err}
	}

	if strings.Contains(string(output), alreadyExistsMarker) {
		slog.Info("Version already present in registry", "dependency", req.Dependency())
		return ResultAlreadyExists, nil
	}
	if exitCode != 0 {
		return "", &Error{
			Request: req,
			Output:  strings.TrimSpace(string(output)),
			Err:     fmt.Errorf("%s exited with code %d", p.command[0], exitCode),
		}
	}

	slog.Debug("Published version", "dependency", req.Dependency(), "duration", time.Since(start))
	return ResultPublished, nil
}
