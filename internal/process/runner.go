// Package process runs the external command-line tools depsync drives.
package process

import (
	"context"
	"errors"
	"os/exec"
)

// Runner runs an external command. It reports the process exit code; err is
// reserved for failures to run the command at all.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes the command in dir and returns its combined output
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // command comes from configuration
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return output, exitErr.ExitCode(), nil
		}
		return output, -1, err
	}
	return output, 0, nil
}
