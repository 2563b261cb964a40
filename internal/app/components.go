package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/depsync/internal/artifact"
	"github.com/stacklok/depsync/internal/store"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/sync/coordinator"
	"github.com/stacklok/depsync/internal/telemetry"
)

// Components groups all pipeline components
type Components struct {
	// Store holds the Published and Rejected records
	Store store.VersionStore

	// Workspace hands out per-version working directories under the locked work root
	Workspace *artifact.Workspace

	// Manager runs single repository passes
	Manager pkgsync.Manager

	// Coordinator runs passes across repositories, once or on an interval
	Coordinator coordinator.Coordinator

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry

	ownsTelemetry bool
}

// close releases the work root, the store and owned telemetry providers
func (c *Components) close(ctx context.Context) error {
	var errs []error

	if c.Workspace != nil {
		if err := c.Workspace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release work directory: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close version store: %w", err))
		}
	}
	if c.Telemetry != nil && c.ownsTelemetry {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
