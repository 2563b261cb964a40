// Package app wires configuration into a runnable sync pipeline and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/sync/coordinator"
)

// App encapsulates all components of one depsync process.
// A single App serves either one run (RunOnce) or watch mode (Start/Stop).
type App struct {
	config       *config.Config
	repositories []config.Repository
	components   *Components
	httpServer   *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
}

// RunOnce runs a single pass over the selected repositories
func (app *App) RunOnce(ctx context.Context, force bool) (*coordinator.RunSummary, error) {
	return app.components.Coordinator.RunOnce(ctx, app.repositories, force)
}

// Start runs the watch loop and the HTTP server.
// It blocks until the app is stopped, the server fails or a run aborts.
func (app *App) Start() error {
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
			app.cancelFunc()
			return
		}
		serverErr <- nil
	}()

	coordErr := app.components.Coordinator.Start(app.ctx)
	if coordErr != nil {
		slog.Error("Sync coordinator failed", "error", coordErr)
		if err := app.shutdownServer(defaultWriteTimeout); err != nil {
			slog.Warn("Failed to shut down HTTP server", "error", err)
		}
		return fmt.Errorf("sync coordinator failed: %w", coordErr)
	}

	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}

// Stop gracefully stops watch mode with the given timeout.
// It stops the sync coordinator and then shuts down the HTTP server.
func (app *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err := app.shutdownServer(timeout); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func (app *App) shutdownServer(timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return app.httpServer.Shutdown(shutdownCtx)
}

// Close releases the work root lock, the store and telemetry providers.
// It is safe to call more than once.
func (app *App) Close(ctx context.Context) error {
	app.closeOnce.Do(func() {
		if app.cancelFunc != nil {
			app.cancelFunc()
		}
		app.closeErr = app.components.close(ctx)
	})
	return app.closeErr
}

// GetConfig returns the application configuration
func (app *App) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the pipeline components
func (app *App) GetComponents() *Components {
	return app.components
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Repositories returns the repositories this app runs over
func (app *App) Repositories() []config.Repository {
	return app.repositories
}
