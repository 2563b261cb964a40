package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/depsync/internal/app"
)

// defaultGracefulTimeout bounds the HTTP shutdown once the coordinator has stopped
const defaultGracefulTimeout = 30 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Synchronize on an interval and serve status endpoints",
	Long: `Run a synchronization pass immediately and then once per sync.interval (with
jitter), until interrupted. While running, an HTTP server exposes /health,
/readiness, /version, /metrics (when Prometheus export is enabled) and the
/v0 status API.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	if err := viper.BindPFlag("address", watchCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{app.WithConfig(cfg)}
	if address := viper.GetString("address"); address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	application, err := app.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := application.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release resources", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
		if err := application.Stop(defaultGracefulTimeout); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		if stopErr := application.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Warn("Failed to stop cleanly", "error", stopErr)
		}
		return err
	}
}
