package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/depsync/internal/app"
	"github.com/stacklok/depsync/internal/sync/coordinator"
)

// ErrRunInterrupted is returned when a signal stopped the run before every repository finished
var ErrRunInterrupted = errors.New("run interrupted")

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Run one synchronization pass over the configured repositories and exit.

Repositories with store activity inside the freshness window are skipped unless
--force is given. --dry-run lists the versions that would be processed without
fetching, publishing or recording anything.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("force", false, "Sync repositories even inside the freshness window")
	syncCmd.Flags().Bool("dry-run", false, "Report pending versions without fetching, publishing or recording")
	syncCmd.Flags().StringSlice("repository", nil, "Limit the run to these repository identifiers (repeatable)")
	syncCmd.Flags().String("format", formatTable, "Output format (table or json)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	repositories, err := cmd.Flags().GetStringSlice("repository")
	if err != nil {
		return fmt.Errorf("failed to get repository flag: %w", err)
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx,
		app.WithConfig(cfg),
		app.WithDryRun(dryRun),
		app.WithRepositories(repositories...),
	)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := application.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release resources", "error", err)
		}
	}()

	summary, runErr := application.RunOnce(ctx, force)
	if summary != nil {
		if err := writeRunSummary(cmd.OutOrStdout(), summary, format); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	return interrupted(ctx, summary)
}

// interrupted reports a run cut short by a signal. A signal that arrives
// after every repository was started is not an interruption.
func interrupted(ctx context.Context, summary *coordinator.RunSummary) error {
	if ctx.Err() == nil {
		return nil
	}
	pending := 0
	for _, report := range summary.Failed() {
		if report.Err.Stage == coordinator.StagePacing {
			pending++
		}
	}
	if pending == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d repositories not started", ErrRunInterrupted, pending)
}
