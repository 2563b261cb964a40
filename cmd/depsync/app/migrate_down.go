package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/depsync/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert database migrations",
	Long: `Revert database migrations. Without --num-steps every migration is reverted and
all recorded versions are lost.`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	opts, err := loadMigrationOptions(cmd)
	if err != nil {
		return err
	}

	ok, err := confirm(cmd, opts, "revert migrations")
	if err != nil || !ok {
		return err
	}

	slog.Info("Reverting database migrations...")
	if err := database.MigrateDown(opts.connString, opts.steps); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	logVersion(opts.connString)
	return nil
}
