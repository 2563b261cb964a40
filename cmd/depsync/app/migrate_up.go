package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/depsync/database"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations to bring the version store schema up to date.
The connection parameters are read from the database section of the config file.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	opts, err := loadMigrationOptions(cmd)
	if err != nil {
		return err
	}

	ok, err := confirm(cmd, opts, "apply migrations")
	if err != nil || !ok {
		return err
	}

	slog.Info("Applying database migrations...")
	if err := database.MigrateUp(opts.connString, opts.steps); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logVersion(opts.connString)
	return nil
}
