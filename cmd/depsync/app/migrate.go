package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/depsync/database"
	"github.com/stacklok/depsync/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long:  `Database migration tool for the PostgreSQL version store. Use with 'up' or 'down' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// migrationOptions are the flags and connection shared by both directions
type migrationOptions struct {
	connString string
	target     string
	steps      uint
	yes        bool
}

func loadMigrationOptions(cmd *cobra.Command) (*migrationOptions, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return nil, fmt.Errorf("failed to get yes flag: %w", err)
	}
	steps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return nil, fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.GetType() != config.StorageTypeDatabase || cfg.Database == nil {
		return nil, fmt.Errorf("migrations require storage.type %q and a database section", config.StorageTypeDatabase)
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &migrationOptions{
		connString: connString,
		target: fmt.Sprintf("%s@%s:%d/%s",
			cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database),
		steps: steps,
		yes:   yes,
	}, nil
}

// confirm asks on the command input unless --yes was given
func confirm(cmd *cobra.Command, opts *migrationOptions, action string) (bool, error) {
	if opts.yes {
		return true, nil
	}

	slog.Info("About to "+action, "database", opts.target, "steps", opts.steps)
	if _, err := fmt.Fprint(cmd.OutOrStdout(), "Continue? (yes/no): "); err != nil {
		return false, err
	}
	var response string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &response); err != nil {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	if response != "yes" && response != "y" {
		slog.Info("Migration cancelled by user")
		return false, nil
	}
	return true, nil
}

func logVersion(connString string) {
	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Migrations completed", "version", version)
	}
}
