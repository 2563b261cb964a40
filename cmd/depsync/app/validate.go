package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/naming"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Validate loads a configuration file, merges its legacy repository list and
checks it without touching storage or the network. The file defaults to --config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	if len(args) == 1 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("a configuration file is required (argument or --config)")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return err
	}

	return writeValidation(cmd.OutOrStdout(), cfg)
}

func writeValidation(w io.Writer, cfg *config.Config) error {
	var sourceControl, registry, tracked int
	names := make(map[string]string, len(cfg.Repositories))
	normalizer := naming.FromConfig(cfg)
	for _, repo := range cfg.Repositories {
		switch {
		case repo.TrackBranch:
			tracked++
			sourceControl++
		case repo.IsSourceControl():
			sourceControl++
		default:
			registry++
		}

		name := normalizer.RepositoryName(repo.ID)
		if other, ok := names[name]; ok {
			return fmt.Errorf("repositories %q and %q share the registry name %q", other, repo.ID, name)
		}
		names[name] = repo.ID
	}

	window, _ := cfg.Sync.GetFreshnessWindow()
	interval, _ := cfg.Sync.GetInterval()

	_, err := fmt.Fprintf(w, `✓ Valid configuration
  Storage: %s
  Work directory: %s
  Repositories: %d (%d source-control, %d tracking a branch, %d registry)
  Freshness window: %s
  Sync interval: %s
`, cfg.Storage.GetType(), cfg.GetWorkDir(), len(cfg.Repositories), sourceControl, tracked, registry, window, interval)
	return err
}
