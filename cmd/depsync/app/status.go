package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/store"
	"github.com/stacklok/depsync/internal/versions"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded versions per repository",
	Long: `Show, for every configured repository and every repository with records in the
store, how many versions were published and rejected, the latest published
version and when the repository last changed. The store is only read, so status
can run next to a watch process.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("format", formatTable, "Output format (table or json)")
}

// repositoryStatus is one row of the status output
type repositoryStatus struct {
	Repository    string     `json:"repository"`
	Configured    bool       `json:"configured"`
	Published     int        `json:"published"`
	Rejected      int        `json:"rejected"`
	LatestVersion string     `json:"latest_version,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	ctx := cmd.Context()

	versionStore, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open version store: %w", err)
	}
	defer func() {
		if err := versionStore.Close(); err != nil {
			slog.Warn("Failed to close version store", "error", err)
		}
	}()

	summaries, err := versionStore.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	return writeStatus(cmd.OutOrStdout(), buildStatus(cfg.Repositories, summaries), format)
}

// buildStatus lists configured repositories in configuration order, then
// repositories only known to the store in name order
func buildStatus(configured []config.Repository, summaries []store.RepositorySummary) []repositoryStatus {
	byID := make(map[string]store.RepositorySummary, len(summaries))
	for _, s := range summaries {
		byID[s.Repository] = s
	}

	rows := make([]repositoryStatus, 0, len(configured)+len(summaries))
	seen := make(map[string]bool, len(configured))
	for _, repo := range configured {
		seen[repo.ID] = true
		row := repositoryStatus{Repository: repo.ID, Configured: true}
		if s, ok := byID[repo.ID]; ok {
			fillStatus(&row, s)
		}
		rows = append(rows, row)
	}

	var extra []repositoryStatus
	for _, s := range summaries {
		if seen[s.Repository] {
			continue
		}
		row := repositoryStatus{Repository: s.Repository}
		fillStatus(&row, s)
		extra = append(extra, row)
	}
	slices.SortFunc(extra, func(a, b repositoryStatus) int {
		return strings.Compare(a.Repository, b.Repository)
	})

	return append(rows, extra...)
}

func fillStatus(row *repositoryStatus, s store.RepositorySummary) {
	row.Published = len(s.Published)
	row.Rejected = len(s.Rejected)
	row.LatestVersion = versions.Latest(s.Published)
	row.LastActivity = s.LastActivity
}

func writeStatus(w io.Writer, rows []repositoryStatus, format string) error {
	if format == formatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Repository", "Published", "Rejected", "Latest", "Last Activity"})
	for _, row := range rows {
		lastActivity := "never"
		if row.LastActivity != nil {
			lastActivity = row.LastActivity.UTC().Format(time.RFC3339)
		}
		name := row.Repository
		if !row.Configured {
			name += " (unconfigured)"
		}
		if err := table.Append([]string{
			name,
			strconv.Itoa(row.Published),
			strconv.Itoa(row.Rejected),
			row.LatestVersion,
			lastActivity,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
