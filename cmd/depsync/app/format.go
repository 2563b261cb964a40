package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/sync/coordinator"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("unsupported output format %q (table or json)", format)
	}
	return nil
}

// runReport is the JSON rendering of a run summary
type runReport struct {
	RunID        string             `json:"run_id"`
	Aborted      bool               `json:"aborted"`
	Totals       map[string]int     `json:"totals"`
	Repositories []repositoryReport `json:"repositories"`
}

type repositoryReport struct {
	Repository string           `json:"repository"`
	Reason     string           `json:"reason"`
	Synced     bool             `json:"synced"`
	Duration   string           `json:"duration,omitempty"`
	Error      string           `json:"error,omitempty"`
	Versions   []versionOutcome `json:"versions,omitempty"`
}

type versionOutcome struct {
	Raw     string `json:"raw"`
	Version string `json:"version"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

func newRunReport(summary *coordinator.RunSummary) runReport {
	report := runReport{
		RunID:        summary.RunID,
		Aborted:      summary.Aborted,
		Totals:       map[string]int{},
		Repositories: make([]repositoryReport, 0, len(summary.Reports)),
	}
	for state, n := range summary.Totals() {
		report.Totals[string(state)] = n
	}

	for _, r := range summary.Reports {
		item := repositoryReport{
			Repository: r.Repository,
			Reason:     r.Reason.String(),
			Synced:     r.Synced,
		}
		if r.Synced {
			item.Duration = r.Duration.Round(time.Millisecond).String()
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		if r.Result != nil {
			for _, o := range r.Result.Outcomes {
				outcome := versionOutcome{Raw: o.Raw, Version: o.Version, State: string(o.State)}
				if o.Err != nil {
					outcome.Error = o.Err.Error()
				}
				item.Versions = append(item.Versions, outcome)
			}
		}
		report.Repositories = append(report.Repositories, item)
	}
	return report
}

// writeRunSummary renders one row per repository, or the full report as JSON
func writeRunSummary(w io.Writer, summary *coordinator.RunSummary, format string) error {
	if format == formatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(newRunReport(summary))
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Repository", "Reason", "Published", "Rejected", "Deferred", "Skipped", "Pending", "Error"})
	for _, r := range summary.Reports {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		row := []string{
			r.Repository,
			r.Reason.String(),
			count(r.Result, pkgsync.StatePublished),
			count(r.Result, pkgsync.StateRejected),
			count(r.Result, pkgsync.StatePublishDeferred),
			count(r.Result, pkgsync.StateSkipped),
			count(r.Result, pkgsync.StatePending),
			errText,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func count(result *pkgsync.Result, state pkgsync.State) string {
	return strconv.Itoa(result.Count(state))
}
