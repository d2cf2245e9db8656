package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fsadmin-io/fsadmin/internal/reports"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Run API connectivity and permission diagnostics",
	Long: `Diag probes a fixed battery of read endpoints to tell apart
connectivity problems, permission or plan restrictions, and rate
limiting. Probes never fail the run; each result is reported with its
status code and error so the operator can see exactly what the API
allows.`,
	RunE: runDiag,
}

var (
	diagTestUser int64
	diagJSON     string
)

func init() {
	diagCmd.Flags().Int64Var(&diagTestUser, "test-user", 0, "User ID to use for the requester_id probe")
	diagCmd.Flags().StringVar(&diagJSON, "json", "", "Export the full report to this JSON file")
}

func runDiag(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	runner := reports.NewDiagnosticsRunner(a.client)
	report := runner.Run(cmd.Context(), diagTestUser)

	bold := color.New(color.Bold)
	bold.Printf("API Diagnostics (%s)\n\n", report.RunID)

	for _, name := range reports.ProbeNames() {
		result := report.Endpoints[name]
		if result == nil {
			continue
		}
		if result.Success {
			color.Green("  ✓ %-25s %d", name, result.StatusCode)
			continue
		}
		line := fmt.Sprintf("  ✗ %-25s", name)
		if result.StatusCode != 0 {
			line += fmt.Sprintf(" %d", result.StatusCode)
		}
		color.Red("%s %s", line, result.Error)
		if result.RetryAfter > 0 {
			color.Yellow("    rate limited, retry after %d seconds", result.RetryAfter)
		}
	}

	fmt.Println()
	switch report.Status {
	case "healthy":
		color.Green("Status: %s - %s", report.Status, report.Summary)
	case "partial":
		color.Yellow("Status: %s - %s", report.Status, report.Summary)
	default:
		color.Red("Status: %s - %s", report.Status, report.Summary)
	}

	fmt.Println("\nKnown-supported filters:", report.TestedParameters.SupportedFilters)
	fmt.Println("Known-supported params: ", report.TestedParameters.SupportedQueryParams)
	fmt.Println("Unsupported params:     ", report.TestedParameters.UnsupportedParams)

	path := diagJSON
	if path == "" && report.Status != "healthy" {
		path = timestampedName("diagnostics", "json")
	}
	if path != "" {
		path = outputPath(a, path)
		if err := reports.ExportDiagnosticsJSON(report, path); err != nil {
			return fmt.Errorf("exporting diagnostics JSON: %w", err)
		}
		color.Green("\nFull report written to %s", path)
	}
	return nil
}
