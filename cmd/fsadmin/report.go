package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"

	"github.com/fsadmin-io/fsadmin/internal/reports"
	"github.com/fsadmin-io/fsadmin/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate activity and inactivity reports",
}

var reportActivityCmd = &cobra.Command{
	Use:   "activity <id|email>",
	Short: "Report a user's ticket and conversation activity",
	Long: `Activity builds a combined report of the tickets a user created and,
when the user is an agent, the tickets they worked and the responses
they wrote. If agent data cannot be gathered the requester side is
still reported, with an explanation of what is missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runReportActivity,
}

var reportInactiveCmd = &cobra.Command{
	Use:   "inactive",
	Short: "Scan for users with no recent activity",
	Long: `Inactive walks the agent and requester populations and flags accounts
whose last activity is older than the threshold. Where the plan hides
login audit data, weaker proxies are used (account updates, newest
ticket, creation date) and the report says so. Users with no signal at
all are conservatively treated as inactive.`,
	RunE: runReportInactive,
}

var (
	activityDays   int
	activityCSV    string
	inactiveDays   int
	inactiveAgents bool
	inactiveReqs   bool
	inactiveCSV    string
)

func init() {
	reportActivityCmd.Flags().IntVar(&activityDays, "days", 30, "Look-back window in days")
	reportActivityCmd.Flags().StringVar(&activityCSV, "csv", "", "Also export the report to this CSV file")
	reportInactiveCmd.Flags().IntVar(&inactiveDays, "threshold", 90, "Days of inactivity before a user is flagged")
	reportInactiveCmd.Flags().BoolVar(&inactiveAgents, "agents", true, "Include agents in the scan")
	reportInactiveCmd.Flags().BoolVar(&inactiveReqs, "requesters", true, "Include requesters in the scan")
	reportInactiveCmd.Flags().StringVar(&inactiveCSV, "csv", "", "Also export the report to this CSV file")

	reportCmd.AddCommand(reportActivityCmd)
	reportCmd.AddCommand(reportInactiveCmd)
}

func runReportActivity(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	userID, email, err := resolveIdentity(cmd, a, args[0])
	if err != nil {
		return err
	}

	agg := reports.NewAggregator(a.client)
	items, summary, isAgent := agg.ComprehensiveActivity(ctx, userID, email, activityDays)

	bold := color.New(color.Bold)
	bold.Println("User Activity Report")
	fmt.Printf("Date range:    %s\n", summary.DateRange)
	fmt.Printf("Is agent:      %v\n", isAgent)
	fmt.Printf("Tickets created:        %d\n", summary.TicketsCreated)
	fmt.Printf("Conversations (requester): %d\n", summary.ConversationsAsRequester)
	if isAgent {
		if summary.AgentError != "" {
			color.Yellow("Agent activity unavailable (%s): %s", summary.AgentErrorKind, summary.AgentError)
			color.Yellow("Showing requester activity only.")
		} else {
			fmt.Printf("Tickets worked:         %d (assigned %d, collaborated %d)\n",
				summary.TicketsWorked, summary.TicketsAssigned, summary.TicketsCollaborated)
			fmt.Printf("Responses as agent:     %d\n", summary.ResponsesAsAgent)
		}
	}

	fmt.Println()
	for _, line := range reports.ActivityHistogram(items, false) {
		fmt.Println(line)
	}

	fmt.Println()
	limit := len(items)
	if limit > 25 {
		limit = 25
	}
	for _, item := range items[:limit] {
		printActivityItem(item)
	}
	if len(items) > limit {
		fmt.Printf("  ... and %d more items (export with --csv for the full list)\n", len(items)-limit)
	}

	if activityCSV != "" {
		path := outputPath(a, activityCSV)
		if err := reports.ExportActivityCSV(items, summary, path); err != nil {
			return fmt.Errorf("exporting activity CSV: %w", err)
		}
		color.Green("Report exported to %s", path)
	}
	return nil
}

func printActivityItem(item reports.ActivityItem) {
	when := timeago.English.Format(item.CreatedAt)
	switch item.Type {
	case reports.ItemTicket:
		label := fmt.Sprintf("#%d %s", item.TicketID, item.Subject)
		extra := fmt.Sprintf("%s / %s", types.StatusName(item.Status), types.PriorityName(item.Priority))
		if item.AgentRole != "" {
			extra += ", " + item.AgentRole
		}
		fmt.Printf("  %-18s Ticket    %s (%s)\n", when, label, extra)
	case reports.ItemConversation:
		note := item.ConversationType
		if note == "" {
			note = "Reply"
		}
		fmt.Printf("  %-18s Response  on #%d: %s (%s)\n", when, item.TicketID, reports.CleanBody(item.Body), note)
	}
}

func runReportInactive(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	scanner := reports.NewScanner(a.client)
	records, summary := scanner.Scan(cmd.Context(), reports.ScanOptions{
		ThresholdDays:     inactiveDays,
		IncludeAgents:     inactiveAgents,
		IncludeRequesters: inactiveReqs,
		Progress:          func(msg string) { fmt.Println(msg) },
	})

	fmt.Println()
	bold := color.New(color.Bold)
	bold.Printf("Inactive Users Report (threshold %d days)\n", summary.ThresholdDays)
	fmt.Printf("Inactive agents:     %d of %d checked\n", summary.InactiveAgents, summary.AgentsChecked)
	fmt.Printf("Inactive requesters: %d of %d checked\n", summary.InactiveRequesters, summary.RequestersChecked)
	fmt.Printf("No login data:       %d\n", summary.NoLoginData)
	fmt.Printf("Scan time:           %.2f seconds\n", summary.ExecutionSeconds)
	if summary.UsingAlternativeMethods {
		color.Yellow("Direct login tracking unavailable; last-activity dates are approximate.")
	}

	fmt.Println()
	for _, rec := range records {
		last := "never"
		if rec.LastActivity != nil {
			last = timeago.English.Format(*rec.LastActivity)
		}
		fmt.Printf("  %6d  %-28s %-10s %8s days  last active %s\n",
			rec.ID,
			strings.TrimSpace(rec.FirstName+" "+rec.LastName),
			rec.Type,
			rec.DaysInactiveLabel(),
			last)
	}

	if inactiveCSV != "" {
		path := outputPath(a, inactiveCSV)
		if err := reports.ExportInactiveCSV(records, summary, path); err != nil {
			return fmt.Errorf("exporting inactive users CSV: %w", err)
		}
		color.Green("Report exported to %s", path)
	}
	return nil
}

// resolveIdentity turns a positional id-or-email argument into the lookup
// key pair the aggregator expects.
func resolveIdentity(cmd *cobra.Command, a *app, arg string) (int64, string, error) {
	if strings.Contains(arg, "@") {
		user, err := a.client.Users.ByEmail(cmd.Context(), arg)
		if err != nil {
			return 0, "", err
		}
		if user != nil {
			return user.ID, "", nil
		}
		return 0, arg, nil
	}
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("expected a numeric user id or an email address, got %q", arg)
	}
	return id, "", nil
}

// outputPath anchors a relative export path in the configured output
// directory.
func outputPath(a *app, path string) string {
	if filepath.IsAbs(path) || a.cfg.OutputDir == "" || a.cfg.OutputDir == "." {
		return path
	}
	return filepath.Join(a.cfg.OutputDir, path)
}

// timestampedName builds a default export file name.
func timestampedName(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405"), ext)
}
