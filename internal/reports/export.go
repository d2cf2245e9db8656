package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/fsadmin-io/fsadmin/internal/types"
)

// histogramWidth is the bar length the busiest day scales to.
const histogramWidth = 40

// bodyTruncateAt caps exported conversation bodies.
const bodyTruncateAt = 100

var (
	htmlStripper = bluemonday.StrictPolicy()
	whitespaceRe = regexp.MustCompile(`\s+`)
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
)

// ExportActivityCSV writes a comprehensive activity report: summary rows,
// a day-of-week histogram, then one row per item. Conversation bodies are
// stripped of HTML and truncated.
func ExportActivityCSV(items []ActivityItem, summary CombinedSummary, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	rows := [][]string{
		{"User Activity Report"},
		{"Date Range", summary.DateRange},
		{"Is Agent", yesNo(summary.IsAgent)},
		{"Total Tickets Created", strconv.Itoa(summary.TicketsCreated)},
	}
	if summary.IsAgent {
		rows = append(rows,
			[]string{"Total Tickets Worked On", strconv.Itoa(summary.TicketsWorked)},
			[]string{"Tickets Assigned", strconv.Itoa(summary.TicketsAssigned)},
			[]string{"Tickets Collaborated On", strconv.Itoa(summary.TicketsCollaborated)},
			[]string{"Total Responses as Agent", strconv.Itoa(summary.ResponsesAsAgent)},
		)
	}
	rows = append(rows,
		[]string{"Total Conversations as Requester", strconv.Itoa(summary.ConversationsAsRequester)},
		[]string{},
	)

	for _, line := range ActivityHistogram(items, true) {
		rows = append(rows, []string{line})
	}
	rows = append(rows, []string{})

	rows = append(rows, []string{
		"Date", "Type", "Role", "Ticket ID", "Subject/Content",
		"Status", "Priority", "Last Updated", "Notes",
	})

	for _, item := range items {
		role := item.Role
		if role == "" {
			role = RoleRequester
		}
		created := formatExportDate(item.CreatedAt)
		updated := formatExportDate(item.UpdatedAt)

		switch item.Type {
		case ItemTicket:
			notes := ""
			if role == RoleAgent {
				notes = item.AgentRole
			}
			rows = append(rows, []string{
				created, "Ticket", capitalize(role),
				strconv.FormatInt(item.TicketID, 10),
				item.Subject,
				types.StatusName(item.Status),
				types.PriorityName(item.Priority),
				updated, notes,
			})
		case ItemConversation:
			notes := ""
			if role == RoleAgent {
				notes = item.ConversationType
			}
			rows = append(rows, []string{
				created, "Response", capitalize(role),
				strconv.FormatInt(item.TicketID, 10),
				CleanBody(item.Body),
				"", "",
				updated, notes,
			})
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ActivityHistogram buckets item creation dates by day of week, Monday
// through Sunday, with bars scaled so the busiest day fills the full
// width. Simple mode renders counts in parentheses for CSV safety.
func ActivityHistogram(items []ActivityItem, simple bool) []string {
	dayNames := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	counts := make([]int, 7)

	for _, item := range items {
		if item.CreatedAt.IsZero() {
			continue
		}
		// time.Weekday starts at Sunday; shift so Monday is index 0.
		counts[(int(item.CreatedAt.Weekday())+6)%7]++
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	lines := []string{"Activity by Day of Week:"}
	for i, name := range dayNames {
		if simple {
			lines = append(lines, fmt.Sprintf("%s: (%d)", name, counts[i]))
			continue
		}
		barLength := 0
		if max > 0 && counts[i] > 0 {
			barLength = counts[i] * histogramWidth / max
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%d)", name, strings.Repeat("█", barLength), counts[i]))
	}
	return lines
}

// CleanBody strips HTML down to text, collapses whitespace, and truncates
// to the export column width.
func CleanBody(body string) string {
	if body == "" {
		return ""
	}
	text := lineBreakRe.ReplaceAllString(body, "\n")
	text = htmlStripper.Sanitize(text)
	text = html.UnescapeString(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	// Truncate on runes, not bytes, so multi-byte text is never cut mid-rune.
	if runes := []rune(text); len(runes) > bodyTruncateAt {
		text = string(runes[:bodyTruncateAt-3]) + "..."
	}
	return text
}

// ExportInactiveCSV writes the inactivity scan: commented metadata lines,
// a header row, then one row per flagged user. Missing dates render as
// "Never".
func ExportInactiveCSV(records []InactivityRecord, summary ScanSummary, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta := []string{
		"# Inactive Users Report",
		fmt.Sprintf("# Generated: %s", summary.GeneratedAt.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("# Inactivity Threshold: %d days", summary.ThresholdDays),
		fmt.Sprintf("# Total Inactive Users: %d", len(records)),
		fmt.Sprintf("# Inactive Agents: %d of %d", summary.InactiveAgents, summary.AgentsChecked),
		fmt.Sprintf("# Inactive Requesters: %d of %d", summary.InactiveRequesters, summary.RequestersChecked),
		fmt.Sprintf("# Users Without Login Data: %d", summary.NoLoginData),
		fmt.Sprintf("# Execution Time: %.2f seconds", summary.ExecutionSeconds),
	}
	if summary.UsingAlternativeMethods {
		meta = append(meta,
			"# NOTE: Direct login tracking was not available. Alternative activity tracking methods were used.",
			"# This may result in less accurate last activity dates, often using the most recent ticket update",
			"# or account creation date as a proxy for user activity.",
		)
	}
	for _, line := range meta {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	header := []string{
		"ID", "First Name", "Last Name", "Email", "Type",
		"Account Status", "Days Inactive", "Last Login", "Created At", "Job Title",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		status := "Inactive"
		if rec.Active {
			status = "Active"
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.FirstName,
			rec.LastName,
			rec.Email,
			rec.Type,
			status,
			rec.DaysInactiveLabel(),
			formatOptionalDate(rec.LastActivity),
			formatExportDate(rec.CreatedAt),
			rec.JobTitle,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ExportDiagnosticsJSON writes a diagnostics report as indented JSON.
func ExportDiagnosticsJSON(report *DiagnosticReport, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatExportDate(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return "Never"
	}
	return formatExportDate(*t)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
