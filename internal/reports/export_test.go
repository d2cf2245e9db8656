package reports

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSVRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportActivityCSV(t *testing.T) {
	items := []ActivityItem{
		{
			Type:      ItemTicket,
			TicketID:  1,
			Subject:   "VPN down",
			Status:    2,
			Priority:  1,
			CreatedAt: time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC), // a Monday
			UpdatedAt: time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			Type:             ItemConversation,
			Role:             RoleAgent,
			ConversationType: ConversationPublicReply,
			TicketID:         1,
			ConversationID:   10,
			Body:             "<p>Looking&nbsp;into it</p>",
			CreatedAt:        time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC),
		},
	}
	summary := CombinedSummary{
		TicketsCreated:   1,
		TicketsWorked:    1,
		ResponsesAsAgent: 1,
		DateRange:        "2026-01-15 to 2026-02-14",
		IsAgent:          true,
	}

	path := filepath.Join(t.TempDir(), "activity.csv")
	require.NoError(t, ExportActivityCSV(items, summary, path))

	rows := readCSVRows(t, path)
	assert.Equal(t, []string{"User Activity Report"}, rows[0])
	assert.Equal(t, []string{"Date Range", "2026-01-15 to 2026-02-14"}, rows[1])
	assert.Equal(t, []string{"Is Agent", "Yes"}, rows[2])

	var header int
	for i, row := range rows {
		if len(row) > 0 && row[0] == "Date" {
			header = i
			break
		}
	}
	require.NotZero(t, header, "column header row must be present")
	assert.Equal(t, "Subject/Content", rows[header][4])
	assert.Len(t, rows[header:], 1+len(items), "one data row per item")

	ticketRow := rows[header+1]
	assert.Equal(t, "Ticket", ticketRow[1])
	assert.Equal(t, "Requester", ticketRow[2])
	assert.Equal(t, "VPN down", ticketRow[4])

	convRow := rows[header+2]
	assert.Equal(t, "Response", convRow[1])
	assert.Equal(t, "Agent", convRow[2])
	assert.Equal(t, "Looking into it", convRow[4])
	assert.Equal(t, ConversationPublicReply, convRow[8])
}

func TestActivityHistogram(t *testing.T) {
	monday := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	items := []ActivityItem{
		{CreatedAt: monday},
		{CreatedAt: monday},
		{CreatedAt: monday.AddDate(0, 0, 5)}, // Saturday
	}

	lines := ActivityHistogram(items, false)
	require.Len(t, lines, 8)
	assert.Equal(t, "Activity by Day of Week:", lines[0])
	assert.Equal(t, "Monday: "+strings.Repeat("█", histogramWidth)+" (2)", lines[1])
	assert.Equal(t, "Saturday: "+strings.Repeat("█", histogramWidth/2)+" (1)", lines[6])
	assert.Equal(t, "Sunday:  (0)", lines[7])

	simple := ActivityHistogram(items, true)
	assert.Equal(t, "Monday: (2)", simple[1])
	assert.Equal(t, "Sunday: (0)", simple[7])
}

func TestCleanBody(t *testing.T) {
	t.Run("strips markup and entities", func(t *testing.T) {
		got := CleanBody("<div>Hello</div><p>there &amp; everyone</p>")
		assert.Equal(t, "Hello there & everyone", got)
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		got := CleanBody("line one<br/>line   two\n\nline three")
		assert.Equal(t, "line one line two line three", got)
	})

	t.Run("truncates long bodies", func(t *testing.T) {
		got := CleanBody(strings.Repeat("a", 150))
		assert.Len(t, got, bodyTruncateAt)
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.Equal(t, strings.Repeat("a", bodyTruncateAt-3), strings.TrimSuffix(got, "..."))
	})

	t.Run("truncation counts runes, not bytes", func(t *testing.T) {
		got := CleanBody(strings.Repeat("é", 120))
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, bodyTruncateAt, utf8.RuneCountInString(got))
		assert.Equal(t, strings.Repeat("é", bodyTruncateAt-3)+"...", got)

		// A body over 100 bytes but under 100 runes stays intact.
		short := strings.Repeat("é", 60)
		assert.Equal(t, short, CleanBody(short))
	})

	t.Run("empty passes through", func(t *testing.T) {
		assert.Equal(t, "", CleanBody(""))
	})
}

func TestExportInactiveCSV(t *testing.T) {
	last := time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)
	records := []InactivityRecord{
		{ID: 2, FirstName: "Ghost", Email: "ghost@example.com", Type: "Requester",
			DaysInactive: daysUnknown, Active: true},
		{ID: 1, FirstName: "Old", LastName: "Timer", Email: "old@example.com",
			Type: "Agent", DaysInactive: 120, LastActivity: &last, Active: true,
			CreatedAt: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)},
	}
	summary := ScanSummary{
		ThresholdDays:           90,
		TotalInactive:           2,
		InactiveAgents:          1,
		AgentsChecked:           40,
		InactiveRequesters:      1,
		RequestersChecked:       200,
		NoLoginData:             1,
		ExecutionSeconds:        12.5,
		GeneratedAt:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UsingAlternativeMethods: true,
	}

	path := filepath.Join(t.TempDir(), "inactive.csv")
	require.NoError(t, ExportInactiveCSV(records, summary, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, "# Inactivity Threshold: 90 days")
	assert.Contains(t, text, "# Inactive Agents: 1 of 40")
	assert.Contains(t, text, "# Execution Time: 12.50 seconds")
	assert.Contains(t, text, "# NOTE: Direct login tracking was not available.")

	// The CSV body starts after the blank separator line.
	body := text[strings.Index(text, "\n\n")+2:]
	r := csv.NewReader(strings.NewReader(body))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Days Inactive", rows[0][6])
	assert.Equal(t, "Unknown", rows[1][6])
	assert.Equal(t, "Never", rows[1][7])
	assert.Equal(t, "Never", rows[1][8], "missing creation date renders the same way")
	assert.Equal(t, "120", rows[2][6])
	assert.Equal(t, "2025-10-01 09:30:00", rows[2][7])
}

func TestExportDiagnosticsJSON(t *testing.T) {
	report := &DiagnosticReport{
		RunID:     "run-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:    "healthy",
		Summary:   "All API endpoints are accessible and functioning correctly.",
	}

	path := filepath.Join(t.TempDir(), "diag.json")
	require.NoError(t, ExportDiagnosticsJSON(report, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded DiagnosticReport
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Equal(t, report.Status, decoded.Status)
	assert.True(t, strings.HasPrefix(string(raw), "{\n  "), "output is indented")
}
