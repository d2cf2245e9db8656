package reports

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScanner(t *testing.T, handler http.HandlerFunc) (*Scanner, *[]time.Duration) {
	t.Helper()
	c := newTestClient(t, handler)
	var slept []time.Duration
	s := NewScanner(c)
	s.now = func() time.Time { return scanNow }
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, &slept
}

func rfc3339DaysAgo(days int) string {
	return scanNow.AddDate(0, 0, -days).Format(time.RFC3339)
}

func TestScanSkipsRecentlyCreatedUsers(t *testing.T) {
	var perUserCalls int32
	s, _ := newTestScanner(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/requesters" {
			fmt.Fprintf(w, `{"requesters": [
				{"id": 1, "first_name": "New", "last_name": "Hire",
				 "primary_email": "new@example.com", "active": true,
				 "created_at": %q}
			]}`, rfc3339DaysAgo(10))
			return
		}
		atomic.AddInt32(&perUserCalls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "not found"}`)
	})

	records, summary := s.Scan(context.Background(), ScanOptions{
		ThresholdDays:     90,
		IncludeRequesters: true,
	})

	assert.Empty(t, records)
	assert.Equal(t, 1, summary.RequestersChecked)
	assert.Equal(t, 0, summary.TotalInactive)
	assert.Zero(t, atomic.LoadInt32(&perUserCalls),
		"a user created inside the window needs no activity lookup")
}

func TestScanFlagsInactiveAndUnknownUsers(t *testing.T) {
	s, _ := newTestScanner(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/requesters":
			// One stale requester and one with no usable dates at all.
			fmt.Fprintf(w, `{"requesters": [
				{"id": 1, "first_name": "Old", "last_name": "Timer",
				 "primary_email": "old@example.com", "active": true,
				 "created_at": %q},
				{"id": 2, "first_name": "Ghost", "last_name": "User",
				 "primary_email": "ghost@example.com", "active": true}
			]}`, rfc3339DaysAgo(400))
		case "/v2/requesters/1":
			fmt.Fprintf(w, `{"requester": {"id": 1, "updated_at": %q}}`, rfc3339DaysAgo(120))
		case "/v2/requesters/2", "/v2/agents/2":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "not found"}`)
		case "/v2/tickets":
			fmt.Fprint(w, `{"tickets": []}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	records, summary := s.Scan(context.Background(), ScanOptions{
		ThresholdDays:     90,
		IncludeRequesters: true,
	})

	require.Len(t, records, 2)
	assert.Equal(t, 2, summary.TotalInactive)
	assert.Equal(t, 2, summary.InactiveRequesters)
	assert.Equal(t, 1, summary.NoLoginData)

	// The unknown user sorts before even the most inactive known one.
	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, "Unknown", records[0].DaysInactiveLabel())
	assert.Nil(t, records[0].LastActivity)

	assert.Equal(t, int64(1), records[1].ID)
	assert.Equal(t, 120, records[1].DaysInactive)
	require.NotNil(t, records[1].LastActivity)
}

func TestScanPausesBetweenBatches(t *testing.T) {
	s, slept := newTestScanner(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/requesters" {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}
		// 21 recent requesters span two batches without per-user lookups.
		fmt.Fprint(w, `{"requesters": [`)
		for i := 1; i <= 21; i++ {
			if i > 1 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id": %d, "primary_email": "u%d@example.com", "created_at": %q}`,
				i, i, rfc3339DaysAgo(1))
		}
		fmt.Fprint(w, `]}`)
	})

	var milestones []string
	_, summary := s.Scan(context.Background(), ScanOptions{
		ThresholdDays:     90,
		IncludeRequesters: true,
		Progress:          func(msg string) { milestones = append(milestones, msg) },
	})

	assert.Equal(t, 21, summary.RequestersChecked)
	require.Len(t, *slept, 1)
	assert.Equal(t, 2*time.Second, (*slept)[0])
	assert.Contains(t, milestones, "Processing requester batch 1/2 (20 requesters)")
	assert.Contains(t, milestones, "Processing requester batch 2/2 (1 requesters)")
}

func TestScanDetectsMissingLoginCapability(t *testing.T) {
	s, _ := newTestScanner(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/agents":
			fmt.Fprintf(w, `{"agents": [
				{"id": 7, "first_name": "Probe", "last_name": "Target",
				 "email": "probe@example.com", "created_at": %q}
			]}`, rfc3339DaysAgo(1))
		case "/v2/requesters/7", "/v2/agents/7":
			// Login data hidden on this plan.
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "access denied"}`)
		case "/v2/tickets":
			fmt.Fprint(w, `{"tickets": []}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	var milestones []string
	_, summary := s.Scan(context.Background(), ScanOptions{
		ThresholdDays: 90,
		IncludeAgents: true,
		Progress:      func(msg string) { milestones = append(milestones, msg) },
	})

	assert.True(t, summary.UsingAlternativeMethods)
	assert.Equal(t, 1, summary.AgentsChecked)
	assert.Contains(t, milestones,
		"Direct login data not available - using alternative activity tracking methods")
}
