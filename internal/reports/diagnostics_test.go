package reports

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsHealthyRun(t *testing.T) {
	var conversationPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tickets":
			fmt.Fprint(w, `{"tickets": [{"id": 9}]}`)
		case "/v2/agents":
			fmt.Fprint(w, `{"agents": [{"id": 1}]}`)
		case "/v2/tickets/9":
			conversationPath = r.URL.Path
			assert.Equal(t, "conversations", r.URL.Query().Get("include"))
			fmt.Fprint(w, `{"ticket": {"id": 9, "conversations": []}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	report := NewDiagnosticsRunner(c).Run(context.Background(), 42)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "All API endpoints are accessible and functioning correctly.", report.Summary)
	require.Len(t, report.Endpoints, 5)
	for name, result := range report.Endpoints {
		assert.True(t, result.Success, "probe %s", name)
	}
	assert.Equal(t, "/v2/tickets/9", conversationPath,
		"the conversation probe expands a ticket found by the base probe")
	assert.Contains(t, report.TestedParameters.SupportedFilters, "watching")
	assert.Contains(t, report.TestedParameters.UnsupportedParams, "responder_id")
}

func TestDiagnosticsPartialRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tickets":
			fmt.Fprint(w, `{"tickets": [{"id": 9}]}`)
		case "/v2/agents":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "access denied"}`)
		case "/v2/tickets/9":
			fmt.Fprint(w, `{"ticket": {"id": 9}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	report := NewDiagnosticsRunner(c).Run(context.Background(), 0)

	assert.Equal(t, "partial", report.Status)
	assert.Equal(t, "4 of 5 endpoints are working. Some functionality may be limited.", report.Summary)

	agents := report.Endpoints[ProbeAgents]
	require.NotNil(t, agents)
	assert.False(t, agents.Success)
	assert.Equal(t, http.StatusForbidden, agents.StatusCode)
	assert.NotEmpty(t, agents.Error)
}

func TestDiagnosticsWithoutAnyTickets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tickets":
			fmt.Fprint(w, `{"tickets": []}`)
		case "/v2/agents":
			fmt.Fprint(w, `{"agents": []}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	report := NewDiagnosticsRunner(c).Run(context.Background(), 0)

	conv := report.Endpoints[ProbeTicketConversations]
	require.NotNil(t, conv)
	assert.False(t, conv.Success)
	assert.Equal(t, "No ticket ID available for testing", conv.Error)
	assert.Equal(t, "partial", report.Status)
}

func TestDiagnosticsTotalFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "invalid credentials"}`)
	})

	report := NewDiagnosticsRunner(c).Run(context.Background(), 0)

	assert.Equal(t, "failed", report.Status)
	assert.Equal(t, "All API endpoints failed. Check API key and permissions.", report.Summary)
}
