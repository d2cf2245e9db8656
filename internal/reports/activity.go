// Package reports builds operator-facing activity, inactivity and
// diagnostic reports on top of the API client. Report generation is
// best-effort: individual strategy failures are logged and the next
// fallback runs, so a report degrades rather than aborts.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsadmin-io/fsadmin/internal/apierr"
	"github.com/fsadmin-io/fsadmin/internal/client"
	"github.com/fsadmin-io/fsadmin/internal/types"
)

const (
	ItemTicket       = "ticket"
	ItemConversation = "conversation"

	RoleRequester = "requester"
	RoleAgent     = "agent"

	AgentRoleAssigned     = "Assigned"
	AgentRoleCollaborator = "Collaborator"

	ConversationPrivateNote = "Private Note"
	ConversationPublicReply = "Public Reply"
)

// ActivityItem is one row of an activity report, either a ticket or a
// single conversation within one.
type ActivityItem struct {
	Type             string
	Role             string
	AgentRole        string
	ConversationType string
	TicketID         int64
	ConversationID   int64
	UserID           int64
	Subject          string
	Body             string
	Status           int
	Priority         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RequesterSummary totals the requester side of an activity report.
type RequesterSummary struct {
	TotalTickets       int
	TotalConversations int
	DateRange          string
}

// AgentSummary totals the agent side of an activity report. Error is set
// when the agent data could not be gathered at all.
type AgentSummary struct {
	TotalTickets        int
	TotalResponses      int
	AssignedTickets     int
	CollaboratedTickets int
	Error               string
	ErrorKind           string
}

// CombinedSummary merges requester- and agent-side totals for a
// comprehensive report. AgentActivityAvailable is nil when the user is not
// an agent, true when agent data was gathered, and false when the attempt
// failed (AgentError then explains why).
type CombinedSummary struct {
	TicketsCreated           int
	TicketsWorked            int
	ConversationsAsRequester int
	ResponsesAsAgent         int
	TicketsAssigned          int
	TicketsCollaborated      int
	DateRange                string
	IsAgent                  bool
	AgentActivityAttempted   bool
	AgentActivityAvailable   *bool
	AgentError               string
	AgentErrorKind           string
}

// Aggregator assembles per-user activity reports from tickets and their
// conversation threads.
type Aggregator struct {
	client *client.Client
	log    *logrus.Logger
	now    func() time.Time
}

func NewAggregator(c *client.Client) *Aggregator {
	return &Aggregator{client: c, log: c.Logger(), now: time.Now}
}

// TicketActivity returns the tickets matching the given identity filter.
// Exactly one of userID/email must be set. Failures are logged and read as
// an empty result.
func (a *Aggregator) TicketActivity(ctx context.Context, userID int64, email string, since time.Time, limit int) []types.Ticket {
	a.log.Infof("getting ticket activity for user_id=%d email=%s", userID, email)

	if userID == 0 && email == "" {
		a.log.Error("either a user id or an email must be provided")
		return nil
	}

	opts := client.ListOptions{UpdatedSince: since, PerPage: limit}
	if userID != 0 {
		opts.RequesterID = userID
	} else {
		opts.Email = email
	}

	tickets, err := a.client.Tickets.List(ctx, opts)
	if err != nil {
		a.log.Errorf("error getting tickets: %v", err)
		return nil
	}
	a.log.Infof("found %d tickets for user", len(tickets))
	return tickets
}

// Conversations returns a ticket's conversation thread, empty on error.
func (a *Aggregator) Conversations(ctx context.Context, ticketID int64) []types.Conversation {
	conversations, err := a.conversations(ctx, ticketID)
	if err != nil {
		a.log.Errorf("error getting conversations for ticket %d: %v", ticketID, err)
		return nil
	}
	return conversations
}

func (a *Aggregator) conversations(ctx context.Context, ticketID int64) ([]types.Conversation, error) {
	ticket, err := a.client.Tickets.GetWithConversations(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, nil
	}
	return ticket.Conversations, nil
}

// RequesterActivity reports the tickets a user created within the window,
// with each ticket's conversations interleaved, newest first.
func (a *Aggregator) RequesterActivity(ctx context.Context, userID int64, email string, days int) ([]ActivityItem, RequesterSummary) {
	end := a.now()
	start := end.AddDate(0, 0, -days)
	since := startOfDayUTC(start)

	tickets := a.TicketActivity(ctx, userID, email, since, 100)

	var items []ActivityItem
	for _, ticket := range tickets {
		items = append(items, ticketItem(ticket, ""))

		conversations, err := a.conversations(ctx, ticket.ID)
		if err != nil {
			a.log.Errorf("error processing conversations for ticket %d: %v", ticket.ID, err)
			continue
		}
		for _, conv := range conversations {
			items = append(items, conversationItem(ticket.ID, conv, ""))
		}
	}

	sortNewestFirst(items)

	summary := RequesterSummary{
		TotalTickets:       len(tickets),
		TotalConversations: countType(items, ItemConversation),
		DateRange:          fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
	}
	return items, summary
}

// AgentTicketInteractions finds tickets the agent touched, trying three
// strategies in order and stopping at the first non-empty result. The
// collection cannot be filtered by responder server-side, so every strategy
// filters locally. An error is returned only when every strategy failed
// outright; an agent with genuinely no activity yields an empty result.
func (a *Aggregator) AgentTicketInteractions(ctx context.Context, agentID int64, since time.Time, limit int) ([]types.Ticket, error) {
	a.log.Infof("getting ticket interactions for agent_id=%d", agentID)

	strategies := []func(context.Context, int64, time.Time, int) ([]types.Ticket, error){
		a.agentTicketsByResponder,
		a.agentTicketsByFilter,
		a.agentTicketsByScanning,
	}

	var found []types.Ticket
	var firstErr error
	failed := 0

	for i, strategy := range strategies {
		if len(found) > 0 {
			a.log.Infof("already found %d tickets, skipping remaining strategies", len(found))
			break
		}
		a.log.Infof("trying strategy #%d to find agent tickets", i+1)

		tickets, err := strategy(ctx, agentID, since, limit)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			a.log.Errorf("error with strategy #%d: %v", i+1, err)
			continue
		}
		if len(tickets) > 0 {
			a.log.Infof("found %d tickets using strategy #%d", len(tickets), i+1)
			found = append(found, tickets...)
		}
	}

	if len(found) == 0 && failed == len(strategies) {
		return nil, firstErr
	}
	return found, nil
}

// agentTicketsByResponder pulls a page of recently updated tickets and
// keeps the ones assigned to the agent.
func (a *Aggregator) agentTicketsByResponder(ctx context.Context, agentID int64, since time.Time, limit int) ([]types.Ticket, error) {
	tickets, err := a.client.Tickets.List(ctx, client.ListOptions{
		UpdatedSince: since,
		PerPage:      limit,
	})
	if err != nil {
		return nil, err
	}

	a.log.Infof("filtering %d tickets for agent %d assignment", len(tickets), agentID)
	var matched []types.Ticket
	for _, ticket := range tickets {
		if ticket.AssignedTo(agentID) {
			matched = append(matched, ticket)
		}
	}
	return matched, nil
}

// agentTicketsByFilter retries with the watching filter, the only filter
// value related to agent involvement the collection supports.
func (a *Aggregator) agentTicketsByFilter(ctx context.Context, agentID int64, since time.Time, limit int) ([]types.Ticket, error) {
	tickets, err := a.client.Tickets.List(ctx, client.ListOptions{
		Filter:       "watching",
		UpdatedSince: since,
		PerPage:      limit,
	})
	if err != nil {
		return nil, err
	}

	var matched []types.Ticket
	for _, ticket := range tickets {
		if ticket.AssignedTo(agentID) {
			matched = append(matched, ticket)
		}
	}
	return matched, nil
}

// agentTicketsByScanning is the last resort: walk the most recently
// updated tickets and check each one's conversation thread for the agent.
// Conversation fetch errors are logged for the first few tickets only,
// then suppressed, since a large scan against a flaky endpoint would
// otherwise flood the log.
func (a *Aggregator) agentTicketsByScanning(ctx context.Context, agentID int64, since time.Time, limit int) ([]types.Ticket, error) {
	const maxConversationErrors = 3

	tickets, err := a.client.Tickets.List(ctx, client.ListOptions{
		UpdatedSince: since,
		OrderBy:      "updated_at",
		OrderType:    "desc",
		PerPage:      limit,
	})
	if err != nil {
		return nil, err
	}
	a.log.Infof("checking %d recent tickets for agent assignment", len(tickets))

	var matched []types.Ticket
	conversationErrors := 0
	for _, ticket := range tickets {
		if ticket.AssignedTo(agentID) {
			matched = append(matched, ticket)
			continue
		}

		conversations, err := a.conversations(ctx, ticket.ID)
		if err != nil {
			conversationErrors++
			if conversationErrors <= maxConversationErrors {
				a.log.Errorf("error checking conversations for ticket %d: %v", ticket.ID, err)
			} else if conversationErrors == maxConversationErrors+1 {
				a.log.Error("additional conversation errors suppressed to avoid log spam")
			}
			continue
		}
		for _, conv := range conversations {
			if conv.UserID == agentID {
				matched = append(matched, ticket)
				break
			}
		}
	}

	a.log.Infof("found %d tickets with agent involvement through scanning", len(matched))
	return matched, nil
}

// AgentActivityReport reports the tickets an agent worked within the
// window: each ticket tagged Assigned or Collaborator, plus the agent's
// own responses tagged private note or public reply.
func (a *Aggregator) AgentActivityReport(ctx context.Context, agentID int64, days int) ([]ActivityItem, AgentSummary, error) {
	a.log.Infof("generating agent activity report for agent_id=%d", agentID)

	end := a.now()
	start := end.AddDate(0, 0, -days)

	tickets, err := a.AgentTicketInteractions(ctx, agentID, startOfDayUTC(start), 100)
	if err != nil {
		return nil, AgentSummary{}, err
	}

	var items []ActivityItem
	for _, ticket := range tickets {
		item := ticketItem(ticket, RoleAgent)
		item.AgentRole = AgentRoleCollaborator
		if ticket.AssignedTo(agentID) {
			item.AgentRole = AgentRoleAssigned
		}
		items = append(items, item)

		conversations, cErr := a.conversations(ctx, ticket.ID)
		if cErr != nil {
			a.log.Errorf("error processing agent conversations for ticket %d: %v", ticket.ID, cErr)
			continue
		}
		for _, conv := range conversations {
			if conv.UserID != agentID {
				continue
			}
			item := conversationItem(ticket.ID, conv, RoleAgent)
			if conv.Private {
				item.ConversationType = ConversationPrivateNote
			} else {
				item.ConversationType = ConversationPublicReply
			}
			items = append(items, item)
		}
	}

	sortNewestFirst(items)

	summary := AgentSummary{
		TotalTickets:        len(tickets),
		TotalResponses:      countType(items, ItemConversation),
		AssignedTickets:     countAgentRole(items, AgentRoleAssigned),
		CollaboratedTickets: countAgentRole(items, AgentRoleCollaborator),
	}
	return items, summary, nil
}

// ComprehensiveActivity combines requester and agent activity for one
// user. A failing agent branch never aborts the report: the requester side
// is returned with the agent error recorded in the summary so the caller
// can explain the partial data.
func (a *Aggregator) ComprehensiveActivity(ctx context.Context, userID int64, email string, days int) ([]ActivityItem, CombinedSummary, bool) {
	requesterItems, requesterSummary := a.RequesterActivity(ctx, userID, email, days)

	isAgent := false
	attempted := false
	var agentItems []ActivityItem
	var agentSummary AgentSummary

	if userID != 0 {
		isAgent = a.client.Users.IsAgent(ctx, userID)
		if isAgent {
			attempted = true
			a.log.Infof("user %d is an agent, attempting to retrieve agent activity", userID)

			items, summary, err := a.AgentActivityReport(ctx, userID, days)
			if err != nil {
				agentSummary = AgentSummary{Error: err.Error(), ErrorKind: errorKind(err)}
				a.log.Errorf("failed to retrieve agent activity: %s: %v", agentSummary.ErrorKind, err)
			} else {
				agentItems, agentSummary = items, summary
			}
		}
	}

	merged := mergeActivity(requesterItems, agentItems)

	combined := CombinedSummary{
		TicketsCreated:           requesterSummary.TotalTickets,
		ConversationsAsRequester: requesterSummary.TotalConversations,
		DateRange:                requesterSummary.DateRange,
		IsAgent:                  isAgent,
		AgentActivityAttempted:   attempted,
	}
	if isAgent {
		combined.TicketsWorked = agentSummary.TotalTickets
		combined.ResponsesAsAgent = agentSummary.TotalResponses
		combined.TicketsAssigned = agentSummary.AssignedTickets
		combined.TicketsCollaborated = agentSummary.CollaboratedTickets

		available := agentSummary.Error == ""
		combined.AgentActivityAvailable = &available
		if agentSummary.Error != "" {
			combined.AgentError = agentSummary.Error
			combined.AgentErrorKind = agentSummary.ErrorKind
		}
	}
	return merged, combined, isAgent
}

// mergeActivity appends agent items to the requester items, dropping
// duplicates. Requester-pass items win; tickets deduplicate on ticket id,
// conversations on conversation id.
func mergeActivity(requesterItems, agentItems []ActivityItem) []ActivityItem {
	merged := make([]ActivityItem, len(requesterItems))
	copy(merged, requesterItems)

	ticketsSeen := make(map[int64]bool)
	conversationsSeen := make(map[int64]bool)
	for _, item := range merged {
		switch item.Type {
		case ItemTicket:
			ticketsSeen[item.TicketID] = true
		case ItemConversation:
			conversationsSeen[item.ConversationID] = true
		}
	}

	for _, item := range agentItems {
		switch item.Type {
		case ItemTicket:
			if ticketsSeen[item.TicketID] {
				continue
			}
			ticketsSeen[item.TicketID] = true
		case ItemConversation:
			if conversationsSeen[item.ConversationID] {
				continue
			}
			conversationsSeen[item.ConversationID] = true
		}
		merged = append(merged, item)
	}

	sortNewestFirst(merged)
	return merged
}

func ticketItem(ticket types.Ticket, role string) ActivityItem {
	subject := ticket.Subject
	if subject == "" {
		subject = "No subject"
	}
	return ActivityItem{
		Type:      ItemTicket,
		Role:      role,
		TicketID:  ticket.ID,
		Subject:   subject,
		Status:    ticket.Status,
		Priority:  ticket.Priority,
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
}

func conversationItem(ticketID int64, conv types.Conversation, role string) ActivityItem {
	body := conv.Body
	if body == "" {
		body = "No content"
	}
	return ActivityItem{
		Type:           ItemConversation,
		Role:           role,
		TicketID:       ticketID,
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Body:           body,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
}

func sortNewestFirst(items []ActivityItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func countType(items []ActivityItem, itemType string) int {
	n := 0
	for _, item := range items {
		if item.Type == itemType {
			n++
		}
	}
	return n
}

func countAgentRole(items []ActivityItem, agentRole string) int {
	n := 0
	for _, item := range items {
		if item.Type == ItemTicket && item.AgentRole == agentRole {
			n++
		}
	}
	return n
}

func startOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func errorKind(err error) string {
	var apiErr *apierr.APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	var netErr *apierr.NetworkError
	if errors.As(err, &netErr) {
		return "network"
	}
	return "error"
}
