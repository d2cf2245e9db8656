package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fsadmin-io/fsadmin/internal/types"
)

// ticketsPerPage is the hard cap the ticket collection endpoint enforces.
const ticketsPerPage = 100

// TicketsService reads ticket and conversation data.
type TicketsService struct {
	client *Client
}

type ticketEnvelope struct {
	Ticket *types.Ticket `json:"ticket"`
}

type ticketListEnvelope struct {
	Tickets []types.Ticket `json:"tickets"`
}

type conversationListEnvelope struct {
	Conversations []types.Conversation `json:"conversations"`
}

// ListOptions narrows a ticket listing. Zero values are omitted from the
// request.
type ListOptions struct {
	RequesterID  int64
	Email        string
	UpdatedSince time.Time
	Filter       string
	OrderBy      string
	OrderType    string
	PerPage      int
	Page         int
	WorkspaceID  int64
}

func (o ListOptions) values() url.Values {
	query := url.Values{}
	if o.RequesterID != 0 {
		query.Set("requester_id", strconv.FormatInt(o.RequesterID, 10))
	}
	if o.Email != "" {
		query.Set("email", o.Email)
	}
	if !o.UpdatedSince.IsZero() {
		query.Set("updated_since", o.UpdatedSince.UTC().Format(time.RFC3339))
	}
	if o.Filter != "" {
		query.Set("filter", o.Filter)
	}
	if o.OrderBy != "" {
		query.Set("order_by", o.OrderBy)
	}
	if o.OrderType != "" {
		query.Set("order_type", o.OrderType)
	}
	perPage := o.PerPage
	if perPage <= 0 || perPage > ticketsPerPage {
		perPage = ticketsPerPage
	}
	query.Set("per_page", strconv.Itoa(perPage))
	if o.Page > 0 {
		query.Set("page", strconv.Itoa(o.Page))
	}
	return query
}

// List returns one page of tickets matching the options. The ticket
// collection rejects the workspaces/{id}/ path prefix, so tenant scoping
// rides along as a workspace_id query parameter instead.
func (s *TicketsService) List(ctx context.Context, opts ListOptions) ([]types.Ticket, error) {
	workspaceID := opts.WorkspaceID
	if workspaceID == 0 {
		workspaceID = s.client.cfg.WorkspaceID
	}
	query := opts.values()
	if workspaceID != 0 {
		query.Set("workspace_id", strconv.FormatInt(workspaceID, 10))
	}

	raw, err := s.client.Get(ctx, "tickets", query, 0)
	if err != nil {
		return nil, err
	}
	var env ticketListEnvelope
	if err := decodeInto(raw, "tickets", &env); err != nil {
		return nil, err
	}
	return env.Tickets, nil
}

// ListAll paginates the ticket collection until a short or empty page.
func (s *TicketsService) ListAll(ctx context.Context, opts ListOptions) ([]types.Ticket, error) {
	var tickets []types.Ticket
	for page := 1; ; page++ {
		opts.Page = page
		batch, err := s.List(ctx, opts)
		if err != nil {
			// Partial results are still useful to report callers.
			if len(tickets) > 0 {
				s.client.log.Warnf("stopping ticket pagination at page %d: %v", page, err)
				return tickets, nil
			}
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		tickets = append(tickets, batch...)
		if len(batch) < ticketsPerPage {
			break
		}
	}
	return tickets, nil
}

// Get reads a single ticket by ID.
func (s *TicketsService) Get(ctx context.Context, id int64) (*types.Ticket, error) {
	raw, err := s.client.Get(ctx, fmt.Sprintf("tickets/%d", id), nil, 0)
	if err != nil {
		return nil, err
	}
	var env ticketEnvelope
	if err := decodeInto(raw, "ticket", &env); err != nil {
		return nil, err
	}
	return env.Ticket, nil
}

// GetWithConversations reads a ticket with its conversation thread embedded.
func (s *TicketsService) GetWithConversations(ctx context.Context, id int64) (*types.Ticket, error) {
	query := url.Values{"include": {"conversations"}}
	raw, err := s.client.Get(ctx, fmt.Sprintf("tickets/%d", id), query, 0)
	if err != nil {
		return nil, err
	}
	var env ticketEnvelope
	if err := decodeInto(raw, "ticket", &env); err != nil {
		return nil, err
	}
	return env.Ticket, nil
}

// Conversations reads the conversation thread of a ticket directly.
func (s *TicketsService) Conversations(ctx context.Context, ticketID int64) ([]types.Conversation, error) {
	raw, err := s.client.Get(ctx, fmt.Sprintf("tickets/%d/conversations", ticketID), nil, 0)
	if err != nil {
		return nil, err
	}
	var env conversationListEnvelope
	if err := decodeInto(raw, "conversations", &env); err != nil {
		return nil, err
	}
	return env.Conversations, nil
}

// NewestByRequester returns the requester's most recently created ticket, or
// nil when they have none.
func (s *TicketsService) NewestByRequester(ctx context.Context, requesterID int64) (*types.Ticket, error) {
	tickets, err := s.List(ctx, ListOptions{
		RequesterID: requesterID,
		OrderBy:     "created_at",
		OrderType:   "desc",
		PerPage:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}
	return &tickets[0], nil
}
