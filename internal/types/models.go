// Package types holds the wire models exchanged with the service-management
// platform.
package types

import (
	"fmt"
	"time"
)

// Pool identifies which backing collection a user record lives in. The two
// pools are disjoint and their numeric IDs are pool-scoped: mutations must be
// issued against the sub-resource matching the record's pool.
type Pool string

const (
	PoolRequester Pool = "requester"
	PoolAgent     Pool = "agent"
)

// Endpoint returns the REST sub-resource backing the pool.
func (p Pool) Endpoint() string {
	if p == PoolAgent {
		return "agents"
	}
	return "requesters"
}

// Label returns the human-facing pool name used in reports.
func (p Pool) Label() string {
	if p == PoolAgent {
		return "Agent"
	}
	return "Requester"
}

// User is a person record from either the requester or the agent pool.
// Requester-shaped records carry the address in primary_email, agent-shaped
// ones in email; IsAgent is the server-side superset flag on
// requester-shaped records.
type User struct {
	ID                 int64      `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	PrimaryEmail       string     `json:"primary_email,omitempty"`
	Email              string     `json:"email,omitempty"`
	Active             bool       `json:"active"`
	IsAgent            bool       `json:"is_agent,omitempty"`
	JobTitle           string     `json:"job_title,omitempty"`
	DepartmentIDs      []int64    `json:"department_ids,omitempty"`
	ReportingManagerID *int64     `json:"reporting_manager_id,omitempty"`
	WorkPhoneNumber    string     `json:"work_phone_number,omitempty"`
	MobilePhoneNumber  string     `json:"mobile_phone_number,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`

	// Pool is assigned by the lookup layer, not the wire format.
	Pool Pool `json:"-"`
}

// BestEmail returns the primary address regardless of pool shape.
func (u *User) BestEmail() string {
	if u.PrimaryEmail != "" {
		return u.PrimaryEmail
	}
	return u.Email
}

// FullName joins the name fields, tolerating blanks.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// Ticket is a support request owned by the remote system.
type Ticket struct {
	ID            int64          `json:"id"`
	Subject       string         `json:"subject"`
	Status        int            `json:"status"`
	Priority      int            `json:"priority"`
	ResponderID   *int64         `json:"responder_id,omitempty"`
	RequesterID   int64          `json:"requester_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// AssignedTo reports whether the ticket's responder is the given agent.
func (t *Ticket) AssignedTo(agentID int64) bool {
	return t.ResponderID != nil && *t.ResponderID == agentID
}

// Conversation is a reply or note attached to a ticket.
type Conversation struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id,omitempty"`
	UserID    int64     `json:"user_id"`
	Body      string    `json:"body"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Workspace is a logically isolated tenant instance.
type Workspace struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary,omitempty"`
}

// Department groups users for routing and reporting.
type Department struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

var statusNames = map[int]string{
	1: "Open",
	2: "Pending",
	3: "Resolved",
	4: "Closed",
	5: "New",
	6: "In Progress",
	7: "On Hold",
}

var priorityNames = map[int]string{
	1: "Low",
	2: "Medium",
	3: "High",
	4: "Urgent",
}

// StatusName maps a numeric ticket status to its display text.
func StatusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("Status %d", status)
}

// PriorityName maps a numeric ticket priority to its display text.
func PriorityName(priority int) string {
	if name, ok := priorityNames[priority]; ok {
		return name
	}
	return fmt.Sprintf("Priority %d", priority)
}
