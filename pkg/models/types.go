package models

import (
	"strings"
	"time"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleDriver    SenderRole = "driver"
	RoleAssistant SenderRole = "assistant"
	RoleAgent     SenderRole = "agent"
	RoleSystem    SenderRole = "system"
)

// ValidSenderRole reports whether a role is one the ingress accepts.
func ValidSenderRole(r SenderRole) bool {
	switch r {
	case RoleDriver, RoleAssistant, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// SystemChatEnded is the terminal message appended when an agent resolves a
// session. Clients stop polling once they see it.
const SystemChatEnded = "Chat ended by agent."

// Message is an immutable entry in a driver's conversation log. ID is
// store-assigned and strictly increasing per driver; ordering is defined by
// ID, never by timestamp.
type Message struct {
	ID         int64      `json:"id"`
	DriverID   string     `json:"driver_id"`
	Sender     SenderRole `json:"sender"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	Intent     string     `json:"intent,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Escalate   bool       `json:"escalate,omitempty"`
}

// Owner is the actor currently authorized to respond in a conversation:
// the automated assistant, or a specific human agent.
type Owner struct {
	AgentID string
}

// OwnerAssistant is the default owner of every session.
var OwnerAssistant = Owner{}

// OwnerAgent returns ownership by the given agent.
func OwnerAgent(agentID string) Owner {
	return Owner{AgentID: agentID}
}

// IsAssistant reports whether the assistant owns the conversation.
func (o Owner) IsAssistant() bool {
	return o.AgentID == ""
}

func (o Owner) String() string {
	if o.AgentID == "" {
		return "assistant"
	}
	return "agent:" + o.AgentID
}

// ParseOwner decodes the string form produced by Owner.String. Unknown or
// empty values decode as the assistant.
func ParseOwner(s string) Owner {
	if rest := strings.TrimPrefix(s, "agent:"); rest != s && rest != "" {
		return Owner{AgentID: rest}
	}
	return OwnerAssistant
}

// TicketStatus is the lifecycle state of an escalation ticket. Transitions are
// monotonic (OPEN -> CLAIMED -> RESOLVED); the only backward edge is an
// explicit release of a CLAIMED ticket back to OPEN.
type TicketStatus string

const (
	StatusOpen     TicketStatus = "OPEN"
	StatusClaimed  TicketStatus = "CLAIMED"
	StatusResolved TicketStatus = "RESOLVED"
)

// Active reports whether a ticket in this status still blocks creation of a
// new ticket for the same driver.
func (s TicketStatus) Active() bool {
	return s == StatusOpen || s == StatusClaimed
}

// Ticket is one unit of escalation work. At most one active ticket exists per
// driver at any time.
type Ticket struct {
	ID         string       `json:"id"`
	DriverID   string       `json:"driver_id"`
	Status     TicketStatus `json:"status"`
	Intent     string       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Summary    string       `json:"summary"`
	CreatedAt  time.Time    `json:"created_at"`
	ClaimedBy  string       `json:"claimed_by,omitempty"`
	ClaimedAt  time.Time    `json:"claimed_at,omitempty"`
	ResolvedAt time.Time    `json:"resolved_at,omitempty"`
}

// Reply is the classifier/responder output for one driver utterance.
type Reply struct {
	Text       string  `json:"response"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Escalate   bool    `json:"escalate"`
}

// Driver is a directory record for a registered driver.
type Driver struct {
	DriverID string `json:"driver_id"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Plan     string `json:"plan,omitempty"`
}
