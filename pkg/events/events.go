// Package events carries escalation lifecycle events over a Redis stream so
// notification consumers (agent alerting, audit) can follow ticket activity
// without polling the registry.
package events

import (
	"context"
	"time"
)

// Event types published by the registry.
const (
	TypeOpened   = "opened"
	TypeClaimed  = "claimed"
	TypeResolved = "resolved"
	TypeReleased = "released"
)

// Event is one ticket lifecycle transition.
type Event struct {
	Type     string    `json:"type"`
	TicketID string    `json:"ticket_id"`
	DriverID string    `json:"driver_id"`
	AgentID  string    `json:"agent_id,omitempty"`
	Intent   string    `json:"intent,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Sink accepts lifecycle events. Publishing is best effort: the registry
// never fails a transition because the sink is down.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event Event) {}
