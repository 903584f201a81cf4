// Package escalation tracks escalation tickets and owns every ownership
// hand-off between the assistant and human agents. Ticket transitions and the
// matching ownership writes are applied as one atomic unit, so observers can
// never see a claimed ticket with a stale owner or vice versa.
package escalation

import (
	"context"

	"driver-support-chat/pkg/models"
)

// TicketRegistry is the lifecycle contract for escalation tickets.
//
// At most one ACTIVE (OPEN or CLAIMED) ticket exists per driver; Open is
// idempotent against it. Status moves OPEN -> CLAIMED -> RESOLVED; Release is
// the single sanctioned CLAIMED -> OPEN edge, used when an agent disconnects
// or a claim lease lapses.
type TicketRegistry interface {
	// Open creates an OPEN ticket for the driver unless an active one already
	// exists, in which case that ticket is returned unchanged (the first
	// escalation reason wins).
	Open(ctx context.Context, driverID, intent string, confidence float64, summary string) (models.Ticket, error)

	// Get returns a ticket by id, or models.ErrNotFound.
	Get(ctx context.Context, ticketID string) (models.Ticket, error)

	// ActiveForDriver returns the driver's ACTIVE ticket, or
	// models.ErrNoActiveTicket.
	ActiveForDriver(ctx context.Context, driverID string) (models.Ticket, error)

	// List returns OPEN tickets oldest-first, or RESOLVED tickets
	// most-recent-first.
	List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error)

	// Claim atomically transitions an OPEN ticket to CLAIMED, records the
	// agent, starts the claim lease, and hands the driver's conversation to
	// the agent. Exactly one of any set of concurrent claims succeeds; the
	// rest get models.ErrAlreadyClaimed.
	Claim(ctx context.Context, ticketID, agentID string) (models.Ticket, error)

	// Resolve transitions the driver's active ticket to RESOLVED, appends the
	// terminal system message to the conversation, and reverts ownership to
	// the assistant, all atomically. Returns models.ErrNoActiveTicket when
	// the driver has none.
	Resolve(ctx context.Context, driverID string) (models.Ticket, error)

	// Release puts a CLAIMED ticket back to OPEN, keeping its original
	// created_at so it does not lose its place in the queue, and reverts
	// ownership to the assistant.
	Release(ctx context.Context, ticketID, reason string) (models.Ticket, error)

	// Heartbeat renews the claim lease held by agentID. Fails with
	// models.ErrNotFound when the lease is gone or held by someone else.
	Heartbeat(ctx context.Context, ticketID, agentID string) error

	// ReleaseExpired releases every CLAIMED ticket whose lease has lapsed and
	// returns how many were released. Called by the leader-gated sweeper.
	ReleaseExpired(ctx context.Context) (int, error)
}

// Release reasons recorded on the lifecycle event.
const (
	ReleaseReasonAgent   = "agent_release"
	ReleaseReasonExpired = "lease_expired"
)
