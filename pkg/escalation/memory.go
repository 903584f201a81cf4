package escalation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"driver-support-chat/pkg/events"
	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/store"
)

// MemoryRegistry is an in-process TicketRegistry with the same semantics as
// the Redis implementation. One mutex linearizes all transitions, which keeps
// the ticket write and its ownership/system-message side effects atomic as a
// unit.
type MemoryRegistry struct {
	mu       sync.Mutex
	store    store.ConversationStore
	sink     events.Sink
	leaseTTL time.Duration
	tickets  map[string]*models.Ticket
	active   map[string]string // driverID -> active ticket id
	leases   map[string]time.Time
	now      func() time.Time
}

func NewMemoryRegistry(st store.ConversationStore, leaseTTL time.Duration, sink events.Sink) *MemoryRegistry {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &MemoryRegistry{
		store:    st,
		sink:     sink,
		leaseTTL: leaseTTL,
		tickets:  make(map[string]*models.Ticket),
		active:   make(map[string]string),
		leases:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock overrides the registry clock. Test hook for lease expiry.
func (r *MemoryRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRegistry) Open(ctx context.Context, driverID, intent string, confidence float64, summary string) (models.Ticket, error) {
	if driverID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}
	if summary == "" {
		summary = "Automated escalation"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[driverID]; ok {
		return *r.tickets[id], nil
	}

	ticket := &models.Ticket{
		ID:         uuid.New().String(),
		DriverID:   driverID,
		Status:     models.StatusOpen,
		Intent:     intent,
		Confidence: confidence,
		Summary:    summary,
		CreatedAt:  r.now().UTC(),
	}
	r.tickets[ticket.ID] = ticket
	r.active[driverID] = ticket.ID

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeOpened,
		TicketID: ticket.ID,
		DriverID: driverID,
		Intent:   intent,
		At:       ticket.CreatedAt,
	})

	return *ticket, nil
}

func (r *MemoryRegistry) Get(ctx context.Context, ticketID string) (models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return models.Ticket{}, models.ErrNotFound
	}
	return *ticket, nil
}

func (r *MemoryRegistry) ActiveForDriver(ctx context.Context, driverID string) (models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[driverID]
	if !ok {
		return models.Ticket{}, models.ErrNoActiveTicket
	}
	return *r.tickets[id], nil
}

func (r *MemoryRegistry) List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Ticket, 0)
	for _, ticket := range r.tickets {
		if ticket.Status == status {
			out = append(out, *ticket)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if status == models.StatusResolved {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRegistry) Claim(ctx context.Context, ticketID, agentID string) (models.Ticket, error) {
	if ticketID == "" || agentID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return models.Ticket{}, models.ErrNotFound
	}
	if ticket.Status != models.StatusOpen {
		return models.Ticket{}, models.ErrAlreadyClaimed
	}

	claimedAt := r.now().UTC()
	ticket.Status = models.StatusClaimed
	ticket.ClaimedBy = agentID
	ticket.ClaimedAt = claimedAt
	r.leases[ticketID] = claimedAt.Add(r.leaseTTL)

	if err := r.store.SetOwner(ctx, ticket.DriverID, models.OwnerAgent(agentID)); err != nil {
		return models.Ticket{}, err
	}

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeClaimed,
		TicketID: ticketID,
		DriverID: ticket.DriverID,
		AgentID:  agentID,
		At:       claimedAt,
	})

	return *ticket, nil
}

func (r *MemoryRegistry) Resolve(ctx context.Context, driverID string) (models.Ticket, error) {
	if driverID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[driverID]
	if !ok {
		return models.Ticket{}, models.ErrNoActiveTicket
	}

	ticket := r.tickets[id]
	resolvedAt := r.now().UTC()
	ticket.Status = models.StatusResolved
	ticket.ResolvedAt = resolvedAt
	delete(r.active, driverID)
	delete(r.leases, id)

	if err := r.store.SetOwner(ctx, driverID, models.OwnerAssistant); err != nil {
		return models.Ticket{}, err
	}
	if _, err := r.store.Append(ctx, driverID, models.Message{
		Sender:    models.RoleSystem,
		Text:      models.SystemChatEnded,
		Timestamp: resolvedAt,
	}); err != nil {
		return models.Ticket{}, err
	}

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeResolved,
		TicketID: id,
		DriverID: driverID,
		AgentID:  ticket.ClaimedBy,
		At:       resolvedAt,
	})

	return *ticket, nil
}

func (r *MemoryRegistry) Release(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(ctx, ticketID, reason)
}

func (r *MemoryRegistry) releaseLocked(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return models.Ticket{}, models.ErrNotFound
	}
	if ticket.Status != models.StatusClaimed {
		return models.Ticket{}, models.ErrNoActiveTicket
	}

	agentID := ticket.ClaimedBy
	ticket.Status = models.StatusOpen
	ticket.ClaimedBy = ""
	ticket.ClaimedAt = time.Time{}
	delete(r.leases, ticketID)

	if err := r.store.SetOwner(ctx, ticket.DriverID, models.OwnerAssistant); err != nil {
		return models.Ticket{}, err
	}

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeReleased,
		TicketID: ticketID,
		DriverID: ticket.DriverID,
		AgentID:  agentID,
		Reason:   reason,
		At:       r.now().UTC(),
	})

	return *ticket, nil
}

func (r *MemoryRegistry) Heartbeat(ctx context.Context, ticketID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.Status != models.StatusClaimed || ticket.ClaimedBy != agentID {
		return models.ErrNotFound
	}
	if _, ok := r.leases[ticketID]; !ok {
		return models.ErrNotFound
	}
	r.leases[ticketID] = r.now().Add(r.leaseTTL)
	return nil
}

func (r *MemoryRegistry) ReleaseExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	released := 0
	for id, deadline := range r.leases {
		if deadline.After(now) {
			continue
		}
		if _, err := r.releaseLocked(ctx, id, ReleaseReasonExpired); err != nil {
			if err == models.ErrNotFound || err == models.ErrNoActiveTicket {
				delete(r.leases, id)
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}
