package escalation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/events"
	"driver-support-chat/pkg/metrics"
	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/store"
)

const (
	openSetKey     = "tickets:open"
	claimedSetKey  = "tickets:claimed"
	resolvedSetKey = "tickets:resolved"
)

func ticketKey(ticketID string) string { return "ticket:" + ticketID }
func activeKey(driverID string) string { return "ticket:active:" + driverID }
func leaseKey(ticketID string) string  { return "ticket:lease:" + ticketID }

// openScript is the idempotency point for escalation: the active-ticket
// pointer arbitrates concurrent opens, so at most one ACTIVE ticket per
// driver ever exists. Returns the existing ticket id, or "" when a new
// ticket was created.
var openScript = redis.NewScript(`
	local existing = redis.call("GET", KEYS[1])
	if existing then
		return existing
	end
	redis.call("SET", KEYS[1], ARGV[1])
	redis.call("HSET", KEYS[2],
		"id", ARGV[1],
		"driver_id", ARGV[2],
		"status", "OPEN",
		"intent", ARGV[3],
		"confidence", ARGV[4],
		"summary", ARGV[5],
		"created_at", ARGV[6])
	redis.call("ZADD", KEYS[3], ARGV[6], ARGV[1])
	return ""
`)

// claimScript is the exclusive hand-off: the status check and every write it
// guards (ticket fields, queue membership, claim lease, conversation owner)
// happen as one unit, so exactly one of any set of concurrent claims wins.
var claimScript = redis.NewScript(`
	local status = redis.call("HGET", KEYS[1], "status")
	if not status then
		return "NOTFOUND"
	end
	if status ~= "OPEN" then
		return "CONFLICT"
	end
	redis.call("HSET", KEYS[1], "status", "CLAIMED", "claimed_by", ARGV[1], "claimed_at", ARGV[2])
	redis.call("ZREM", KEYS[2], ARGV[4])
	redis.call("ZADD", KEYS[3], ARGV[2], ARGV[4])
	redis.call("SET", KEYS[4], ARGV[1], "EX", ARGV[3])
	redis.call("SET", KEYS[5], "agent:" .. ARGV[1])
	return "OK"
`)

// resolveScript closes the driver's active ticket, appends the terminal
// system message to the conversation log, and reverts ownership, atomically.
// Returns the resolved ticket id, or "" when the driver has no active ticket.
var resolveScript = redis.NewScript(`
	local id = redis.call("GET", KEYS[1])
	if not id then
		return ""
	end
	local tkey = "ticket:" .. id
	redis.call("HSET", tkey, "status", "RESOLVED", "resolved_at", ARGV[1])
	redis.call("ZREM", KEYS[2], id)
	redis.call("ZREM", KEYS[3], id)
	redis.call("ZADD", KEYS[4], ARGV[1], id)
	redis.call("DEL", KEYS[1])
	redis.call("DEL", "ticket:lease:" .. id)
	redis.call("SET", KEYS[5], "assistant")
	local seq = redis.call("INCR", KEYS[6])
	local msg = {}
	msg["id"] = seq
	msg["driver_id"] = ARGV[4]
	msg["sender"] = "system"
	msg["text"] = ARGV[2]
	msg["timestamp"] = ARGV[3]
	redis.call("ZADD", KEYS[7], seq, cjson.encode(msg))
	return id
`)

// releaseScript is the one sanctioned CLAIMED -> OPEN edge. The ticket keeps
// its original created_at so it rejoins the queue at its old position.
var releaseScript = redis.NewScript(`
	local status = redis.call("HGET", KEYS[1], "status")
	if not status then
		return "NOTFOUND"
	end
	if status ~= "CLAIMED" then
		return "CONFLICT"
	end
	local created = redis.call("HGET", KEYS[1], "created_at")
	redis.call("HSET", KEYS[1], "status", "OPEN")
	redis.call("HDEL", KEYS[1], "claimed_by", "claimed_at")
	redis.call("ZREM", KEYS[2], ARGV[1])
	redis.call("ZADD", KEYS[3], created, ARGV[1])
	redis.call("DEL", KEYS[4])
	redis.call("SET", KEYS[5], "assistant")
	return "OK"
`)

// heartbeatScript extends the claim lease only while the caller still holds it.
var heartbeatScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("EXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisRegistry is the production TicketRegistry.
type RedisRegistry struct {
	rdb     *redis.Client
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	sink    events.Sink
}

func NewRedisRegistry(rdb *redis.Client, config *config.Config, logger *logrus.Logger, metrics *metrics.Metrics, sink events.Sink) *RedisRegistry {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &RedisRegistry{
		rdb:     rdb,
		config:  config,
		logger:  logger,
		metrics: metrics,
		sink:    sink,
	}
}

func (r *RedisRegistry) Open(ctx context.Context, driverID, intent string, confidence float64, summary string) (models.Ticket, error) {
	start := time.Now()
	defer func() {
		r.metrics.RedisOperationDuration.WithLabelValues("ticket_open").Observe(time.Since(start).Seconds())
	}()

	if driverID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}
	if summary == "" {
		summary = "Automated escalation"
	}

	newID := uuid.New().String()
	createdAt := time.Now().UTC()

	existing, err := openScript.Run(ctx, r.rdb,
		[]string{activeKey(driverID), ticketKey(newID), openSetKey},
		newID, driverID, intent,
		strconv.FormatFloat(confidence, 'f', -1, 64),
		summary,
		strconv.FormatInt(createdAt.UnixMilli(), 10),
	).Text()
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to open ticket: %w", err)
	}

	if existing != "" {
		// An active ticket already exists; the first escalation reason wins.
		return r.Get(ctx, existing)
	}

	r.metrics.EscalationsOpened.Inc()
	r.updateOpenGauge(ctx)

	r.logger.WithFields(logrus.Fields{
		"ticket_id": newID,
		"driver_id": driverID,
		"intent":    intent,
	}).Info("Opened escalation ticket")

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeOpened,
		TicketID: newID,
		DriverID: driverID,
		Intent:   intent,
		At:       createdAt,
	})

	return models.Ticket{
		ID:         newID,
		DriverID:   driverID,
		Status:     models.StatusOpen,
		Intent:     intent,
		Confidence: confidence,
		Summary:    summary,
		CreatedAt:  createdAt,
	}, nil
}

func (r *RedisRegistry) Get(ctx context.Context, ticketID string) (models.Ticket, error) {
	fields, err := r.rdb.HGetAll(ctx, ticketKey(ticketID)).Result()
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	if len(fields) == 0 {
		return models.Ticket{}, models.ErrNotFound
	}
	return ticketFromHash(fields), nil
}

func (r *RedisRegistry) ActiveForDriver(ctx context.Context, driverID string) (models.Ticket, error) {
	ticketID, err := r.rdb.Get(ctx, activeKey(driverID)).Result()
	if err != nil {
		if err == redis.Nil {
			return models.Ticket{}, models.ErrNoActiveTicket
		}
		return models.Ticket{}, fmt.Errorf("failed to look up active ticket: %w", err)
	}
	return r.Get(ctx, ticketID)
}

func (r *RedisRegistry) List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	start := time.Now()
	defer func() {
		r.metrics.RedisOperationDuration.WithLabelValues("ticket_list").Observe(time.Since(start).Seconds())
	}()

	var ids []string
	var err error
	switch status {
	case models.StatusOpen:
		// Oldest first: fairness for the agent queue.
		ids, err = r.rdb.ZRange(ctx, openSetKey, 0, -1).Result()
	case models.StatusClaimed:
		ids, err = r.rdb.ZRange(ctx, claimedSetKey, 0, -1).Result()
	case models.StatusResolved:
		// Most recent first: review order.
		ids, err = r.rdb.ZRevRange(ctx, resolvedSetKey, 0, -1).Result()
	default:
		return nil, models.ErrInvalidInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		ticket, err := r.Get(ctx, id)
		if err != nil {
			if err == models.ErrNotFound {
				continue
			}
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

func (r *RedisRegistry) Claim(ctx context.Context, ticketID, agentID string) (models.Ticket, error) {
	start := time.Now()
	defer func() {
		r.metrics.RedisOperationDuration.WithLabelValues("ticket_claim").Observe(time.Since(start).Seconds())
	}()

	if ticketID == "" || agentID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}

	ticket, err := r.Get(ctx, ticketID)
	if err != nil {
		if err == models.ErrNotFound {
			r.metrics.TicketClaims.WithLabelValues("not_found").Inc()
		}
		return models.Ticket{}, err
	}

	claimedAt := time.Now().UTC()
	result, err := claimScript.Run(ctx, r.rdb,
		[]string{
			ticketKey(ticketID),
			openSetKey,
			claimedSetKey,
			leaseKey(ticketID),
			store.OwnerKey(ticket.DriverID),
		},
		agentID,
		strconv.FormatInt(claimedAt.UnixMilli(), 10),
		r.config.ClaimLeaseTTLSeconds,
		ticketID,
	).Text()
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to claim ticket: %w", err)
	}

	switch result {
	case "NOTFOUND":
		r.metrics.TicketClaims.WithLabelValues("not_found").Inc()
		return models.Ticket{}, models.ErrNotFound
	case "CONFLICT":
		r.metrics.TicketClaims.WithLabelValues("conflict").Inc()
		return models.Ticket{}, models.ErrAlreadyClaimed
	}

	r.metrics.TicketClaims.WithLabelValues("success").Inc()
	r.updateOpenGauge(ctx)

	r.logger.WithFields(logrus.Fields{
		"ticket_id": ticketID,
		"driver_id": ticket.DriverID,
		"agent_id":  agentID,
	}).Info("Ticket claimed")

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeClaimed,
		TicketID: ticketID,
		DriverID: ticket.DriverID,
		AgentID:  agentID,
		At:       claimedAt,
	})

	ticket.Status = models.StatusClaimed
	ticket.ClaimedBy = agentID
	ticket.ClaimedAt = claimedAt
	return ticket, nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, driverID string) (models.Ticket, error) {
	start := time.Now()
	defer func() {
		r.metrics.RedisOperationDuration.WithLabelValues("ticket_resolve").Observe(time.Since(start).Seconds())
	}()

	if driverID == "" {
		return models.Ticket{}, models.ErrInvalidInput
	}

	resolvedAt := time.Now().UTC()
	ticketID, err := resolveScript.Run(ctx, r.rdb,
		[]string{
			activeKey(driverID),
			openSetKey,
			claimedSetKey,
			resolvedSetKey,
			store.OwnerKey(driverID),
			store.SeqKey(driverID),
			store.LogKey(driverID),
		},
		strconv.FormatInt(resolvedAt.UnixMilli(), 10),
		models.SystemChatEnded,
		resolvedAt.Format(time.RFC3339Nano),
		driverID,
	).Text()
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to resolve ticket: %w", err)
	}
	if ticketID == "" {
		return models.Ticket{}, models.ErrNoActiveTicket
	}

	r.metrics.TicketResolves.Inc()
	r.metrics.MessagesAppended.WithLabelValues(string(models.RoleSystem)).Inc()
	r.updateOpenGauge(ctx)

	r.logger.WithFields(logrus.Fields{
		"ticket_id": ticketID,
		"driver_id": driverID,
	}).Info("Ticket resolved")

	ticket, err := r.Get(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeResolved,
		TicketID: ticketID,
		DriverID: driverID,
		AgentID:  ticket.ClaimedBy,
		At:       resolvedAt,
	})

	return ticket, nil
}

func (r *RedisRegistry) Release(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	start := time.Now()
	defer func() {
		r.metrics.RedisOperationDuration.WithLabelValues("ticket_release").Observe(time.Since(start).Seconds())
	}()

	ticket, err := r.Get(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}

	result, err := releaseScript.Run(ctx, r.rdb,
		[]string{
			ticketKey(ticketID),
			claimedSetKey,
			openSetKey,
			leaseKey(ticketID),
			store.OwnerKey(ticket.DriverID),
		},
		ticketID,
	).Text()
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to release ticket: %w", err)
	}

	switch result {
	case "NOTFOUND":
		return models.Ticket{}, models.ErrNotFound
	case "CONFLICT":
		return models.Ticket{}, models.ErrNoActiveTicket
	}

	r.metrics.LeaseReleases.WithLabelValues(reason).Inc()
	r.updateOpenGauge(ctx)

	r.logger.WithFields(logrus.Fields{
		"ticket_id": ticketID,
		"driver_id": ticket.DriverID,
		"agent_id":  ticket.ClaimedBy,
		"reason":    reason,
	}).Info("Ticket released back to queue")

	r.sink.Publish(ctx, events.Event{
		Type:     events.TypeReleased,
		TicketID: ticketID,
		DriverID: ticket.DriverID,
		AgentID:  ticket.ClaimedBy,
		Reason:   reason,
		At:       time.Now().UTC(),
	})

	ticket.Status = models.StatusOpen
	ticket.ClaimedBy = ""
	ticket.ClaimedAt = time.Time{}
	return ticket, nil
}

func (r *RedisRegistry) Heartbeat(ctx context.Context, ticketID, agentID string) error {
	renewed, err := heartbeatScript.Run(ctx, r.rdb,
		[]string{leaseKey(ticketID)},
		agentID, r.config.ClaimLeaseTTLSeconds,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew claim lease: %w", err)
	}
	if renewed == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *RedisRegistry) ReleaseExpired(ctx context.Context) (int, error) {
	ids, err := r.rdb.ZRange(ctx, claimedSetKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list claimed tickets: %w", err)
	}

	released := 0
	for _, id := range ids {
		alive, err := r.rdb.Exists(ctx, leaseKey(id)).Result()
		if err != nil {
			return released, fmt.Errorf("failed to check claim lease: %w", err)
		}
		if alive == 1 {
			continue
		}

		if _, err := r.Release(ctx, id, ReleaseReasonExpired); err != nil {
			// A concurrent resolve or release beat us to it.
			if err == models.ErrNotFound || err == models.ErrNoActiveTicket {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

func (r *RedisRegistry) updateOpenGauge(ctx context.Context) {
	if count, err := r.rdb.ZCard(ctx, openSetKey).Result(); err == nil {
		r.metrics.OpenTicketsCount.Set(float64(count))
	}
}

func ticketFromHash(fields map[string]string) models.Ticket {
	ticket := models.Ticket{
		ID:        fields["id"],
		DriverID:  fields["driver_id"],
		Status:    models.TicketStatus(fields["status"]),
		Intent:    fields["intent"],
		Summary:   fields["summary"],
		ClaimedBy: fields["claimed_by"],
	}
	if v, err := strconv.ParseFloat(fields["confidence"], 64); err == nil {
		ticket.Confidence = v
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		ticket.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["claimed_at"], 10, 64); err == nil {
		ticket.ClaimedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["resolved_at"], 10, 64); err == nil {
		ticket.ResolvedAt = time.UnixMilli(ms).UTC()
	}
	return ticket
}
