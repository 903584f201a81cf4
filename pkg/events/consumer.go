package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/metrics"
)

// Handler processes one lifecycle event. Returning an error leaves the stream
// entry unacknowledged so another consumer can pick it up.
type Handler func(ctx context.Context, event Event) error

// Consumer reads lifecycle events from the stream through a consumer group,
// acknowledging only after the handler succeeds, and reclaims entries left
// pending by dead consumers.
type Consumer struct {
	rdb          *redis.Client
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	handler      Handler
	consumerName string
	stopCh       chan struct{}
}

func NewConsumer(rdb *redis.Client, config *config.Config, logger *logrus.Logger, metrics *metrics.Metrics, handler Handler) *Consumer {
	if handler == nil {
		handler = logHandler(logger)
	}

	return &Consumer{
		rdb:          rdb,
		config:       config,
		logger:       logger,
		metrics:      metrics,
		handler:      handler,
		consumerName: fmt.Sprintf("consumer-%s", config.PodID),
		stopCh:       make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.logger.WithField("consumer_name", c.consumerName).Info("Starting lifecycle event consumer")

	go c.consumeLoop(ctx)
	go c.pendingRecoveryLoop(ctx)

	return nil
}

func (c *Consumer) Stop() {
	close(c.stopCh)
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
			c.consumeBatch(ctx)
		}
	}
}

func (c *Consumer) consumeBatch(ctx context.Context) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.EventsConsumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.config.EventsStream, ">"},
		Count:    10,
		Block:    1 * time.Second,
	}).Result()

	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("Failed to read from event stream")
		}
		return
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.processMessage(ctx, message)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, message redis.XMessage) {
	event, err := parseEvent(message)
	if err != nil {
		c.logger.WithError(err).WithField("message_id", message.ID).Error("Failed to parse lifecycle event")
		c.metrics.EventsProcessed.WithLabelValues("parse_error").Inc()
		// Acknowledge so a malformed entry is not reprocessed forever.
		c.ack(ctx, message.ID)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"type":       event.Type,
			"ticket_id":  event.TicketID,
			"message_id": message.ID,
		}).Error("Event handler failed")
		c.metrics.EventsProcessed.WithLabelValues("handler_error").Inc()
		// Not acknowledged - pending recovery will retry it.
		return
	}

	if err := c.ack(ctx, message.ID); err != nil {
		c.logger.WithError(err).WithField("message_id", message.ID).Error("Failed to acknowledge event")
		return
	}

	c.metrics.EventsProcessed.WithLabelValues("success").Inc()
}

func parseEvent(message redis.XMessage) (Event, error) {
	raw, ok := message.Values["event_data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing event_data field")
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("invalid event_data: %w", err)
	}
	return event, nil
}

func (c *Consumer) ack(ctx context.Context, messageID string) error {
	return c.rdb.XAck(ctx, c.config.EventsStream, c.config.EventsConsumerGroup, messageID).Err()
}

func (c *Consumer) pendingRecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.processPending(ctx)
		}
	}
}

func (c *Consumer) processPending(ctx context.Context) {
	pending, err := c.rdb.XPending(ctx, c.config.EventsStream, c.config.EventsConsumerGroup).Result()
	if err != nil {
		c.logger.WithError(err).Error("Failed to get pending events")
		return
	}

	if pending.Count == 0 {
		return
	}

	c.logger.WithField("pending_count", pending.Count).Info("Reclaiming pending events")

	messages, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.config.EventsStream,
		Group:    c.config.EventsConsumerGroup,
		Consumer: c.consumerName,
		MinIdle:  1 * time.Minute,
		Count:    10,
		Start:    "0-0",
	}).Result()

	if err != nil {
		c.logger.WithError(err).Error("Failed to auto-claim pending events")
		return
	}

	for _, message := range messages {
		c.processMessage(ctx, message)
	}
}

// logHandler is the default notification path: a structured log entry per
// transition, which agent-facing alerting tails.
func logHandler(logger *logrus.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		logger.WithFields(logrus.Fields{
			"type":      event.Type,
			"ticket_id": event.TicketID,
			"driver_id": event.DriverID,
			"agent_id":  event.AgentID,
			"intent":    event.Intent,
			"reason":    event.Reason,
		}).Info("Escalation lifecycle event")
		return nil
	}
}
