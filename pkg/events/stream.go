package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/metrics"
)

// Producer publishes lifecycle events to the escalation event stream.
// Publishing is best effort: a failed XADD is logged and dropped, never
// surfaced to the ticket transition that triggered it.
type Producer struct {
	rdb     *redis.Client
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewProducer(rdb *redis.Client, config *config.Config, logger *logrus.Logger, metrics *metrics.Metrics) *Producer {
	return &Producer{
		rdb:     rdb,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (p *Producer) EnsureGroup(ctx context.Context) error {
	err := p.rdb.XGroupCreateMkStream(ctx, p.config.EventsStream, p.config.EventsConsumerGroup, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	p.logger.WithField("consumer_group", p.config.EventsConsumerGroup).Info("Consumer group ready")
	return nil
}

func (p *Producer) Publish(ctx context.Context, event Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal lifecycle event")
		return
	}

	streamArgs := &redis.XAddArgs{
		Stream:       p.config.EventsStream,
		MaxLenApprox: p.config.EventsMaxLen,
		Values: map[string]interface{}{
			"type":       event.Type,
			"ticket_id":  event.TicketID,
			"driver_id":  event.DriverID,
			"agent_id":   event.AgentID,
			"at":         event.At.UnixMilli(),
			"event_data": string(eventData),
		},
	}

	messageID, err := p.rdb.XAdd(ctx, streamArgs).Result()
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"type":      event.Type,
			"ticket_id": event.TicketID,
		}).Error("Failed to publish lifecycle event")
		return
	}

	p.metrics.EventsPublished.WithLabelValues(event.Type).Inc()

	p.logger.WithFields(logrus.Fields{
		"type":       event.Type,
		"ticket_id":  event.TicketID,
		"driver_id":  event.DriverID,
		"message_id": messageID,
	}).Debug("Published lifecycle event")
}
