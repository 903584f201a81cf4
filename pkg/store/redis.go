package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/metrics"
	"driver-support-chat/pkg/models"
)

// appendScript assigns the next per-driver id and adds the message in one
// atomic step, so a reader polling by cursor can never observe id N before a
// smaller id has been written.
var appendScript = redis.NewScript(`
	local id = redis.call("INCR", KEYS[1])
	local msg = cjson.decode(ARGV[1])
	msg["id"] = id
	redis.call("ZADD", KEYS[2], id, cjson.encode(msg))
	return id
`)

// RedisStore is the production ConversationStore.
type RedisStore struct {
	rdb     *redis.Client
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewRedisStore(rdb *redis.Client, logger *logrus.Logger, metrics *metrics.Metrics) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *RedisStore) Append(ctx context.Context, driverID string, msg models.Message) (models.Message, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("append_message").Observe(time.Since(start).Seconds())
	}()

	if driverID == "" || msg.Text == "" {
		return models.Message{}, models.ErrInvalidInput
	}

	msg.DriverID = driverID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	id, err := appendScript.Run(ctx, s.rdb, []string{SeqKey(driverID), LogKey(driverID)}, string(payload)).Int64()
	if err != nil {
		s.logger.WithError(err).WithField("driver_id", driverID).Error("Failed to append message")
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	msg.ID = id

	s.logger.WithFields(logrus.Fields{
		"driver_id": driverID,
		"sender":    msg.Sender,
		"id":        id,
	}).Debug("Appended message")

	s.metrics.MessagesAppended.WithLabelValues(string(msg.Sender)).Inc()
	return msg, nil
}

func (s *RedisStore) ReadSince(ctx context.Context, driverID string, cursor int64) ([]models.Message, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("read_since").Observe(time.Since(start).Seconds())
	}()

	raw, err := s.rdb.ZRangeByScore(ctx, LogKey(driverID), &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", cursor),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return decodeMessages(raw)
}

func (s *RedisStore) History(ctx context.Context, driverID string, limit int) ([]models.Message, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("history").Observe(time.Since(start).Seconds())
	}()

	raw, err := s.rdb.ZRange(ctx, LogKey(driverID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return decodeMessages(raw)
}

func (s *RedisStore) Owner(ctx context.Context, driverID string) (models.Owner, error) {
	val, err := s.rdb.Get(ctx, OwnerKey(driverID)).Result()
	if err != nil {
		if err == redis.Nil {
			return models.OwnerAssistant, nil
		}
		return models.Owner{}, fmt.Errorf("failed to read owner: %w", err)
	}
	return models.ParseOwner(val), nil
}

func (s *RedisStore) SetOwner(ctx context.Context, driverID string, owner models.Owner) error {
	if err := s.rdb.Set(ctx, OwnerKey(driverID), owner.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to set owner: %w", err)
	}
	return nil
}

func decodeMessages(raw []string) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(raw))
	for _, entry := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("corrupt message entry: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
