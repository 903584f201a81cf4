package store

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-support-chat/pkg/metrics"
	"driver-support-chat/pkg/models"
)

var testMetrics = metrics.NewMetrics()

func setupTestRedis(t *testing.T) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use test database
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)
	return rdb
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func TestRedisStore_AppendAndReadSince(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	s := NewRedisStore(rdb, testLogger(), testMetrics)
	ctx := context.Background()

	first, err := s.Append(ctx, "DRV001", models.Message{Sender: models.RoleDriver, Text: "my battery is stuck"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	second, err := s.Append(ctx, "DRV001", models.Message{Sender: models.RoleAssistant, Text: "let me check"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	batch, err := s.ReadSince(ctx, "DRV001", 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "my battery is stuck", batch[0].Text)
	assert.Equal(t, models.RoleAssistant, batch[1].Sender)

	batch, err = s.ReadSince(ctx, "DRV001", first.ID)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, second.ID, batch[0].ID)

	batch, err = s.ReadSince(ctx, "DRV001", second.ID)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestRedisStore_Owner(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	s := NewRedisStore(rdb, testLogger(), testMetrics)
	ctx := context.Background()

	owner, err := s.Owner(ctx, "DRV001")
	require.NoError(t, err)
	assert.True(t, owner.IsAssistant())

	require.NoError(t, s.SetOwner(ctx, "DRV001", models.OwnerAgent("A1")))

	owner, err = s.Owner(ctx, "DRV001")
	require.NoError(t, err)
	assert.Equal(t, models.OwnerAgent("A1"), owner)
}
