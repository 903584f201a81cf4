package leader

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/metrics"
)

var testMetrics = metrics.NewMetrics()

func setupElection(t *testing.T, podID string) (*goredis.Client, *Election) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   4, // Separate test database so parallel package runs do not collide
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{PodID: podID, LeaderElectionTTL: 10}
	return rdb, NewElection(rdb, cfg, logger, testMetrics)
}

func TestElection_SingleLeader(t *testing.T) {
	rdb, first := setupElection(t, "pod-1")
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	_, second := setupElection(t, "pod-2")

	first.tryAcquire(ctx)
	assert.True(t, first.IsLeader())

	// The second replica cannot take the lease while it is held.
	second.tryAcquire(ctx)
	assert.False(t, second.IsLeader())
	assert.True(t, first.IsLeader())

	// Re-acquiring while already leader renews rather than flapping.
	first.tryAcquire(ctx)
	assert.True(t, first.IsLeader())
	ttl, err := rdb.TTL(ctx, leaderKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// After a resignation the second replica wins.
	first.resign(ctx)
	assert.False(t, first.IsLeader())
	second.tryAcquire(ctx)
	assert.True(t, second.IsLeader())
}

func TestElection_IsLeaderChecksRedis(t *testing.T) {
	rdb, election := setupElection(t, "pod-1")
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	election.tryAcquire(ctx)
	require.True(t, election.IsLeader())

	// Simulate losing the lease to an expiry: local state must follow Redis.
	require.NoError(t, rdb.Del(ctx, leaderKey).Err())
	assert.False(t, election.IsLeader())
}
