// Package leader elects a single replica to run maintenance work (the claim
// lease sweeper). Election is a Redis key with NX semantics plus Lua
// renew/resign scripts, held for a short TTL.
package leader

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/metrics"
)

const leaderKey = "sweeper:leader"

type Election struct {
	rdb      *redis.Client
	config   *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	isLeader bool
	stopCh   chan struct{}
}

func NewElection(rdb *redis.Client, config *config.Config, logger *logrus.Logger, metrics *metrics.Metrics) *Election {
	return &Election{
		rdb:     rdb,
		config:  config,
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
	}
}

func (e *Election) Start(ctx context.Context) {
	e.logger.Info("Starting leader election")
	go e.electionLoop(ctx)
}

func (e *Election) Stop() {
	close(e.stopCh)
	if e.isLeader {
		e.resign(context.Background())
	}
}

// IsLeader verifies leadership against Redis rather than trusting local state,
// so a replica that lost its lease stops acting as leader immediately.
func (e *Election) IsLeader() bool {
	ctx := context.Background()
	currentLeader, err := e.rdb.Get(ctx, leaderKey).Result()
	if err != nil {
		e.isLeader = false
		return false
	}

	actual := currentLeader == e.config.PodID
	if e.isLeader != actual {
		e.isLeader = actual
		if actual {
			e.logger.Info("Confirmed leadership")
		} else {
			e.logger.Info("Leadership lost")
		}
	}
	return e.isLeader
}

func (e *Election) electionLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tryAcquire(ctx)
		}
	}
}

func (e *Election) tryAcquire(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.LeaderElectionDuration.Observe(time.Since(start).Seconds())
	}()

	result := e.rdb.SetArgs(ctx, leaderKey, e.config.PodID, redis.SetArgs{
		Mode: "NX",
		TTL:  e.config.LeaderElectionTTLDuration(),
	})

	err := result.Err()
	if err == redis.Nil {
		// Someone holds the key. If it is us, extend the lease; otherwise
		// make sure we are not still acting as leader.
		currentLeader, getErr := e.rdb.Get(ctx, leaderKey).Result()
		if getErr == nil && currentLeader == e.config.PodID {
			e.renew(ctx)
			return
		}
		if e.isLeader {
			e.logger.Info("Lost leadership")
			e.isLeader = false
		}
		return
	}
	if err != nil {
		e.logger.WithError(err).Error("Failed to attempt leader election")
		return
	}

	if !e.isLeader {
		e.logger.Info("Became leader")
		e.metrics.LeaderChanges.Inc()
		e.isLeader = true
	}
}

func (e *Election) renew(ctx context.Context) {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("EXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	result := e.rdb.Eval(ctx, script, []string{leaderKey}, e.config.PodID, e.config.LeaderElectionTTL)
	if result.Err() != nil {
		e.logger.WithError(result.Err()).Error("Failed to renew leadership")
		e.isLeader = false
		return
	}

	if result.Val().(int64) == 0 {
		e.logger.Warn("Leadership renewal failed - no longer leader")
		e.isLeader = false
	}
}

func (e *Election) resign(ctx context.Context) {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

	result := e.rdb.Eval(ctx, script, []string{leaderKey}, e.config.PodID)
	if result.Err() != nil {
		e.logger.WithError(result.Err()).Error("Failed to resign leadership")
	} else {
		e.logger.Info("Resigned leadership")
	}
	e.isLeader = false
}
