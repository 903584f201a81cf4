package escalation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Leader gates the sweeper so only one replica releases expired claims.
type Leader interface {
	IsLeader() bool
}

// alwaysLeader is used in single-node deployments without leader election.
type alwaysLeader struct{}

func (alwaysLeader) IsLeader() bool { return true }

// Sweeper periodically releases CLAIMED tickets whose lease has lapsed, so an
// agent crash or disconnect cannot strand a driver with a dead owner. Released
// tickets rejoin the OPEN queue at their original position.
type Sweeper struct {
	registry TicketRegistry
	leader   Leader
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

func NewSweeper(registry TicketRegistry, leader Leader, interval time.Duration, logger *logrus.Logger) *Sweeper {
	if leader == nil {
		leader = alwaysLeader{}
	}
	return &Sweeper{
		registry: registry,
		leader:   leader,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.leader.IsLeader() {
				s.sweep(ctx)
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.registry.ReleaseExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to release expired claims")
		return
	}
	if released > 0 {
		s.logger.WithField("released_count", released).Info("Released expired claims")
	}
}
