package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/arbiter"
	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/directory"
	"driver-support-chat/pkg/escalation"
	"driver-support-chat/pkg/events"
	"driver-support-chat/pkg/handlers"
	"driver-support-chat/pkg/ingress"
	"driver-support-chat/pkg/leader"
	"driver-support-chat/pkg/metrics"
	"driver-support-chat/pkg/responder"
	"driver-support-chat/pkg/store"
)

// Service wires the store, registry, sweeper, event pipeline, and HTTP
// surface together and owns their lifecycle.
type Service struct {
	config   *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	election *leader.Election
	sweeper  *escalation.Sweeper
	producer *events.Producer
	consumer *events.Consumer
	server   *http.Server
}

func NewService(rdb *goredis.Client, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) *Service {
	producer := events.NewProducer(rdb, cfg, logger, m)
	st := store.NewRedisStore(rdb, logger, m)
	registry := escalation.NewRedisRegistry(rdb, cfg, logger, m, producer)
	arb := arbiter.New(st)
	dir := directory.NewRedisDirectory(rdb)

	var rsp responder.Responder
	if cfg.ResponderURL != "" {
		rsp = responder.NewHTTPResponder(cfg.ResponderURL, logger)
	} else {
		rsp = responder.NewKeywordResponder()
	}

	in := ingress.New(st, registry, arb, rsp, logger)

	election := leader.NewElection(rdb, cfg, logger, m)
	sweeper := escalation.NewSweeper(registry, election, cfg.SweepInterval(), logger)
	consumer := events.NewConsumer(rdb, cfg, logger, m, nil)

	handler := handlers.NewHandler(cfg, logger, st, registry, in, dir, election.IsLeader)

	svc := &Service{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		election: election,
		sweeper:  sweeper,
		producer: producer,
		consumer: consumer,
	}
	svc.server = NewHTTPServer(cfg, handler, logger)
	return svc
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting driver support chat service")

	if err := s.producer.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to prepare event stream: %w", err)
	}

	s.election.Start(ctx)
	s.sweeper.Start(ctx)

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	go func() {
		s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	s.logger.WithField("pod_id", s.config.PodID).Info("Service started successfully")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping service")

	s.sweeper.Stop()
	s.election.Stop()
	s.consumer.Stop()

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
			return err
		}
	}

	s.logger.Info("Service stopped")
	return nil
}
