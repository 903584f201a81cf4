package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/metrics"
	redisClient "driver-support-chat/pkg/redis"
	"driver-support-chat/pkg/server"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithField("pod_id", cfg.PodID).Info("Starting driver support chat service")

	m := metrics.NewMetrics()

	redisConfig := redisClient.DefaultConnectionConfig()
	redisConfig.URL = cfg.RedisURL

	rdb, err := redisClient.NewClient(redisConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rdb.Close()

	service := server.NewService(rdb.Raw(), cfg, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := service.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during service shutdown")
	}

	logger.Info("Service shutdown complete")
}
