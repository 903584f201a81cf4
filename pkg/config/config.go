package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	RedisURL             string
	Port                 string
	PodID                string
	LogLevel             string
	ChatPollIntervalMS   int64
	QueuePollIntervalMS  int64
	ClaimLeaseTTLSeconds int
	SweepIntervalMS      int64
	LeaderElectionTTL    int
	HistoryLimit         int
	ResponderURL         string
	EventsStream         string
	EventsConsumerGroup  string
	EventsMaxLen         int64
}

func Load() *Config {
	config := &Config{
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		Port:                 getEnv("PORT", "8000"),
		PodID:                getEnv("POD_ID", generatePodID()),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ChatPollIntervalMS:   getEnvInt64("CHAT_POLL_INTERVAL_MS", 3000),
		QueuePollIntervalMS:  getEnvInt64("QUEUE_POLL_INTERVAL_MS", 5000),
		ClaimLeaseTTLSeconds: getEnvInt("CLAIM_LEASE_TTL_SECONDS", 120),
		SweepIntervalMS:      getEnvInt64("SWEEP_INTERVAL_MS", 5000),
		LeaderElectionTTL:    getEnvInt("LEADER_ELECTION_TTL", 10),
		HistoryLimit:         getEnvInt("HISTORY_LIMIT", 50),
		ResponderURL:         getEnv("RESPONDER_URL", ""),
		EventsStream:         getEnv("EVENTS_STREAM", "escalation_events"),
		EventsConsumerGroup:  getEnv("EVENTS_CONSUMER_GROUP", "escalation-notifiers"),
		EventsMaxLen:         getEnvInt64("EVENTS_MAX_LEN", 10000),
	}

	return config
}

// ChatPollInterval is the cadence of driver and agent chat view polls.
func (c *Config) ChatPollInterval() time.Duration {
	return time.Duration(c.ChatPollIntervalMS) * time.Millisecond
}

// QueuePollInterval is the cadence of the agent queue view refresh.
func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.QueuePollIntervalMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

func (c *Config) ClaimLeaseTTL() time.Duration {
	return time.Duration(c.ClaimLeaseTTLSeconds) * time.Second
}

func (c *Config) LeaderElectionTTLDuration() time.Duration {
	return time.Duration(c.LeaderElectionTTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func generatePodID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname + "-" + uuid.New().String()[:8]
}
