package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MessagesAppended       *prometheus.CounterVec
	EscalationsOpened      prometheus.Counter
	TicketClaims           *prometheus.CounterVec
	TicketResolves         prometheus.Counter
	LeaseReleases          *prometheus.CounterVec
	OpenTicketsCount       prometheus.Gauge
	RedisOperationDuration *prometheus.HistogramVec
	LeaderChanges          prometheus.Counter
	LeaderElectionDuration prometheus.Histogram
	EventsPublished        *prometheus.CounterVec
	EventsProcessed        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		MessagesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total number of messages appended to conversation logs",
		}, []string{"sender"}),
		EscalationsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escalation_tickets_opened_total",
			Help: "Total number of escalation tickets opened",
		}),
		TicketClaims: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_ticket_claims_total",
			Help: "Total number of ticket claim attempts",
		}, []string{"result"}),
		TicketResolves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escalation_tickets_resolved_total",
			Help: "Total number of tickets resolved",
		}),
		LeaseReleases: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_lease_releases_total",
			Help: "Total number of claimed tickets released back to the queue",
		}, []string{"reason"}),
		OpenTicketsCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "escalation_open_tickets",
			Help: "Current number of OPEN escalation tickets",
		}),
		RedisOperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Time taken for Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		LeaderChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_leader_changes_total",
			Help: "Total number of sweeper leader changes",
		}),
		LeaderElectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "leader_election_duration_seconds",
			Help:    "Time taken for leader election operations",
			Buckets: prometheus.DefBuckets,
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_events_published_total",
			Help: "Total number of lifecycle events published to the stream",
		}, []string{"type"}),
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_events_processed_total",
			Help: "Total number of lifecycle events consumed from the stream",
		}, []string{"status"}),
	}
}
