package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/models"
)

// TicketSource is anything the queue view can pull the ticket list from.
type TicketSource interface {
	List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error)
}

// QueuePoller refreshes the agent queue view: a full OPEN-ticket snapshot on
// a fixed interval. Failures are logged and retried on the next tick; the
// previous snapshot stays rendered in the meantime.
type QueuePoller struct {
	source    TicketSource
	status    models.TicketStatus
	interval  time.Duration
	onTickets func([]models.Ticket)
	logger    *logrus.Logger
	inflight  atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewQueuePoller(source TicketSource, status models.TicketStatus, interval time.Duration, onTickets func([]models.Ticket), logger *logrus.Logger) *QueuePoller {
	return &QueuePoller{
		source:    source,
		status:    status,
		interval:  interval,
		onTickets: onTickets,
		logger:    logger,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (q *QueuePoller) Start(ctx context.Context) {
	go q.pollLoop(ctx)
}

// Stop tears the view down and waits for the loop to exit.
func (q *QueuePoller) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	<-q.done
}

func (q *QueuePoller) pollLoop(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	q.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.poll(ctx)
		}
	}
}

func (q *QueuePoller) poll(ctx context.Context) {
	if !q.inflight.CompareAndSwap(false, true) {
		q.logger.Debug("Previous queue poll still in flight, skipping tick")
		return
	}
	defer q.inflight.Store(false)

	pollCtx, cancel := context.WithTimeout(ctx, q.interval)
	defer cancel()

	tickets, err := q.source.List(pollCtx, q.status)
	if err != nil {
		q.logger.WithError(err).Warn("Queue poll failed")
		return
	}

	if q.onTickets != nil {
		q.onTickets(tickets)
	}
}
