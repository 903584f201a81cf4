// Package sync implements the pull side of the conversation protocol: every
// view (driver chat, agent chat, agent queue) holds a cursor and converges on
// the server log by polling, with no persistent connection. The server log is
// the single source of truth; views keep only a cursor and a render cache.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/models"
)

// Source is anything the poller can pull new messages from: the store
// directly, or HTTPSource against the history endpoint.
type Source interface {
	ReadSince(ctx context.Context, driverID string, cursor int64) ([]models.Message, error)
}

// PollerConfig configures one chat view's polling loop.
type PollerConfig struct {
	DriverID string
	Interval time.Duration

	// StartTime is the view's local session start. On the first successful
	// poll, messages older than it are filtered out so reconnecting to an
	// old session does not replay unrelated history. A trailing terminal
	// system message is always surfaced regardless of age.
	StartTime time.Time

	// OnMessages receives each batch of newly confirmed messages, in id
	// order, never duplicated across calls.
	OnMessages func(batch []models.Message)

	// OnTerminal fires once when the session ends; the poller stops itself.
	OnTerminal func()
}

// Poller drives one chat view. The cursor only advances on a successful
// poll, a tick is skipped while the previous poll is still in flight, and
// stopping is deterministic: after Stop returns no callback will fire again.
type Poller struct {
	source   Source
	config   PollerConfig
	logger   *logrus.Logger
	cursor   int64
	first    bool
	terminal atomic.Bool
	inflight atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewPoller(source Source, config PollerConfig, logger *logrus.Logger) *Poller {
	return &Poller{
		source: source,
		config: config,
		logger: logger,
		first:  true,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins polling until the session ends, Stop is called, or ctx is
// cancelled.
func (p *Poller) Start(ctx context.Context) {
	go p.pollLoop(ctx)
}

// Stop tears the view down and waits for the loop to exit, so the timer can
// never fire against a destroyed view.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
}

// Cursor returns the last confirmed message id.
func (p *Poller) Cursor() int64 {
	return atomic.LoadInt64(&p.cursor)
}

// Terminal reports whether the session has ended.
func (p *Poller) Terminal() bool {
	return p.terminal.Load()
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Immediate first poll so a view does not sit empty for a full interval.
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.terminal.Load() {
				return
			}
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	// Skip the tick rather than letting slow polls overlap.
	if !p.inflight.CompareAndSwap(false, true) {
		p.logger.WithField("driver_id", p.config.DriverID).Debug("Previous poll still in flight, skipping tick")
		return
	}
	defer p.inflight.Store(false)

	// Cap a single poll at one interval.
	pollCtx, cancel := context.WithTimeout(ctx, p.config.Interval)
	defer cancel()

	cursor := atomic.LoadInt64(&p.cursor)
	batch, err := p.source.ReadSince(pollCtx, p.config.DriverID, cursor)
	if err != nil {
		// Transient by definition: retry on the next tick with the same
		// cursor, never advance on failure.
		p.logger.WithError(err).WithField("driver_id", p.config.DriverID).Warn("Poll failed")
		return
	}
	if len(batch) == 0 {
		p.first = false
		return
	}

	atomic.StoreInt64(&p.cursor, batch[len(batch)-1].ID)

	visible := batch
	if p.first {
		visible = p.filterSessionStart(batch)
	}
	p.first = false

	if len(visible) > 0 && p.config.OnMessages != nil {
		p.config.OnMessages(visible)
	}

	last := batch[len(batch)-1]
	if isTerminal(last) {
		p.terminal.Store(true)
		if p.config.OnTerminal != nil {
			p.config.OnTerminal()
		}
	}
}

// filterSessionStart drops messages older than the view's local session
// start, but always keeps a trailing terminal system message: that message is
// the authoritative signal that the session ended, even when it is
// chronologically adjacent to old history.
func (p *Poller) filterSessionStart(batch []models.Message) []models.Message {
	if p.config.StartTime.IsZero() {
		return batch
	}

	visible := make([]models.Message, 0, len(batch))
	for _, msg := range batch {
		if !msg.Timestamp.Before(p.config.StartTime) {
			visible = append(visible, msg)
		}
	}

	last := batch[len(batch)-1]
	if isTerminal(last) && (len(visible) == 0 || visible[len(visible)-1].ID != last.ID) {
		visible = append(visible, last)
	}
	return visible
}

func isTerminal(msg models.Message) bool {
	return msg.Sender == models.RoleSystem && msg.Text == models.SystemChatEnded
}
