package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-support-chat/pkg/models"
)

type fakeTicketSource struct {
	mu      stdsync.Mutex
	tickets []models.Ticket
	fail    bool
}

func (f *fakeTicketSource) List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return nil, errors.New("registry unavailable")
	}
	out := make([]models.Ticket, len(f.tickets))
	copy(out, f.tickets)
	return out, nil
}

func (f *fakeTicketSource) set(tickets []models.Ticket, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = tickets
	f.fail = fail
}

func TestQueuePoller_SnapshotRefresh(t *testing.T) {
	source := &fakeTicketSource{}
	source.set([]models.Ticket{{ID: "t1", DriverID: "DRV001", Status: models.StatusOpen}}, false)

	var mu stdsync.Mutex
	var snapshot []models.Ticket
	q := NewQueuePoller(source, models.StatusOpen, 5*time.Millisecond, func(tickets []models.Ticket) {
		mu.Lock()
		defer mu.Unlock()
		snapshot = tickets
	}, testLogger())
	q.Start(context.Background())
	defer q.Stop()

	current := func() []models.Ticket {
		mu.Lock()
		defer mu.Unlock()
		return snapshot
	}

	require.Eventually(t, func() bool { return len(current()) == 1 }, 2*time.Second, time.Millisecond)

	source.set([]models.Ticket{
		{ID: "t1", DriverID: "DRV001", Status: models.StatusOpen},
		{ID: "t2", DriverID: "DRV002", Status: models.StatusOpen},
	}, false)

	require.Eventually(t, func() bool { return len(current()) == 2 }, 2*time.Second, time.Millisecond)
}

func TestQueuePoller_FailureKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeTicketSource{}
	source.set([]models.Ticket{{ID: "t1", Status: models.StatusOpen}}, false)

	var mu stdsync.Mutex
	var snapshot []models.Ticket
	calls := 0
	q := NewQueuePoller(source, models.StatusOpen, 5*time.Millisecond, func(tickets []models.Ticket) {
		mu.Lock()
		defer mu.Unlock()
		snapshot = tickets
		calls++
	}, testLogger())
	q.Start(context.Background())
	defer q.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, 2*time.Second, time.Millisecond)

	// While the source fails the callback does not fire, so the view keeps
	// rendering the last good snapshot.
	source.set(nil, true)
	time.Sleep(20 * time.Millisecond) // drain any in-flight poll
	mu.Lock()
	callsBefore := calls
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, callsBefore, calls)
	assert.Len(t, snapshot, 1)
	mu.Unlock()

	source.set([]models.Ticket{{ID: "t2", Status: models.StatusOpen}}, false)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshot) == 1 && snapshot[0].ID == "t2"
	}, 2*time.Second, time.Millisecond)
}
