package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driver-support-chat/pkg/arbiter"
	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/directory"
	"driver-support-chat/pkg/escalation"
	"driver-support-chat/pkg/handlers"
	"driver-support-chat/pkg/ingress"
	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/server"
	"driver-support-chat/pkg/store"
	syncpkg "driver-support-chat/pkg/sync"
)

// scriptedResponder answers with the first reply whose key is a substring of
// the driver message, falling back to a harmless non-escalating answer.
type scriptedResponder struct {
	replies map[string]models.Reply
}

func (s scriptedResponder) Respond(ctx context.Context, driverID, text string) (models.Reply, error) {
	lower := strings.ToLower(text)
	for key, reply := range s.replies {
		if strings.Contains(lower, key) {
			return reply, nil
		}
	}
	return models.Reply{Text: "Happy to help with that.", Intent: "subscription", Confidence: 0.8}, nil
}

type testEnv struct {
	server   *httptest.Server
	store    *store.MemoryStore
	registry *escalation.MemoryRegistry
}

func newTestEnv(t *testing.T, replies map[string]models.Reply) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{Port: "0", HistoryLimit: 50}

	st := store.NewMemoryStore()
	registry := escalation.NewMemoryRegistry(st, time.Minute, nil)
	arb := arbiter.New(st)
	in := ingress.New(st, registry, arb, scriptedResponder{replies: replies}, logger)

	dir := directory.NewMemoryDirectory()
	require.NoError(t, dir.Register(context.Background(), models.Driver{
		DriverID: "DRV003",
		Name:     "Asha",
		Phone:    "+91 99887 76655",
	}))

	handler := handlers.NewHandler(cfg, logger, st, registry, in, dir, nil)
	srv := httptest.NewServer(server.NewHTTPServer(cfg, handler, logger).Handler)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: st, registry: registry}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (e *testEnv) getJSON(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestEscalationLifecycle(t *testing.T) {
	env := newTestEnv(t, map[string]models.Reply{
		"card isn't charging": {
			Text:       "I'm sorry about the billing trouble. Connecting you to an agent.",
			Intent:     "billing_issue",
			Confidence: 0.42,
			Escalate:   true,
		},
	})

	// Driver message escalates.
	resp, body := env.post(t, "/chat", map[string]string{
		"driver_id": "DRV003",
		"message":   "my card isn't charging and I was billed twice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "billing_issue", body["intent"])
	assert.Equal(t, true, body["escalate"])
	assert.Equal(t, false, body["live_mode"])

	// Ticket is visible in the agent queue.
	var open []models.Ticket
	env.getJSON(t, "/agent/escalations", &open)
	require.Len(t, open, 1)
	ticket := open[0]
	assert.Equal(t, "DRV003", ticket.DriverID)
	assert.Equal(t, "billing_issue", ticket.Intent)
	assert.Equal(t, models.StatusOpen, ticket.Status)

	// First claim wins; second gets a conflict.
	resp, _ = env.post(t, "/agent/claim", map[string]string{"ticket_id": ticket.ID, "agent_id": "A1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.post(t, "/agent/claim", map[string]string{"ticket_id": ticket.ID, "agent_id": "A2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_claimed", body["error"])

	// With an agent in charge the driver goes into live mode.
	resp, body = env.post(t, "/chat", map[string]string{
		"driver_id": "DRV003",
		"message":   "is anyone there?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "live_chat", body["intent"])
	assert.Equal(t, true, body["live_mode"])

	// Agent replies; the driver sees it on the next history poll.
	resp, body = env.post(t, "/agent/message", map[string]string{
		"driver_id": "DRV003",
		"agent_id":  "A1",
		"message":   "Hi, this is A1. Checking your billing now.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agentMsgID := int64(body["message_id"].(float64))

	var since []models.Message
	env.getJSON(t, fmt.Sprintf("/chat/history/DRV003?cursor=%d", agentMsgID-1), &since)
	require.Len(t, since, 1)
	assert.Equal(t, models.RoleAgent, since[0].Sender)

	// Resolve ends the session with the terminal system message and hands
	// the conversation back to the assistant.
	resp, _ = env.post(t, "/agent/resolve", map[string]string{"driver_id": "DRV003"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []models.Message
	env.getJSON(t, "/chat/history/DRV003", &history)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, models.RoleSystem, last.Sender)
	assert.Equal(t, models.SystemChatEnded, last.Text)

	owner, err := env.store.Owner(context.Background(), "DRV003")
	require.NoError(t, err)
	assert.True(t, owner.IsAssistant())

	// Resolving again is a 404: no active ticket remains.
	resp, body = env.post(t, "/agent/resolve", map[string]string{"driver_id": "DRV003"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_active_ticket", body["error"])
}

func TestReleaseReturnsTicketToQueue(t *testing.T) {
	env := newTestEnv(t, map[string]models.Reply{
		"smoke": {Text: "Connecting you to an agent.", Intent: "emergency", Confidence: 0.95, Escalate: true},
	})

	env.post(t, "/chat", map[string]string{"driver_id": "DRV003", "message": "smoke from the swap dock"})

	var open []models.Ticket
	env.getJSON(t, "/agent/escalations", &open)
	require.Len(t, open, 1)

	resp, _ := env.post(t, "/agent/claim", map[string]string{"ticket_id": open[0].ID, "agent_id": "A1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.post(t, "/agent/release", map[string]string{"ticket_id": open[0].ID, "agent_id": "A1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	env.getJSON(t, "/agent/escalations", &open)
	require.Len(t, open, 1)
	assert.Equal(t, models.StatusOpen, open[0].Status)
	assert.Empty(t, open[0].ClaimedBy)
}

func TestValidateDriverAndPhone(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.post(t, "/validate-driver", map[string]string{"driver_id": "DRV003"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = env.post(t, "/validate-driver", map[string]string{"driver_id": "DRV999"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["valid"])

	resp, body = env.post(t, "/validate-phone", map[string]string{"phone": "9988776655"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DRV003", body["driver_id"])

	resp, _ = env.post(t, "/validate-phone", map[string]string{"phone": "1112223334"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.post(t, "/chat", map[string]string{"driver_id": "DRV003", "message": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", body["error"])

	resp, body = env.post(t, "/agent/claim", map[string]string{"ticket_id": "no-such-ticket", "agent_id": "A1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, body = env.post(t, "/agent/heartbeat", map[string]string{"ticket_id": "no-such-ticket", "agent_id": "A1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, map[string]models.Reply{
		"smoke": {Text: "Connecting you to an agent.", Intent: "emergency", Confidence: 0.95, Escalate: true},
	})

	env.post(t, "/chat", map[string]string{"driver_id": "DRV003", "message": "smoke everywhere"})

	var health map[string]interface{}
	resp := env.getJSON(t, "/health", &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["open_tickets"])

	var status map[string]interface{}
	resp = env.getJSON(t, "/status", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), status["open_tickets"])
	assert.Equal(t, float64(0), status["claimed_tickets"])
}

// A real poller against the HTTP surface: the driver view converges on the
// log and stops at the terminal message.
func TestPollerAgainstHTTPServer(t *testing.T) {
	env := newTestEnv(t, map[string]models.Reply{
		"smoke": {Text: "Connecting you to an agent.", Intent: "emergency", Confidence: 0.95, Escalate: true},
	})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	env.post(t, "/chat", map[string]string{"driver_id": "DRV003", "message": "smoke from the battery"})

	var seen []models.Message
	done := make(chan struct{})
	poller := syncpkg.NewPoller(syncpkg.NewHTTPSource(env.server.URL), syncpkg.PollerConfig{
		DriverID:   "DRV003",
		Interval:   10 * time.Millisecond,
		OnMessages: func(batch []models.Message) { seen = append(seen, batch...) },
		OnTerminal: func() { close(done) },
	}, logger)
	poller.Start(context.Background())
	defer poller.Stop()

	require.Eventually(t, func() bool { return poller.Cursor() >= 2 }, 2*time.Second, 5*time.Millisecond)

	var open []models.Ticket
	env.getJSON(t, "/agent/escalations", &open)
	require.Len(t, open, 1)
	env.post(t, "/agent/claim", map[string]string{"ticket_id": open[0].ID, "agent_id": "A1"})
	env.post(t, "/agent/message", map[string]string{"driver_id": "DRV003", "agent_id": "A1", "message": "On it."})
	env.post(t, "/agent/resolve", map[string]string{"driver_id": "DRV003"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never saw the terminal message")
	}

	require.Len(t, seen, 4)
	ids := make([]int64, len(seen))
	for i, m := range seen {
		ids[i] = m.ID
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
	assert.Equal(t, models.SystemChatEnded, seen[len(seen)-1].Text)
}
