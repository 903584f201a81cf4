package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"driver-support-chat/pkg/models"
)

// HTTPSource pulls messages and tickets from the server's history and ticket
// feed endpoints. It satisfies both Source and TicketSource.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *HTTPSource) ReadSince(ctx context.Context, driverID string, cursor int64) ([]models.Message, error) {
	u := fmt.Sprintf("%s/chat/history/%s", s.baseURL, url.PathEscape(driverID))
	if cursor > 0 {
		u += "?cursor=" + strconv.FormatInt(cursor, 10)
	}

	var messages []models.Message
	if err := s.getJSON(ctx, u, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *HTTPSource) List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	u := fmt.Sprintf("%s/agent/escalations?status=%s", s.baseURL, url.QueryEscape(string(status)))

	var tickets []models.Ticket
	if err := s.getJSON(ctx, u, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
