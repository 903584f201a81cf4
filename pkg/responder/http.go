package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/models"
)

// HTTPResponder calls an external classifier service. Request and response
// bodies are plain JSON; anything but a 200 is a transient failure the
// ingress surfaces to the caller.
type HTTPResponder struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

func NewHTTPResponder(url string, logger *logrus.Logger) *HTTPResponder {
	return &HTTPResponder{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (h *HTTPResponder) Respond(ctx context.Context, driverID, text string) (models.Reply, error) {
	body, err := json.Marshal(map[string]string{
		"driver_id": driverID,
		"message":   text,
	})
	if err != nil {
		return models.Reply{}, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return models.Reply{}, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return models.Reply{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Reply{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var reply models.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return models.Reply{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"driver_id":  driverID,
		"intent":     reply.Intent,
		"confidence": reply.Confidence,
		"escalate":   reply.Escalate,
	}).Debug("Classifier response")

	return reply, nil
}
