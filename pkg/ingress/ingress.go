// Package ingress is the single entry point for new conversation messages.
// It appends the inbound message, lets the assistant answer when it still
// owns the conversation, and opens an escalation ticket when the classifier
// asks for one.
package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/arbiter"
	"driver-support-chat/pkg/escalation"
	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/responder"
	"driver-support-chat/pkg/store"
)

type Ingress struct {
	store     store.ConversationStore
	registry  escalation.TicketRegistry
	arbiter   *arbiter.Arbiter
	responder responder.Responder
	logger    *logrus.Logger
}

func New(st store.ConversationStore, registry escalation.TicketRegistry, arb *arbiter.Arbiter, rsp responder.Responder, logger *logrus.Logger) *Ingress {
	return &Ingress{
		store:     st,
		registry:  registry,
		arbiter:   arb,
		responder: rsp,
		logger:    logger,
	}
}

// Submit appends a message to the driver's conversation. For driver messages
// while the assistant owns the session it also produces the assistant reply
// (returned second, nil otherwise). Agent and system messages never trigger
// the assistant.
//
// The append and the escalation are independent idempotent steps: if the call
// fails partway, resubmitting the same text is safe because ticket creation
// is create-if-absent-active.
func (in *Ingress) Submit(ctx context.Context, driverID string, role models.SenderRole, text string) (models.Message, *models.Message, error) {
	text = strings.TrimSpace(text)
	if driverID == "" || text == "" || !models.ValidSenderRole(role) {
		return models.Message{}, nil, models.ErrInvalidInput
	}

	inbound, err := in.store.Append(ctx, driverID, models.Message{
		Sender: role,
		Text:   text,
	})
	if err != nil {
		return models.Message{}, nil, err
	}

	if role != models.RoleDriver {
		return inbound, nil, nil
	}

	canRespond, err := in.arbiter.CanAssistantRespond(ctx, driverID)
	if err != nil {
		return inbound, nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !canRespond {
		// A human agent owns the conversation; the assistant stays silent.
		in.logger.WithField("driver_id", driverID).Debug("Agent owns session, skipping assistant")
		return inbound, nil, nil
	}

	reply, err := in.responder.Respond(ctx, driverID, text)
	if err != nil {
		return inbound, nil, fmt.Errorf("responder failed: %w", err)
	}

	if reply.Escalate {
		// The ticket must be queue-visible before the driver sees the
		// escalation notice, so an agent can pick it up immediately.
		if _, err := in.registry.Open(ctx, driverID, reply.Intent, reply.Confidence, reply.Text); err != nil {
			return inbound, nil, fmt.Errorf("failed to open escalation: %w", err)
		}
	}

	assistant, err := in.store.Append(ctx, driverID, models.Message{
		Sender:     models.RoleAssistant,
		Text:       reply.Text,
		Intent:     reply.Intent,
		Confidence: reply.Confidence,
		Escalate:   reply.Escalate,
	})
	if err != nil {
		return inbound, nil, fmt.Errorf("failed to append assistant reply: %w", err)
	}

	in.logger.WithFields(logrus.Fields{
		"driver_id":  driverID,
		"intent":     reply.Intent,
		"confidence": reply.Confidence,
		"escalate":   reply.Escalate,
	}).Debug("Assistant replied")

	return inbound, &assistant, nil
}
