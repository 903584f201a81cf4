// Package arbiter is the single read-side authority on conversation
// ownership. Ownership writes happen only inside the escalation registry's
// atomic transitions; everything else (the ingress in particular) asks the
// arbiter before acting on a conversation.
package arbiter

import (
	"context"

	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/store"
)

type Arbiter struct {
	store store.ConversationStore
}

func New(st store.ConversationStore) *Arbiter {
	return &Arbiter{store: st}
}

// Owner returns the actor currently authorized to respond to the driver.
func (a *Arbiter) Owner(ctx context.Context, driverID string) (models.Owner, error) {
	return a.store.Owner(ctx, driverID)
}

// CanAssistantRespond reports whether the automated assistant may answer the
// driver. False while a human agent owns the conversation, which guarantees
// the driver never receives two simultaneous, possibly contradictory,
// responses.
func (a *Arbiter) CanAssistantRespond(ctx context.Context, driverID string) (bool, error) {
	owner, err := a.store.Owner(ctx, driverID)
	if err != nil {
		return false, err
	}
	return owner.IsAssistant(), nil
}
