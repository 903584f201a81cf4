// Package store provides the durable per-driver conversation log and the
// denormalized ownership tag. The backing store is opaque to callers; both a
// Redis-backed and an in-memory implementation satisfy ConversationStore.
package store

import (
	"context"

	"driver-support-chat/pkg/models"
)

// ConversationStore is the narrow capability every other component mutates
// conversations through. Message ids are store-assigned and strictly
// increasing per driver; ReadSince returning an empty slice means "no new
// activity" and is distinct from an error.
type ConversationStore interface {
	// Append persists a message and returns it with its assigned id.
	Append(ctx context.Context, driverID string, msg models.Message) (models.Message, error)

	// ReadSince returns all messages with id > cursor, in id order.
	ReadSince(ctx context.Context, driverID string, cursor int64) ([]models.Message, error)

	// History returns up to limit most recent messages, in id order.
	History(ctx context.Context, driverID string, limit int) ([]models.Message, error)

	// Owner reads the current conversation owner. Sessions with no recorded
	// owner belong to the assistant.
	Owner(ctx context.Context, driverID string) (models.Owner, error)

	// SetOwner overwrites the ownership tag. Only the escalation registry's
	// atomic transitions may call this; clients never mutate ownership.
	SetOwner(ctx context.Context, driverID string, owner models.Owner) error
}

// Redis key schema. Exported so the registry's Lua scripts can touch the
// ownership tag and message log in the same atomic unit as a ticket
// transition.

// SeqKey holds the per-driver message id counter.
func SeqKey(driverID string) string { return "chat:seq:" + driverID }

// LogKey holds the message log as a sorted set scored by message id.
func LogKey(driverID string) string { return "chat:log:" + driverID }

// OwnerKey holds the ownership tag in models.Owner string form.
func OwnerKey(driverID string) string { return "chat:owner:" + driverID }
