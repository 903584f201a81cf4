package sync

import (
	"sync"
	"time"

	"driver-support-chat/pkg/models"
)

// EchoBuffer reconciles a view's optimistic local echoes (a just-sent message
// shown before the round trip confirms it) against the authoritative server
// log. Placeholders never carry a real id and are never merged into the log:
// once a poll returns the server-confirmed copy, the placeholder is dropped
// (replace by content match); a placeholder with no confirmed copy yet stays
// appended after the log.
type EchoBuffer struct {
	mu        sync.Mutex
	confirmed []models.Message
	pending   []models.Message
}

func NewEchoBuffer() *EchoBuffer {
	return &EchoBuffer{}
}

// Echo records an optimistic placeholder for a message the view just sent.
func (b *EchoBuffer) Echo(sender models.SenderRole, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, models.Message{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// Confirm appends a batch of server-confirmed messages and drops every
// placeholder the batch confirms.
func (b *EchoBuffer) Confirm(batch []models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.confirmed = append(b.confirmed, batch...)

	for _, msg := range batch {
		for i, ph := range b.pending {
			if ph.Sender == msg.Sender && ph.Text == msg.Text {
				b.pending = append(b.pending[:i], b.pending[i+1:]...)
				break
			}
		}
	}
}

// Render returns the view's message list: the confirmed log followed by any
// still-unconfirmed placeholders.
func (b *EchoBuffer) Render() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Message, 0, len(b.confirmed)+len(b.pending))
	out = append(out, b.confirmed...)
	out = append(out, b.pending...)
	return out
}
