package store

import (
	"context"
	"sync"
	"time"

	"driver-support-chat/pkg/models"
)

// MemoryStore is an in-process ConversationStore with the same semantics as
// the Redis implementation. Used in tests and as a single-node fallback.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	seq      int64
	messages []models.Message
	owner    models.Owner
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*session)}
}

func (s *MemoryStore) Append(ctx context.Context, driverID string, msg models.Message) (models.Message, error) {
	if driverID == "" || msg.Text == "" {
		return models.Message{}, models.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(driverID)
	sess.seq++
	msg.ID = sess.seq
	msg.DriverID = driverID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	sess.messages = append(sess.messages, msg)
	return msg, nil
}

func (s *MemoryStore) ReadSince(ctx context.Context, driverID string, cursor int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[driverID]
	if !ok {
		return []models.Message{}, nil
	}

	out := make([]models.Message, 0)
	for _, msg := range sess.messages {
		if msg.ID > cursor {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) History(ctx context.Context, driverID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[driverID]
	if !ok {
		return []models.Message{}, nil
	}

	msgs := sess.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Owner(ctx context.Context, driverID string) (models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[driverID]
	if !ok {
		return models.OwnerAssistant, nil
	}
	return sess.owner, nil
}

func (s *MemoryStore) SetOwner(ctx context.Context, driverID string, owner models.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session(driverID).owner = owner
	return nil
}

// session returns the record for a driver, creating it on first use. Caller
// must hold the write lock.
func (s *MemoryStore) session(driverID string) *session {
	sess, ok := s.sessions[driverID]
	if !ok {
		sess = &session{owner: models.OwnerAssistant}
		s.sessions[driverID] = sess
	}
	return sess
}
