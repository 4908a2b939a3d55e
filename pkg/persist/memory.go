package persist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps persisted records in process memory. It backs local
// development and tests, where no document store is available.
type MemoryStore struct {
	mu            sync.Mutex
	messages      []Message
	notifications []Notification
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MemoryStore) SaveNotification(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	s.notifications = append(s.notifications, n)
	return n, nil
}

// Messages returns a snapshot of everything saved so far.
func (s *MemoryStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *MemoryStore) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}
