package chat

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mbenaiss/conseiller-chat/metrics"
	"github.com/mbenaiss/conseiller-chat/models"
)

// Subscription is the handle of one transport subscription. Close is
// idempotent; updates arriving after Close are dropped.
type Subscription struct {
	ID       string
	JeuneIDs []string

	mu       sync.Mutex
	teardown func()
	closed   atomic.Bool
	once     sync.Once
}

func newSubscription(jeuneIDs []string) *Subscription {
	ids := make([]string, len(jeuneIDs))
	copy(ids, jeuneIDs)
	return &Subscription{ID: uuid.NewString(), JeuneIDs: ids}
}

// attach records the transport teardown. If the subscription was closed
// while the transport was subscribing, the teardown runs immediately.
func (s *Subscription) attach(teardown func()) {
	s.mu.Lock()
	if !s.closed.Load() {
		s.teardown = teardown
		s.mu.Unlock()
		metrics.ActiveSubscriptions.Inc()
		return
	}
	s.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}

// Alive reports whether updates should still be delivered.
func (s *Subscription) Alive() bool {
	return !s.closed.Load()
}

// Close tears the transport subscription down.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		teardown := s.teardown
		s.teardown = nil
		s.mu.Unlock()

		if teardown != nil {
			teardown()
			metrics.ActiveSubscriptions.Dec()
		}
	})
}

// guard wraps fn so that calls after Close are dropped.
func (s *Subscription) guard(fn UpdateFunc) UpdateFunc {
	return func(conversations []models.Conversation) {
		if !s.Alive() {
			return
		}
		fn(conversations)
	}
}
