package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbenaiss/conseiller-chat/metrics"
	"github.com/mbenaiss/conseiller-chat/models"
)

var (
	// ErrNoSession is returned when no subscription is active.
	ErrNoSession = errors.New("no active chat session")
	// ErrUnknownConversation is returned when a chat id is not in the current snapshot.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrSessionExpired is returned by transports whose sign-in is no longer valid.
	// Track then fetches fresh credentials once and retries.
	ErrSessionExpired = errors.New("chat session expired")
)

const storeTimeout = 5 * time.Second

// StaticPreferences is a fixed sound notification preference.
type StaticPreferences bool

// SoundNotificationsEnabled implements Preferences.
func (p StaticPreferences) SoundNotificationsEnabled() bool { return bool(p) }

// Option configures a Manager.
type Option func(*Manager)

// WithStore mirrors every reconciled snapshot into s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithOrdering overrides DefaultOrdering.
func WithOrdering(o Ordering) Option {
	return func(m *Manager) { m.ordering = o }
}

// Manager owns the chat state of one conseiller session: credentials, the
// active subscription and the last reconciled conversation list.
type Manager struct {
	transport Transport
	bootstrap *Bootstrap
	prefs     Preferences
	notifier  Notifier
	store     Store
	ordering  Ordering
	log       zerolog.Logger

	mu            sync.Mutex
	sub           *Subscription
	conversations []models.Conversation
	loaded        bool
	unread        bool
}

// NewManager creates a Manager over transport.
func NewManager(transport Transport, prefs Preferences, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		bootstrap: NewBootstrap(transport),
		prefs:     prefs,
		ordering:  DefaultOrdering,
		log:       log.With().Str("component", "chat-manager").Logger(),
	}
	if m.prefs == nil {
		m.prefs = StaticPreferences(true)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track subscribes to the conversations of jeuneIDs. An existing
// subscription is closed before the new one is opened.
func (m *Manager) Track(ctx context.Context, jeuneIDs []string) error {
	if mn, ok := m.notifier.(mounter); ok {
		mn.mount()
	}

	creds, err := m.bootstrap.Ensure(ctx)
	if err != nil {
		return err
	}

	sub := newSubscription(jeuneIDs)

	m.mu.Lock()
	previous := m.sub
	m.sub = sub
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
		m.log.Debug().Str("subscription", previous.ID).Msg("closed previous subscription")
	}

	onUpdate := sub.guard(func(conversations []models.Conversation) {
		m.apply(sub, conversations)
	})
	teardown, err := m.transport.Subscribe(ctx, creds.CleChiffrement, sub.JeuneIDs, onUpdate)
	if errors.Is(err, ErrSessionExpired) {
		m.log.Info().Msg("chat session expired, signing in again")
		m.bootstrap.Reset()
		if creds, err = m.bootstrap.Ensure(ctx); err == nil {
			teardown, err = m.transport.Subscribe(ctx, creds.CleChiffrement, sub.JeuneIDs, onUpdate)
		}
	}
	if err != nil {
		m.mu.Lock()
		if m.sub == sub {
			m.sub = nil
		}
		m.mu.Unlock()
		sub.Close()
		return fmt.Errorf("failed to subscribe to conversations: %w", err)
	}
	sub.attach(teardown)

	m.log.Info().
		Str("subscription", sub.ID).
		Int("jeunes", len(sub.JeuneIDs)).
		Msg("subscribed to conversations")

	return nil
}

// Tracked returns the jeune ids of the active subscription.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return nil
	}
	ids := make([]string, len(m.sub.JeuneIDs))
	copy(ids, m.sub.JeuneIDs)
	return ids
}

// Conversations returns a copy of the last reconciled list and whether a
// snapshot has been received yet.
func (m *Manager) Conversations() ([]models.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Conversation, len(m.conversations))
	copy(out, m.conversations)
	return out, m.loaded
}

// HasUnread reports the unread state of the last snapshot.
func (m *Manager) HasUnread() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread
}

// MarkSeen flags a conversation as seen locally, then asks the transport to
// persist it when it can.
func (m *Manager) MarkSeen(ctx context.Context, chatID string) error {
	if err := m.update(ctx, chatID, func(c *models.Conversation) { c.SeenByConseiller = true }); err != nil {
		return err
	}
	if fw, ok := m.transport.(FlagWriter); ok {
		if err := fw.SetSeen(ctx, chatID); err != nil {
			return fmt.Errorf("failed to mark conversation %s as seen: %w", chatID, err)
		}
	}
	return nil
}

// SetFlagged toggles the conseiller flag locally, then on the transport.
func (m *Manager) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	if err := m.update(ctx, chatID, func(c *models.Conversation) { c.FlaggedByConseiller = flagged }); err != nil {
		return err
	}
	if fw, ok := m.transport.(FlagWriter); ok {
		if err := fw.SetFlagged(ctx, chatID, flagged); err != nil {
			return fmt.Errorf("failed to flag conversation %s: %w", chatID, err)
		}
	}
	return nil
}

// SignOut closes the subscription and forgets the session state.
func (m *Manager) SignOut() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.conversations = nil
	m.loaded = false
	m.unread = false
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	m.bootstrap.Reset()
	metrics.RecordSnapshot(0, false)
	m.log.Info().Msg("chat session signed out")
}

func (m *Manager) apply(sub *Subscription, updated []models.Conversation) {
	m.mu.Lock()
	if m.sub != sub || !sub.Alive() {
		m.mu.Unlock()
		metrics.SnapshotsDropped.Inc()
		return
	}

	var previous []models.Conversation
	if m.loaded {
		previous = m.conversations
	}
	res := m.ordering.Reconcile(previous, updated, m.prefs.SoundNotificationsEnabled())
	unread := HasUnread(res.Merged)
	unreadChanged := unread != m.unread

	m.conversations = res.Merged
	m.loaded = true
	m.unread = unread
	m.mu.Unlock()

	metrics.RecordSnapshot(len(res.Merged), unread)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	m.save(ctx, res.Merged)

	if res.ShouldNotify {
		m.notify(ctx, models.Notification{Kind: models.NotificationSound, ChatIDs: res.ChatIDs, HasUnread: unread})
	}
	if unreadChanged {
		m.notify(ctx, models.Notification{Kind: models.NotificationUnread, HasUnread: unread})
	}
}

func (m *Manager) update(ctx context.Context, chatID string, fn func(*models.Conversation)) error {
	m.mu.Lock()
	if m.sub == nil {
		m.mu.Unlock()
		return ErrNoSession
	}

	idx := -1
	for i, c := range m.conversations {
		if c.ChatID == chatID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, chatID)
	}

	next := make([]models.Conversation, len(m.conversations))
	copy(next, m.conversations)
	fn(&next[idx])
	next = m.ordering.Sort(next)

	unread := HasUnread(next)
	unreadChanged := unread != m.unread
	m.conversations = next
	m.unread = unread
	m.mu.Unlock()

	m.save(ctx, next)
	if unreadChanged {
		m.notify(ctx, models.Notification{Kind: models.NotificationUnread, HasUnread: unread})
	}
	return nil
}

func (m *Manager) save(ctx context.Context, conversations []models.Conversation) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveConversations(ctx, conversations); err != nil {
		m.log.Warn().Err(err).Msg("failed to mirror conversations")
	}
}

func (m *Manager) notify(ctx context.Context, n models.Notification) {
	if m.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	metrics.Notifications.WithLabelValues(string(n.Kind)).Inc()
	m.notifier.Notify(ctx, n)
}
