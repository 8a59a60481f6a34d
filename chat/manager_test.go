package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenaiss/conseiller-chat/models"
)

type fakeSubscription struct {
	key       string
	jeuneIDs  []string
	onUpdate  UpdateFunc
	teardowns int
}

type fakeTransport struct {
	fakeSource

	mu           sync.Mutex
	subs         []*fakeSubscription
	subscribeErr error
	seen         []string
	flagged      map[string]bool
}

func (f *fakeTransport) Subscribe(ctx context.Context, key string, jeuneIDs []string, onUpdate UpdateFunc) (func(), error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	s := &fakeSubscription{key: key, jeuneIDs: jeuneIDs, onUpdate: onUpdate}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		s.teardowns++
		f.mu.Unlock()
	}, nil
}

func (f *fakeTransport) SetSeen(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, chatID)
	return nil
}

func (f *fakeTransport) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagged == nil {
		f.flagged = map[string]bool{}
	}
	f.flagged[chatID] = flagged
	return nil
}

func (f *fakeTransport) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.NotificationKind
	for _, n := range r.notifications {
		out = append(out, n.Kind)
	}
	return out
}

type memoryStore struct {
	mu    sync.Mutex
	saved [][]models.Conversation
}

func (s *memoryStore) SaveConversations(ctx context.Context, conversations []models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, conversations)
	return nil
}

func newTestManager(t *testing.T, sound bool) (*Manager, *fakeTransport, *recordingNotifier, *memoryStore) {
	t.Helper()
	transport := &fakeTransport{fakeSource: fakeSource{creds: models.Credentials{Token: "tok", CleChiffrement: "cle"}}}
	notifier := &recordingNotifier{}
	store := &memoryStore{}
	m := NewManager(transport, StaticPreferences(sound), zerolog.Nop(), WithNotifier(notifier), WithStore(store))
	return m, transport, notifier, store
}

func TestManagerTrackAndNotify(t *testing.T) {
	m, transport, notifier, store := newTestManager(t, true)

	require.NoError(t, m.Track(context.Background(), []string{"j1", "j2"}))

	sub := transport.last()
	assert.Equal(t, "cle", sub.key)
	assert.Equal(t, []string{"j1", "j2"}, sub.jeuneIDs)

	sub.onUpdate([]models.Conversation{{ChatID: "c1", JeuneID: "j1", LastMessageContent: "a", LastMessageSentBy: models.SenderConseiller, SeenByConseiller: true}})
	assert.Empty(t, notifier.kinds())

	sub.onUpdate([]models.Conversation{{ChatID: "c1", JeuneID: "j1", LastMessageContent: "b", LastMessageSentBy: models.SenderJeune}})
	assert.Equal(t, []models.NotificationKind{models.NotificationSound, models.NotificationUnread}, notifier.kinds())
	assert.True(t, m.HasUnread())

	conversations, loaded := m.Conversations()
	assert.True(t, loaded)
	require.Len(t, conversations, 1)
	assert.Equal(t, "b", conversations[0].LastMessageContent)
	assert.Len(t, store.saved, 2)
}

func TestManagerNoSoundWhenDisabled(t *testing.T) {
	m, transport, notifier, _ := newTestManager(t, false)
	require.NoError(t, m.Track(context.Background(), []string{"j1"}))

	sub := transport.last()
	sub.onUpdate([]models.Conversation{{ChatID: "c1", LastMessageContent: "a", SeenByConseiller: true}})
	sub.onUpdate([]models.Conversation{{ChatID: "c1", LastMessageContent: "b", LastMessageSentBy: models.SenderJeune}})

	assert.Equal(t, []models.NotificationKind{models.NotificationUnread}, notifier.kinds())
}

func TestManagerRetrackTearsDownPrevious(t *testing.T) {
	m, transport, _, _ := newTestManager(t, true)

	require.NoError(t, m.Track(context.Background(), []string{"j1"}))
	first := transport.last()
	require.NoError(t, m.Track(context.Background(), []string{"j1", "j2"}))
	second := transport.last()

	assert.Equal(t, 1, first.teardowns)
	assert.Equal(t, 0, second.teardowns)
	assert.EqualValues(t, 1, transport.fetches.Load(), "credentials are fetched once per session")

	// a late callback from the old subscription is ignored
	first.onUpdate([]models.Conversation{{ChatID: "stale"}})
	conversations, loaded := m.Conversations()
	assert.False(t, loaded)
	assert.Empty(t, conversations)

	second.onUpdate([]models.Conversation{{ChatID: "fresh"}})
	conversations, _ = m.Conversations()
	assert.Equal(t, "fresh", conversations[0].ChatID)
	assert.Equal(t, []string{"j1", "j2"}, m.Tracked())
}

func TestManagerSignOut(t *testing.T) {
	m, transport, notifier, _ := newTestManager(t, true)
	require.NoError(t, m.Track(context.Background(), []string{"j1"}))
	sub := transport.last()
	sub.onUpdate([]models.Conversation{{ChatID: "c1", LastMessageContent: "a", SeenByConseiller: true}})

	m.SignOut()
	m.SignOut()

	assert.Equal(t, 1, sub.teardowns)
	sub.onUpdate([]models.Conversation{{ChatID: "c1", LastMessageContent: "b", LastMessageSentBy: models.SenderJeune}})
	assert.Empty(t, notifier.kinds())
	assert.Nil(t, m.Tracked())

	require.NoError(t, m.Track(context.Background(), []string{"j1"}))
	assert.EqualValues(t, 2, transport.fetches.Load())
}

func TestManagerSubscribeFailure(t *testing.T) {
	m, transport, _, _ := newTestManager(t, true)
	transport.subscribeErr = errors.New("permission denied")

	err := m.Track(context.Background(), []string{"j1"})

	assert.ErrorIs(t, err, transport.subscribeErr)
	assert.Nil(t, m.Tracked())
}

func TestManagerCredentialFailure(t *testing.T) {
	m, transport, _, _ := newTestManager(t, true)
	transport.fetchErr = errors.New("unauthorized")

	err := m.Track(context.Background(), []string{"j1"})

	assert.ErrorIs(t, err, transport.fetchErr)
	assert.Empty(t, transport.subs)
}

func TestManagerMarkSeenAndFlag(t *testing.T) {
	m, transport, notifier, _ := newTestManager(t, true)
	ctx := context.Background()

	assert.ErrorIs(t, m.MarkSeen(ctx, "c1"), ErrNoSession)

	require.NoError(t, m.Track(ctx, []string{"j1"}))
	t0 := time.Now()
	transport.last().onUpdate([]models.Conversation{
		{ChatID: "c1", LastMessageContent: "x", LastMessageSentAt: t0},
		{ChatID: "c2", LastMessageContent: "y", LastMessageSentAt: t0.Add(-time.Hour), SeenByConseiller: true},
	})
	require.True(t, m.HasUnread())

	require.NoError(t, m.MarkSeen(ctx, "c1"))
	assert.False(t, m.HasUnread())
	assert.Equal(t, []string{"c1"}, transport.seen)

	require.NoError(t, m.SetFlagged(ctx, "c2", true))
	conversations, _ := m.Conversations()
	assert.Equal(t, "c2", conversations[0].ChatID)
	assert.True(t, transport.flagged["c2"])

	assert.ErrorIs(t, m.SetFlagged(ctx, "missing", true), ErrUnknownConversation)
	assert.Equal(t, []models.NotificationKind{models.NotificationUnread, models.NotificationUnread}, notifier.kinds())
}

func TestLazyNotifierBuildsOnTrack(t *testing.T) {
	builds := 0
	inner := &recordingNotifier{}
	transport := &fakeTransport{fakeSource: fakeSource{creds: models.Credentials{Token: "tok"}}}
	m := NewManager(transport, StaticPreferences(true), zerolog.Nop(), WithNotifier(Lazy(func() Notifier {
		builds++
		return inner
	})))

	assert.Zero(t, builds)
	require.NoError(t, m.Track(context.Background(), []string{"j1"}))
	require.NoError(t, m.Track(context.Background(), []string{"j2"}))
	assert.Equal(t, 1, builds)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	calls := 0
	sub := newSubscription([]string{"j1"})
	sub.attach(func() { calls++ })

	delivered := 0
	update := sub.guard(func([]models.Conversation) { delivered++ })

	update(nil)
	sub.Close()
	sub.Close()
	update(nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, delivered)
	assert.False(t, sub.Alive())
}

func TestSubscriptionAttachAfterClose(t *testing.T) {
	calls := 0
	sub := newSubscription(nil)
	sub.Close()
	sub.attach(func() { calls++ })

	assert.Equal(t, 1, calls)
}

type expiringTransport struct {
	fakeTransport
	expired bool
}

func (e *expiringTransport) Subscribe(ctx context.Context, key string, jeuneIDs []string, onUpdate UpdateFunc) (func(), error) {
	if e.expired {
		e.expired = false
		return nil, ErrSessionExpired
	}
	return e.fakeTransport.Subscribe(ctx, key, jeuneIDs, onUpdate)
}

func TestManagerResignsInOnExpiredSession(t *testing.T) {
	transport := &expiringTransport{fakeTransport: fakeTransport{fakeSource: fakeSource{creds: models.Credentials{Token: "tok"}}}}
	m := NewManager(transport, StaticPreferences(true), zerolog.Nop())

	require.NoError(t, m.Track(context.Background(), []string{"j1"}))
	transport.expired = true
	require.NoError(t, m.Track(context.Background(), []string{"j1"}))

	assert.EqualValues(t, 2, transport.fetches.Load())
	assert.EqualValues(t, 2, transport.signIns.Load())
	assert.Len(t, transport.subs, 2)
}
