package whatsapp

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenaiss/conseiller-chat/db"
	"github.com/mbenaiss/conseiller-chat/models"
)

func TestJIDFor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "33612345678", want: "33612345678@s.whatsapp.net"},
		{in: "+33612345678", want: "33612345678@s.whatsapp.net"},
		{in: " 33612345678@s.whatsapp.net ", want: "33612345678@s.whatsapp.net"},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			jid, err := JIDFor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, jid.String())
		})
	}

	key, err := JeuneKey("+33612345678")
	require.NoError(t, err)
	assert.Equal(t, "33612345678", key)
}

func TestApplyMessage(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	c := applyMessage(nil, "33611@s.whatsapp.net", "33611", "Kenji", models.Message{
		Content: "bonjour", CreationDate: t0, SentBy: models.SenderJeune,
	})
	assert.Equal(t, "Kenji", c.FirstName)
	assert.Equal(t, "bonjour", c.LastMessageContent)
	assert.False(t, c.SeenByConseiller)

	c.FlaggedByConseiller = true
	reply := applyMessage(&c, c.ChatID, c.JeuneID, "", models.Message{
		Content: "salut", CreationDate: t0.Add(time.Minute), SentBy: models.SenderConseiller,
	})
	assert.Equal(t, "salut", reply.LastMessageContent)
	assert.True(t, reply.SeenByConseiller)
	assert.True(t, reply.FlaggedByConseiller)
	assert.Equal(t, "Kenji", reply.FirstName)

	older := applyMessage(&reply, c.ChatID, c.JeuneID, "", models.Message{
		Content: "ancien", CreationDate: t0.Add(-time.Hour), SentBy: models.SenderJeune,
	})
	assert.Equal(t, "salut", older.LastMessageContent, "older history does not replace the last message")
}

func TestRegistryPushesToFollowers(t *testing.T) {
	ctx := context.Background()
	store, err := db.NewDB(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.StoreConversation(ctx, models.Conversation{ChatID: "a@s.whatsapp.net", JeuneID: "a", LastMessageContent: "x"}))
	require.NoError(t, store.StoreConversation(ctx, models.Conversation{ChatID: "b@s.whatsapp.net", JeuneID: "b", LastMessageContent: "y"}))

	r := newRegistry(store, zerolog.Nop())

	var got [][]models.Conversation
	s, teardown := r.add([]string{"a", "a"}, func(c []models.Conversation) { got = append(got, c) })
	assert.Equal(t, []string{"a"}, s.jeuneIDs)

	require.NoError(t, r.push(ctx, s))
	r.pushFor(ctx, "b")
	r.pushFor(ctx, "a")
	r.pushFor(ctx, "")

	require.Len(t, got, 3)
	require.Len(t, got[0], 1)
	assert.Equal(t, "a@s.whatsapp.net", got[0][0].ChatID)

	teardown()
	teardown()
	r.pushFor(ctx, "a")
	assert.Len(t, got, 3)
}

type versionedSource struct {
	reads   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (v *versionedSource) GetConversationsByJeunes(ctx context.Context, jeuneIDs []string) ([]models.Conversation, error) {
	n := v.reads.Add(1)
	if n == 1 {
		close(v.started)
		<-v.release
	}
	return []models.Conversation{{ChatID: "a@s.whatsapp.net", JeuneID: "a", LastMessageContent: strconv.Itoa(int(n))}}, nil
}

func TestRegistryDeliversInReadOrder(t *testing.T) {
	ctx := context.Background()
	src := &versionedSource{started: make(chan struct{}), release: make(chan struct{})}
	r := newRegistry(src, zerolog.Nop())

	var mu sync.Mutex
	var got []string
	r.add([]string{"a"}, func(c []models.Conversation) {
		mu.Lock()
		got = append(got, c[0].LastMessageContent)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.pushFor(ctx, "a")
	}()
	<-src.started
	go func() {
		defer wg.Done()
		r.pushFor(ctx, "a")
	}()
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, []string{"1", "2"}, got, "the latest read is delivered last")
}
