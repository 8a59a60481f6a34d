package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbenaiss/conseiller-chat/models"
)

func conv(id, content, sentBy string) models.Conversation {
	return models.Conversation{ChatID: id, LastMessageContent: content, LastMessageSentBy: sentBy}
}

func TestReconcileFirstLoadNeverNotifies(t *testing.T) {
	updated := []models.Conversation{
		conv("c1", "bonjour", models.SenderJeune),
		conv("c2", "", ""),
	}

	res := Reconcile(nil, updated, true)

	assert.False(t, res.ShouldNotify)
	assert.False(t, res.HasNewIncoming)
	assert.Len(t, res.Merged, 2)
}

func TestReconcileIncomingMessage(t *testing.T) {
	previous := []models.Conversation{conv("c1", "a", models.SenderConseiller)}

	tests := []struct {
		name         string
		updated      models.Conversation
		soundEnabled bool
		wantIncoming bool
		wantNotify   bool
	}{
		{
			name:         "new message from jeune",
			updated:      conv("c1", "b", models.SenderJeune),
			soundEnabled: true,
			wantIncoming: true,
			wantNotify:   true,
		},
		{
			name:         "own message echoed back",
			updated:      conv("c1", "b", models.SenderConseiller),
			soundEnabled: true,
		},
		{
			name:         "sound disabled",
			updated:      conv("c1", "b", models.SenderJeune),
			soundEnabled: false,
			wantIncoming: true,
		},
		{
			name:         "unchanged content from jeune",
			updated:      conv("c1", "a", models.SenderJeune),
			soundEnabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(previous, []models.Conversation{tt.updated}, tt.soundEnabled)
			assert.Equal(t, tt.wantIncoming, res.HasNewIncoming)
			assert.Equal(t, tt.wantNotify, res.ShouldNotify)
			if tt.wantIncoming {
				assert.Equal(t, []string{"c1"}, res.ChatIDs)
			}
		})
	}
}

func TestReconcileFlagToggleIsNotANewMessage(t *testing.T) {
	before := conv("c1", "salut", models.SenderJeune)
	after := before
	after.FlaggedByConseiller = true
	after.SeenByConseiller = true

	res := Reconcile([]models.Conversation{before}, []models.Conversation{after}, true)

	assert.False(t, res.ShouldNotify)
	assert.Equal(t, []models.Conversation{after}, res.Merged)
}

func TestReconcileMatchesByChatID(t *testing.T) {
	previous := []models.Conversation{{ChatID: "c1", JeuneID: "j1", LastMessageContent: "a", LastMessageSentBy: models.SenderJeune}}
	// same jeune, reassigned to a new conversation
	updated := []models.Conversation{{ChatID: "c2", JeuneID: "j1", LastMessageContent: "b", LastMessageSentBy: models.SenderJeune}}

	res := Reconcile(previous, updated, true)

	assert.False(t, res.ShouldNotify)
}

func TestReconcileEmptyPreviousIsNotFirstLoad(t *testing.T) {
	res := Reconcile([]models.Conversation{}, []models.Conversation{conv("c1", "a", models.SenderJeune)}, true)

	assert.False(t, res.ShouldNotify)
	assert.NotNil(t, res.Merged)
}

func TestReconcileMergedIsSorted(t *testing.T) {
	now := time.Now()
	older := models.Conversation{ChatID: "a", LastMessageSentAt: now.Add(-time.Hour)}
	newer := models.Conversation{ChatID: "b", LastMessageSentAt: now}

	res := Reconcile(nil, []models.Conversation{older, newer}, false)

	assert.Equal(t, "b", res.Merged[0].ChatID)
	assert.Equal(t, "a", res.Merged[1].ChatID)
}

func TestHasUnread(t *testing.T) {
	assert.True(t, HasUnread([]models.Conversation{{SeenByConseiller: false, LastMessageContent: "x"}}))
	assert.False(t, HasUnread([]models.Conversation{{SeenByConseiller: false, LastMessageContent: ""}}))
	assert.False(t, HasUnread([]models.Conversation{{SeenByConseiller: true, LastMessageContent: "x"}}))
	assert.False(t, HasUnread([]models.Conversation{}))
	assert.False(t, HasUnread(nil))
}
