package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/models"
)

// snapshotSource returns the stored conversations of a set of jeunes
type snapshotSource interface {
	GetConversationsByJeunes(ctx context.Context, jeuneIDs []string) ([]models.Conversation, error)
}

type subscriber struct {
	jeunes   map[string]struct{}
	jeuneIDs []string
	onUpdate chat.UpdateFunc

	// held across read and delivery so snapshots arrive in read order
	mu sync.Mutex
}

// registry keeps the active subscriptions and pushes full snapshots to them
type registry struct {
	source snapshotSource
	log    zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func newRegistry(source snapshotSource, log zerolog.Logger) *registry {
	return &registry{source: source, log: log, subs: make(map[int]*subscriber)}
}

// add registers a subscription and returns its teardown
func (r *registry) add(jeuneIDs []string, onUpdate chat.UpdateFunc) (*subscriber, func()) {
	s := &subscriber{jeunes: make(map[string]struct{}, len(jeuneIDs)), onUpdate: onUpdate}
	for _, id := range jeuneIDs {
		if _, dup := s.jeunes[id]; dup {
			continue
		}
		s.jeunes[id] = struct{}{}
		s.jeuneIDs = append(s.jeuneIDs, id)
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = s
	r.mu.Unlock()

	return s, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// push sends a fresh snapshot to s
func (r *registry) push(ctx context.Context, s *subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := r.source.GetConversationsByJeunes(ctx, s.jeuneIDs)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	s.onUpdate(conversations)
	return nil
}

// pushFor sends a fresh snapshot to every subscription following jeuneID,
// or to all of them when jeuneID is empty
func (r *registry) pushFor(ctx context.Context, jeuneID string) {
	r.mu.Lock()
	targets := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		if _, ok := s.jeunes[jeuneID]; ok || jeuneID == "" {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()

	for _, s := range targets {
		if err := r.push(ctx, s); err != nil {
			r.log.Warn().Err(err).Msg("failed to push conversations")
		}
	}
}

// JIDFor maps a jeune id (phone number with or without '+', or a full JID)
// to a WhatsApp JID
func JIDFor(jeuneID string) (types.JID, error) {
	id := strings.TrimSpace(jeuneID)
	if id == "" {
		return types.JID{}, fmt.Errorf("empty jeune id")
	}
	if strings.Contains(id, "@") {
		jid, err := types.ParseJID(id)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid jeune id %q: %w", jeuneID, err)
		}
		return jid, nil
	}
	return types.NewJID(strings.TrimPrefix(id, "+"), types.DefaultUserServer), nil
}

// JeuneKey normalizes a jeune id to the phone number part of its JID
func JeuneKey(jeuneID string) (string, error) {
	jid, err := JIDFor(jeuneID)
	if err != nil {
		return "", err
	}
	return jid.User, nil
}

// applyMessage folds a new message into the conversation it belongs to.
// Messages sent by the conseiller mark the conversation as seen.
func applyMessage(prev *models.Conversation, chatID, jeuneID, pushName string, msg models.Message) models.Conversation {
	var c models.Conversation
	if prev != nil {
		c = *prev
	}
	c.ChatID = chatID
	c.JeuneID = jeuneID
	if c.FirstName == "" && msg.SentBy == models.SenderJeune {
		c.FirstName = pushName
	}

	if !c.LastMessageSentAt.IsZero() && msg.CreationDate.Before(c.LastMessageSentAt) {
		return c
	}

	c.LastMessageContent = msg.Content
	c.LastMessageSentBy = msg.SentBy
	c.LastMessageSentAt = msg.CreationDate
	c.SeenByConseiller = msg.SentBy == models.SenderConseiller
	return c
}
