package chat

import "github.com/mbenaiss/conseiller-chat/models"

// Result is the outcome of reconciling a pushed snapshot against the previous one.
type Result struct {
	// Merged is the full updated list, sorted.
	Merged []models.Conversation
	// HasNewIncoming reports a new message from a jeune on at least one conversation.
	HasNewIncoming bool
	// ShouldNotify is HasNewIncoming gated by the sound notification preference.
	ShouldNotify bool
	// ChatIDs lists the conversations with a new incoming message.
	ChatIDs []string
}

// Reconcile compares a new snapshot with the previous one using DefaultOrdering.
// A nil previous slice means first load and never notifies.
func Reconcile(previous, updated []models.Conversation, soundEnabled bool) Result {
	return DefaultOrdering.Reconcile(previous, updated, soundEnabled)
}

// Reconcile compares a new snapshot with the previous one and sorts it with o.
func (o Ordering) Reconcile(previous, updated []models.Conversation, soundEnabled bool) Result {
	res := Result{Merged: o.Sort(updated)}
	if previous == nil {
		return res
	}

	byChat := make(map[string]models.Conversation, len(previous))
	for _, c := range previous {
		byChat[c.ChatID] = c
	}

	for _, c := range updated {
		prev, ok := byChat[c.ChatID]
		if !ok {
			continue
		}
		if isNewIncoming(prev, c) {
			res.HasNewIncoming = true
			res.ChatIDs = append(res.ChatIDs, c.ChatID)
		}
	}

	res.ShouldNotify = res.HasNewIncoming && soundEnabled
	return res
}

func isNewIncoming(prev, next models.Conversation) bool {
	return prev.LastMessageContent != next.LastMessageContent &&
		next.LastMessageSentBy == models.SenderJeune
}

// HasUnread reports whether any conversation with at least one message has
// not been seen by the conseiller.
func HasUnread(conversations []models.Conversation) bool {
	for _, c := range conversations {
		if !c.SeenByConseiller && c.LastMessageContent != "" {
			return true
		}
	}
	return false
}
