package realtime

import (
	"encoding/json"
	"time"

	"github.com/mbenaiss/conseiller-chat/models"
)

// Frame types exchanged with the real-time store
const (
	frameAuth        = "auth"
	frameAuthOK      = "auth_ok"
	frameError       = "error"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSnapshot    = "snapshot"
	frameUpdate      = "update"
)

type frame struct {
	Type         string       `json:"type"`
	Token        string       `json:"token,omitempty"`
	Subscription string       `json:"subscription,omitempty"`
	JeuneIDs     []string     `json:"jeuneIds,omitempty"`
	ChatID       string       `json:"chatId,omitempty"`
	Seen         *bool        `json:"seenByConseiller,omitempty"`
	Flagged      *bool        `json:"flaggedByConseiller,omitempty"`
	Chats        []remoteChat `json:"chats,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// inbound is a frame read from the store. Chats are decoded one by one so a
// malformed chat only drops itself.
type inbound struct {
	Type         string            `json:"type"`
	Subscription string            `json:"subscription,omitempty"`
	Chats        []json.RawMessage `json:"chats,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type remoteChat struct {
	ChatID             string     `json:"chatId"`
	JeuneID            string     `json:"jeuneId"`
	FirstName          string     `json:"firstName,omitempty"`
	LastName           string     `json:"lastName,omitempty"`
	LastMessageContent string     `json:"lastMessageContent,omitempty"`
	LastMessageIV      string     `json:"lastMessageIv,omitempty"`
	LastMessageSentBy  string     `json:"lastMessageSentBy,omitempty"`
	LastMessageSentAt  *time.Time `json:"lastMessageSentAt,omitempty"`
	SeenByConseiller   *bool      `json:"seenByConseiller,omitempty"`
	Flagged            bool       `json:"flaggedByConseiller,omitempty"`
}

// toConversation maps a remote chat. Missing fields fall back to values that
// keep sorting and diffing well defined: no timestamp, seen.
func (r remoteChat) toConversation(content string) models.Conversation {
	c := models.Conversation{
		ChatID:              r.ChatID,
		JeuneID:             r.JeuneID,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		LastMessageContent:  content,
		LastMessageSentBy:   r.LastMessageSentBy,
		SeenByConseiller:    true,
		FlaggedByConseiller: r.Flagged,
	}
	if r.LastMessageSentAt != nil {
		c.LastMessageSentAt = *r.LastMessageSentAt
	}
	if r.SeenByConseiller != nil {
		c.SeenByConseiller = *r.SeenByConseiller
	}
	return c
}
