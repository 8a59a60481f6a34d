package models

import "time"

// Sender values carried by LastMessageSentBy and Message.SentBy
const (
	SenderJeune      = "jeune"
	SenderConseiller = "conseiller"
)

// Conversation is one conseiller-to-jeune messaging thread as pushed by the transport
type Conversation struct {
	ChatID              string    `json:"chat_id"`
	JeuneID             string    `json:"jeune_id"`
	FirstName           string    `json:"first_name,omitempty"`
	LastName            string    `json:"last_name,omitempty"`
	LastMessageContent  string    `json:"last_message_content"`
	LastMessageSentBy   string    `json:"last_message_sent_by"`
	LastMessageSentAt   time.Time `json:"last_message_sent_at"`
	SeenByConseiller    bool      `json:"seen_by_conseiller"`
	FlaggedByConseiller bool      `json:"flagged_by_conseiller"`
}

// Credentials are the transport sign-in token and the message encryption key
type Credentials struct {
	Token          string `json:"token"`
	CleChiffrement string `json:"cle_chiffrement"`
}

// Attachment is a file sent along with a message
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message represents a chat message
type Message struct {
	ID           string       `json:"id"`
	ChatID       string       `json:"chat_id"`
	Content      string       `json:"content"`
	CreationDate time.Time    `json:"creation_date"`
	SentBy       string       `json:"sent_by"`
	Type         string       `json:"type"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// Jeune is a beneficiary from the conseiller's portfolio
type Jeune struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Conseiller is the case manager profile
type Conseiller struct {
	ID                   string `json:"id"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	NotificationsSonores bool   `json:"notifications_sonores"`
}

// Status represents the status of the bridge
type Status struct {
	Transport     string `json:"transport"`
	Connected     bool   `json:"connected"`
	LoggedIn      bool   `json:"logged_in"`
	Tracked       int    `json:"tracked"`
	Conversations int    `json:"conversations"`
	HasUnread     bool   `json:"has_unread"`
}

// NotificationKind distinguishes the events pushed to connected UIs
type NotificationKind string

const (
	NotificationSound  NotificationKind = "new_message"
	NotificationUnread NotificationKind = "unread"
)

// Notification is emitted by the chat manager after a reconciled snapshot
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	ChatIDs   []string         `json:"chat_ids,omitempty"`
	HasUnread bool             `json:"has_unread"`
	At        time.Time        `json:"at"`
}

// ConversationList is the reconciled conversation list served to UIs.
// EmptyState is set when there is nothing to show yet.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Loaded        bool           `json:"loaded"`
	HasUnread     bool           `json:"has_unread"`
	EmptyState    *EmptyState    `json:"empty_state,omitempty"`
}
