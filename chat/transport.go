package chat

import (
	"context"

	"github.com/mbenaiss/conseiller-chat/models"
)

// CredentialsSource fetches transport credentials and signs in with them.
type CredentialsSource interface {
	FetchCredentials(ctx context.Context) (models.Credentials, error)
	SignIn(ctx context.Context, token string) error
}

// UpdateFunc receives every snapshot pushed for a subscription.
type UpdateFunc func(conversations []models.Conversation)

// Transport is the real-time message store the manager subscribes to.
// Subscribe returns a teardown that the caller invokes exactly once; onUpdate
// may fire any number of times until then.
type Transport interface {
	CredentialsSource
	Subscribe(ctx context.Context, encryptionKey string, jeuneIDs []string, onUpdate UpdateFunc) (func(), error)
}

// FlagWriter is implemented by transports that own the seen and flagged state.
// The next pushed snapshot reflects the change.
type FlagWriter interface {
	SetSeen(ctx context.Context, chatID string) error
	SetFlagged(ctx context.Context, chatID string, flagged bool) error
}

// Preferences exposes the conseiller profile settings the manager depends on.
type Preferences interface {
	SoundNotificationsEnabled() bool
}

// Notifier receives sound and unread notifications.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Store mirrors reconciled snapshots.
type Store interface {
	SaveConversations(ctx context.Context, conversations []models.Conversation) error
}
