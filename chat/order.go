package chat

import (
	"slices"
	"strings"

	"github.com/mbenaiss/conseiller-chat/models"
)

// Ordering sorts conversations for display. FlaggedFirst groups flagged
// conversations ahead of the others; within a group the most recent last
// message comes first, conversations without a timestamp come last and ties
// are broken on ChatID.
type Ordering struct {
	FlaggedFirst bool
}

// DefaultOrdering puts flagged conversations first.
var DefaultOrdering = Ordering{FlaggedFirst: true}

// Compare returns a negative number when a sorts before b.
func (o Ordering) Compare(a, b models.Conversation) int {
	if o.FlaggedFirst && a.FlaggedByConseiller != b.FlaggedByConseiller {
		if a.FlaggedByConseiller {
			return -1
		}
		return 1
	}

	aZero, bZero := a.LastMessageSentAt.IsZero(), b.LastMessageSentAt.IsZero()
	switch {
	case aZero && !bZero:
		return 1
	case !aZero && bZero:
		return -1
	case !aZero && !bZero:
		if c := b.LastMessageSentAt.Compare(a.LastMessageSentAt); c != 0 {
			return c
		}
	}

	return strings.Compare(a.ChatID, b.ChatID)
}

// Sort returns a sorted copy of conversations. The input is left untouched.
func (o Ordering) Sort(conversations []models.Conversation) []models.Conversation {
	sorted := make([]models.Conversation, len(conversations))
	copy(sorted, conversations)
	slices.SortStableFunc(sorted, o.Compare)
	return sorted
}

// SortConversations sorts with DefaultOrdering.
func SortConversations(conversations []models.Conversation) []models.Conversation {
	return DefaultOrdering.Sort(conversations)
}
