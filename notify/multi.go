package notify

import (
	"context"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/models"
)

type multi []chat.Notifier

// Multi forwards every notification to each of notifiers in order.
func Multi(notifiers ...chat.Notifier) chat.Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Notify(ctx context.Context, n models.Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}
