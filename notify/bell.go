package notify

import (
	"context"
	"io"
	"sync"

	"github.com/mbenaiss/conseiller-chat/models"
)

// Bell rings the terminal bell for new incoming messages.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell writes the bell character to w.
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

// Notify implements chat.Notifier. Only sound notifications ring.
func (b *Bell) Notify(ctx context.Context, n models.Notification) {
	if n.Kind != models.NotificationSound {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = b.w.Write([]byte{'\a'})
}
