package chat

import (
	"context"
	"sync"

	"github.com/mbenaiss/conseiller-chat/models"
)

type mounter interface {
	mount()
}

type lazyNotifier struct {
	once  sync.Once
	build func() Notifier
	n     Notifier
}

// Lazy defers building the notifier until the manager starts tracking
// conversations, or until the first notification if that comes sooner.
func Lazy(build func() Notifier) Notifier {
	return &lazyNotifier{build: build}
}

func (l *lazyNotifier) mount() {
	l.once.Do(func() {
		l.n = l.build()
	})
}

func (l *lazyNotifier) Notify(ctx context.Context, n models.Notification) {
	l.mount()
	if l.n != nil {
		l.n.Notify(ctx, n)
	}
}
