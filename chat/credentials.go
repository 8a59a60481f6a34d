package chat

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mbenaiss/conseiller-chat/metrics"
	"github.com/mbenaiss/conseiller-chat/models"
)

// EnsureCredentials returns existing when present without touching src.
// Otherwise it fetches credentials, signs in with the token and returns them
// for the caller to cache.
func EnsureCredentials(ctx context.Context, existing *models.Credentials, src CredentialsSource) (models.Credentials, error) {
	if existing != nil {
		return *existing, nil
	}

	creds, err := src.FetchCredentials(ctx)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to fetch chat credentials: %w", err)
	}
	metrics.CredentialFetches.Inc()

	if err := src.SignIn(ctx, creds.Token); err != nil {
		return models.Credentials{}, fmt.Errorf("failed to sign in to chat transport: %w", err)
	}

	return creds, nil
}

// Bootstrap caches credentials for one session and guarantees at most one
// fetch in flight. Failures are not cached.
type Bootstrap struct {
	src   CredentialsSource
	group singleflight.Group

	mu    sync.Mutex
	creds *models.Credentials
	gen   uint64
}

// NewBootstrap creates a Bootstrap over src.
func NewBootstrap(src CredentialsSource) *Bootstrap {
	return &Bootstrap{src: src}
}

// Ensure returns the cached credentials, fetching them on first use.
func (b *Bootstrap) Ensure(ctx context.Context) (models.Credentials, error) {
	if creds := b.cached(); creds != nil {
		return *creds, nil
	}

	v, err, _ := b.group.Do("credentials", func() (any, error) {
		b.mu.Lock()
		existing, gen := b.creds, b.gen
		b.mu.Unlock()

		creds, err := EnsureCredentials(ctx, existing, b.src)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			b.mu.Lock()
			// a Reset during the fetch discards the result
			if b.gen == gen {
				b.creds = &creds
			}
			b.mu.Unlock()
		}
		return creds, nil
	})
	if err != nil {
		return models.Credentials{}, err
	}

	return v.(models.Credentials), nil
}

// Reset forgets the cached credentials, on sign-out. A fetch already in
// flight completes for its callers but is not cached.
func (b *Bootstrap) Reset() {
	b.mu.Lock()
	b.creds = nil
	b.gen++
	b.mu.Unlock()
	b.group.Forget("credentials")
}

func (b *Bootstrap) cached() *models.Credentials {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creds
}
