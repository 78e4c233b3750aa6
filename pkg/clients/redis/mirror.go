package redis

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
)

// DefaultMirrorKey holds the shared JWKS document.
const DefaultMirrorKey = "gatekeeper:jwks"

// KeySetMirror stores the raw JWKS document under a single key so that
// replicas can share one provider fetch.
type KeySetMirror struct {
	client *Client
	key    string
}

var _ auth.KeySetMirror = (*KeySetMirror)(nil)

// NewKeySetMirror returns a mirror on client. An empty key selects
// [DefaultMirrorKey].
func NewKeySetMirror(client *Client, key string) *KeySetMirror {
	if key == "" {
		key = DefaultMirrorKey
	}
	return &KeySetMirror{client: client, key: key}
}

// Load returns the stored document, or nil when none is stored or it has
// expired.
func (m *KeySetMirror) Load(ctx context.Context) ([]byte, error) {
	return m.client.Get(ctx, m.key)
}

// Store writes document with the given TTL.
func (m *KeySetMirror) Store(ctx context.Context, document []byte, ttl time.Duration) error {
	return m.client.Set(ctx, m.key, document, ttl)
}

// Clear removes the stored document.
func (m *KeySetMirror) Clear(ctx context.Context) error {
	return m.client.Del(ctx, m.key)
}
