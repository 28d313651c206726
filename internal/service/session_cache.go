package service

import (
	"context"
	"sync"
	"time"
)

// SessionCache remembers sessions known to be dead (revoked or expired) so
// the identity resolver can skip the store lookup for access tokens bound to
// them. It is purely an optimization: a miss, an error, or a disabled cache
// all fall through to the authoritative store.
type SessionCache interface {
	IsDead(ctx context.Context, sessionID string) (bool, error)
	MarkDead(ctx context.Context, sessionID string, ttl time.Duration) error
}

type NoopSessionCache struct{}

func NewNoopSessionCache() *NoopSessionCache { return &NoopSessionCache{} }

func (*NoopSessionCache) IsDead(context.Context, string) (bool, error) { return false, nil }

func (*NoopSessionCache) MarkDead(context.Context, string, time.Duration) error { return nil }

type InMemorySessionCache struct {
	mu    sync.RWMutex
	store map[string]time.Time
}

func NewInMemorySessionCache() *InMemorySessionCache {
	return &InMemorySessionCache{store: make(map[string]time.Time)}
}

func (c *InMemorySessionCache) IsDead(_ context.Context, sessionID string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	expiresAt, ok := c.store[sessionID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		delete(c.store, sessionID)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemorySessionCache) MarkDead(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[sessionID] = time.Now().UTC().Add(ttl)
	return nil
}
