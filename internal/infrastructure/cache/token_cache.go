package cache

import (
	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/broadcast"
)

// TokenCache is the single shared token slot. Every listener sees the current
// token when it subscribes and every write after that, in one global order.
// The cache only stores and fans out; it never fetches.
type TokenCache struct {
	slot *broadcast.Broadcaster[authtoken.Token]
}

// NewTokenCache creates a cache holding authtoken.Empty.
func NewTokenCache() *TokenCache {
	return &TokenCache{slot: broadcast.New(authtoken.Empty)}
}

// Current returns the cached token, which may be Empty or already expired.
func (c *TokenCache) Current() authtoken.Token {
	token, _ := c.slot.Value()
	return token
}

// Snapshot returns the cached token and the generation of the write that
// stored it. Pass the generation to PublishIf to make a conditional write.
func (c *TokenCache) Snapshot() (authtoken.Token, uint64) {
	return c.slot.Snapshot()
}

// Publish stores token and notifies every listener. It returns the new generation.
func (c *TokenCache) Publish(token authtoken.Token) uint64 {
	return c.slot.Publish(token)
}

// PublishIf stores token only when nothing was written since gen.
func (c *TokenCache) PublishIf(gen uint64, token authtoken.Token) (uint64, bool) {
	return c.slot.PublishIf(gen, token)
}

// Clear stores authtoken.Empty.
func (c *TokenCache) Clear() uint64 {
	return c.slot.Publish(authtoken.Empty)
}

// Subscribe registers listener. It is called with the current token first.
// The returned function detaches it.
func (c *TokenCache) Subscribe(listener func(authtoken.Token)) (unsubscribe func()) {
	return c.slot.Subscribe(listener, nil)
}
