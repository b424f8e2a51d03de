package token

import (
	"sync"
	"time"
)

// RevokedTokenCache interface for managing revoked tokens. Entries are
// keyed by the token's SHA-256 hash; the expiry bounds how long the
// entry must be held (a revoked token past natural expiry fails
// validation anyway).
type RevokedTokenCache interface {
	Add(tokenHash string, exp time.Time) error
	IsRevoked(tokenHash string) bool
	Cleanup(now time.Time) int // Remove expired entries, returns how many
}

// InMemoryRevokedTokenCache is a simple in-memory implementation
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedTokenCache() RevokedTokenCache {
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedTokenCache) Add(tokenHash string, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[tokenHash] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(tokenHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[tokenHash]
	return exists
}

func (c *InMemoryRevokedTokenCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for hash, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, hash)
			removed++
		}
	}
	return removed
}
