// Package bypass is the per-domain grace-period cache. Entries live only in
// process memory: a daemon restart deliberately forgets every bypass, the
// same way a fresh browsing session saw none in the original extension.
package bypass

import (
	"sync"
	"time"
)

// Cache maps a host to the instant its last challenge was completed.
type Cache struct {
	mu      sync.RWMutex
	granted map[string]time.Time
}

// New creates an empty bypass cache.
func New() *Cache {
	return &Cache{granted: make(map[string]time.Time)}
}

// Grant records now as the bypass timestamp for host, overwriting any prior
// entry.
func (c *Cache) Grant(host string, now time.Time) {
	c.mu.Lock()
	c.granted[host] = now
	c.mu.Unlock()
}

// LastGranted returns the grant instant for host, if any.
func (c *Cache) LastGranted(host string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.granted[host]
	return ts, ok
}

// IsLive reports whether host holds a bypass younger than durationMinutes.
// Expired entries stay in the map (the structure is small and process-scoped)
// and simply stop being live.
func (c *Cache) IsLive(host string, now time.Time, durationMinutes int) bool {
	ts, ok := c.LastGranted(host)
	if !ok {
		return false
	}
	return now.Sub(ts) < time.Duration(durationMinutes)*time.Minute
}

// Revoke removes the entry for host. Used when a rule flips to hard.
func (c *Cache) Revoke(host string) {
	c.mu.Lock()
	delete(c.granted, host)
	c.mu.Unlock()
}

// Len returns the number of entries, live or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.granted)
}
