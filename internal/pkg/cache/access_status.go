package cache

import (
	"time"
)

const (
	accessStatusKeyPrefix = "access_status:"
	accessStatusTTL       = 5 * time.Minute
)

// AccessStatusCache caches the per-user access decision the dashboard reads on
// every request. Entries expire on their own TTL, so invalidation is strictly
// best-effort: a failed delete self-heals at the next expiry.
type AccessStatusCache struct {
	ttl time.Duration
}

// NewAccessStatusCache creates the access-status cache wrapper. Pass it to
// whatever composes the webhook handlers; it is not meant to be reached
// through a hidden global.
func NewAccessStatusCache() *AccessStatusCache {
	return &AccessStatusCache{ttl: accessStatusTTL}
}

func accessStatusKey(userID string) string {
	return accessStatusKeyPrefix + userID
}

// Get returns the cached access-status JSON for a user, or an error when the
// key is absent or the cache is unreachable.
func (c *AccessStatusCache) Get(userID string) (string, error) {
	return Get(accessStatusKey(userID))
}

// Set stores the access-status JSON for a user under the configured TTL.
func (c *AccessStatusCache) Set(userID string, value string) error {
	return Set(accessStatusKey(userID), value, c.ttl)
}

// Invalidate drops the cached access status for a user.
func (c *AccessStatusCache) Invalidate(userID string) error {
	return Delete(accessStatusKey(userID))
}
