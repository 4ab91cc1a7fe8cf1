// Package cache stores fetched POD documents so a (carrier, tracking number)
// pair hits the carrier API at most once per TTL window.
package cache

import (
	"time"

	"github.com/recoura/pod-engine/pkg/carrier"
)

// DefaultTTL is how long a fetched POD stays valid. Carriers do not reissue
// PODs, so a month-long window is safe.
const DefaultTTL = 30 * 24 * time.Hour

// Entry is a cached POD fetch result.
type Entry struct {
	// PODURL points at the stored POD document.
	PODURL string `json:"pod_url"`

	// PODData holds the structured delivery evidence.
	PODData carrier.PODData `json:"pod_data"`

	// CachedAt is when the POD was fetched from the carrier.
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

// IsExpired returns true once the entry is older than ttl.
func (e *Entry) IsExpired(ttl time.Duration) bool {
	return e.Age() > ttl
}

// TTL returns the remaining lifetime of the entry under ttl.
// Returns 0 if already expired.
func (e *Entry) TTL(ttl time.Duration) time.Duration {
	remaining := ttl - e.Age()
	if remaining < 0 {
		return 0
	}
	return remaining
}
