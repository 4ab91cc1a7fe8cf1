package cache

import (
	"strings"
)

// Key identifies a cached POD by the (carrier, tracking number) pair.
type Key struct {
	Carrier        string
	TrackingNumber string
}

// String generates the deterministic storage key.
// Format: pod:carrier:tracking_number
//
// Example:
//
//	pod:colissimo:FR123456789AB
func (k Key) String() string {
	carrier := strings.ToLower(strings.TrimSpace(k.Carrier))
	tracking := strings.TrimSpace(k.TrackingNumber)
	return strings.Join([]string{"pod", carrier, tracking}, ":")
}
