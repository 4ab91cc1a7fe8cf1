// Package notify defines the contract to the external notification service.
// Delivery itself is rate-limited and preference-gated downstream; this module
// only decides when to queue an event.
package notify

import (
	"context"
)

// EventType identifies the notification template to send.
type EventType string

const (
	// EventPODRetrieved is sent once when a POD is finally fetched.
	EventPODRetrieved EventType = "pod_retrieved"

	// EventPODFailed is sent exactly once when a claim exhausts its retry
	// budget on a persistent error.
	EventPODFailed EventType = "pod_failed"
)

// Notifier queues user-facing notifications.
type Notifier interface {
	QueueNotification(ctx context.Context, clientEmail string, event EventType, data map[string]string) error
}
