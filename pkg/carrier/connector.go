// Package carrier defines the connector capability implemented by each
// carrier integration and the registry that resolves them.
package carrier

import (
	"context"
	"time"
)

// PODData holds the delivery evidence returned by a carrier.
type PODData struct {
	RecipientName    string     `json:"recipient_name,omitempty"`
	SignatureURL     string     `json:"signature_url,omitempty"`
	DeliveryDate     *time.Time `json:"delivery_date,omitempty"`
	DeliveryLocation string     `json:"delivery_location,omitempty"`
}

// PODResult is the outcome of a single connector call. A connector returning
// Success=false with an Err string signals a carrier-level failure (tracking
// unknown, POD unavailable, not yet delivered); transport-level failures are
// returned as a Go error instead.
type PODResult struct {
	Success bool    `json:"success"`
	PODURL  string  `json:"pod_url,omitempty"`
	PODData PODData `json:"pod_data"`
	Err     string  `json:"error,omitempty"`
}

// Connector is the per-carrier POD capability. Implementations own the wire
// protocol and credentials for their carrier.
type Connector interface {
	// Name returns the canonical lowercase carrier name.
	Name() string

	// GetPOD fetches proof of delivery for a tracking number.
	GetPOD(ctx context.Context, trackingNumber string) (*PODResult, error)
}
