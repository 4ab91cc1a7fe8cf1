package claims

import (
	"context"
	"errors"
)

// ErrClaimNotFound indicates no claim matches the given identifier.
var ErrClaimNotFound = errors.New("claim not found")

// Store is the contract to the external claim persistence layer. The store is
// the single source of truth for claim state and is assumed to serialize
// concurrent updates to the same claim row.
type Store interface {
	// GetPendingPODClaims returns claims awaiting their first POD fetch
	// (pod_fetch_status = pending, tracking number present), oldest first.
	GetPendingPODClaims(ctx context.Context, limit int) ([]Claim, error)

	// GetRetryEligibleClaims returns failed claims with a tracking number and
	// retry_count < maxRetries, ordered oldest-attempted-first. Backoff
	// filtering happens in the caller, not in storage.
	GetRetryEligibleClaims(ctx context.Context, maxRetries, limit int) ([]Claim, error)

	// UpdateClaimPODFields writes the POD outcome of a fetch attempt.
	UpdateClaimPODFields(ctx context.Context, claimID int64, update PODUpdate) error

	// UpdateClaimStatus transitions the claim status. An empty automation
	// status leaves the current value in place.
	UpdateClaimStatus(ctx context.Context, claimID int64, status Status, automation AutomationStatus) error

	// FindByTracking resolves the claim associated with a tracking number.
	// Returns ErrClaimNotFound when no claim matches.
	FindByTracking(ctx context.Context, trackingNumber string) (*Claim, error)

	// GetClientEmail returns the notification address for a claim's owner.
	GetClientEmail(ctx context.Context, claimID int64) (string, error)
}

// AlertSink receives bypass alerts raised by the webhook state machine.
type AlertSink interface {
	RaiseBypassAlert(ctx context.Context, alert BypassAlert) error
}
