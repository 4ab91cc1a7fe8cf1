// Package claims defines the claim model and the contracts to the external
// claim store. Claims are created by intake (out of scope); this module only
// mutates the POD fetch fields and the claim status.
package claims

import (
	"time"
)

// PODFetchStatus tracks the lifecycle of a POD acquisition for a claim.
type PODFetchStatus string

const (
	PODFetchNone    PODFetchStatus = "none"
	PODFetchPending PODFetchStatus = "pending"
	PODFetchSuccess PODFetchStatus = "success"
	PODFetchFailed  PODFetchStatus = "failed"
)

// Status is the claim dispute status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
)

// PaymentStatus tracks whether the claim has been compensated.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// AutomationStatus marks whether a claim still flows through automation
// or needs a human.
type AutomationStatus string

const (
	AutomationAutomated      AutomationStatus = "automated"
	AutomationActionRequired AutomationStatus = "action_required"
)

// DisputeType is the reason the claim was opened.
type DisputeType string

const (
	DisputeLost    DisputeType = "lost"
	DisputeDamaged DisputeType = "damaged"
	DisputeLate    DisputeType = "late"
)

// Claim is the subset of the claim row this module reads and mutates.
type Claim struct {
	ID               int64            `json:"id"`
	Reference        string           `json:"reference"`
	ClientID         int64            `json:"client_id"`
	TrackingNumber   string           `json:"tracking_number"`
	Carrier          string           `json:"carrier"`
	DisputeType      DisputeType      `json:"dispute_type"`
	Status           Status           `json:"status"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	AutomationStatus AutomationStatus `json:"automation_status"`

	PODFetchStatus   PODFetchStatus `json:"pod_fetch_status"`
	PODURL           string         `json:"pod_url,omitempty"`
	PODFetchError    string         `json:"pod_fetch_error,omitempty"`
	PODRecipientName string         `json:"pod_recipient_name,omitempty"`
	PODSignatureURL  string         `json:"pod_signature_url,omitempty"`
	PODRetryCount    int            `json:"pod_retry_count"`
	PODLastRetryAt   *time.Time     `json:"pod_last_retry_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PODUpdate carries the POD fields written back to the claim store after a
// fetch attempt. Nil pointers leave the corresponding column untouched.
type PODUpdate struct {
	FetchStatus   PODFetchStatus
	PODURL        *string
	FetchError    *string
	RecipientName *string
	SignatureURL  *string
	RetryCount    *int
	LastRetryAt   *time.Time
}

// BypassAlert flags a suspected-fraud contradiction between claim data and
// later carrier evidence.
type BypassAlert struct {
	ClaimID        int64     `json:"claim_id"`
	TrackingNumber string    `json:"tracking_number"`
	Reference      string    `json:"reference"`
	Reason         string    `json:"reason"`
	RaisedAt       time.Time `json:"raised_at"`
}
