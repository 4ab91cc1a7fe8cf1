// Package testutil provides in-memory fakes of the external collaborators:
// claim store, alert sink, notifier, and carrier connectors.
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/recoura/pod-engine/pkg/carrier"
	"github.com/recoura/pod-engine/pkg/claims"
	"github.com/recoura/pod-engine/pkg/notify"
)

// FakeClaimStore is an in-memory claims.Store.
type FakeClaimStore struct {
	mu     sync.Mutex
	claims map[int64]*claims.Claim
	emails map[int64]string

	// FailWith, when set, makes every method return this error. Used to
	// simulate infrastructure failure.
	FailWith error
}

// NewFakeClaimStore creates an empty fake store.
func NewFakeClaimStore() *FakeClaimStore {
	return &FakeClaimStore{
		claims: make(map[int64]*claims.Claim),
		emails: make(map[int64]string),
	}
}

// Put inserts or replaces a claim.
func (s *FakeClaimStore) Put(claim claims.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := claim
	s.claims[claim.ID] = &c
}

// SetEmail sets the client email for a claim.
func (s *FakeClaimStore) SetEmail(claimID int64, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[claimID] = email
}

// Get returns a copy of a stored claim.
func (s *FakeClaimStore) Get(claimID int64) (claims.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok {
		return claims.Claim{}, false
	}
	return *c, true
}

func (s *FakeClaimStore) GetPendingPODClaims(_ context.Context, limit int) ([]claims.Claim, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []claims.Claim
	for _, c := range s.claims {
		if c.PODFetchStatus == claims.PODFetchPending && c.TrackingNumber != "" {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *FakeClaimStore) GetRetryEligibleClaims(_ context.Context, maxRetries, limit int) ([]claims.Claim, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []claims.Claim
	for _, c := range s.claims {
		if c.PODFetchStatus == claims.PODFetchFailed && c.TrackingNumber != "" && c.PODRetryCount < maxRetries {
			result = append(result, *c)
		}
	}
	// Oldest attempted first, never-attempted (nil) ahead of everything.
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].PODLastRetryAt, result[j].PODLastRetryAt
		switch {
		case a == nil && b == nil:
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *FakeClaimStore) UpdateClaimPODFields(_ context.Context, claimID int64, update claims.PODUpdate) error {
	if s.FailWith != nil {
		return s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return claims.ErrClaimNotFound
	}

	if update.FetchStatus != "" {
		c.PODFetchStatus = update.FetchStatus
	}
	if update.PODURL != nil {
		c.PODURL = *update.PODURL
	}
	if update.FetchError != nil {
		c.PODFetchError = *update.FetchError
	}
	if update.RecipientName != nil {
		c.PODRecipientName = *update.RecipientName
	}
	if update.SignatureURL != nil {
		c.PODSignatureURL = *update.SignatureURL
	}
	if update.RetryCount != nil {
		c.PODRetryCount = *update.RetryCount
	}
	if update.LastRetryAt != nil {
		t := *update.LastRetryAt
		c.PODLastRetryAt = &t
	}
	return nil
}

func (s *FakeClaimStore) UpdateClaimStatus(_ context.Context, claimID int64, status claims.Status, automation claims.AutomationStatus) error {
	if s.FailWith != nil {
		return s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return claims.ErrClaimNotFound
	}
	c.Status = status
	if automation != "" {
		c.AutomationStatus = automation
	}
	return nil
}

func (s *FakeClaimStore) FindByTracking(_ context.Context, trackingNumber string) (*claims.Claim, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.claims {
		if c.TrackingNumber == trackingNumber {
			copied := *c
			return &copied, nil
		}
	}
	return nil, claims.ErrClaimNotFound
}

func (s *FakeClaimStore) GetClientEmail(_ context.Context, claimID int64) (string, error) {
	if s.FailWith != nil {
		return "", s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[claimID]
	if !ok {
		return "", claims.ErrClaimNotFound
	}
	return email, nil
}

// FakeAlertSink records bypass alerts.
type FakeAlertSink struct {
	mu     sync.Mutex
	alerts []claims.BypassAlert
}

// NewFakeAlertSink creates an empty alert sink.
func NewFakeAlertSink() *FakeAlertSink {
	return &FakeAlertSink{}
}

func (s *FakeAlertSink) RaiseBypassAlert(_ context.Context, alert claims.BypassAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// Alerts returns the recorded alerts.
func (s *FakeAlertSink) Alerts() []claims.BypassAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]claims.BypassAlert(nil), s.alerts...)
}

// Notification is one recorded notification.
type Notification struct {
	Email string
	Event notify.EventType
	Data  map[string]string
}

// FakeNotifier records queued notifications.
type FakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

// NewFakeNotifier creates an empty notifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (n *FakeNotifier) QueueNotification(_ context.Context, clientEmail string, event notify.EventType, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Email: clientEmail, Event: event, Data: data})
	return nil
}

// Sent returns the recorded notifications.
func (n *FakeNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// SentOf returns the recorded notifications of one event type.
func (n *FakeNotifier) SentOf(event notify.EventType) []Notification {
	var result []Notification
	for _, notif := range n.Sent() {
		if notif.Event == event {
			result = append(result, notif)
		}
	}
	return result
}

// FakeConnector is a scriptable carrier.Connector.
type FakeConnector struct {
	CarrierName string

	// Reply produces the connector response for a tracking number. When nil
	// the connector returns a generic success.
	Reply func(trackingNumber string) (*carrier.PODResult, error)

	mu    sync.Mutex
	calls int
}

func (c *FakeConnector) Name() string {
	return c.CarrierName
}

func (c *FakeConnector) GetPOD(_ context.Context, trackingNumber string) (*carrier.PODResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.Reply != nil {
		return c.Reply(trackingNumber)
	}
	return &carrier.PODResult{
		Success: true,
		PODURL:  "https://pods.example.com/" + trackingNumber + ".pdf",
		PODData: carrier.PODData{RecipientName: "J. Doe"},
	}, nil
}

// Calls returns how many times GetPOD was invoked.
func (c *FakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
