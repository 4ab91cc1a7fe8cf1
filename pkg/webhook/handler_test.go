package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/recoura/pod-engine/internal/testutil"
	"github.com/recoura/pod-engine/pkg/claims"
)

func newTestHandler(t *testing.T) (*Handler, *testutil.FakeClaimStore, *testutil.FakeAlertSink, *MemoryLedger) {
	t.Helper()

	store := testutil.NewFakeClaimStore()
	alerts := testutil.NewFakeAlertSink()
	ledger := NewMemoryLedger()

	handler, err := NewHandler(store, alerts, ledger, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return handler, store, alerts, ledger
}

func trackedClaim(id int64, tracking string, dispute claims.DisputeType, payment claims.PaymentStatus) claims.Claim {
	return claims.Claim{
		ID:             id,
		Reference:      "CLM-0011",
		TrackingNumber: tracking,
		Carrier:        "colissimo",
		DisputeType:    dispute,
		Status:         claims.StatusPending,
		PaymentStatus:  payment,
		PODFetchStatus: claims.PODFetchPending,
		CreatedAt:      time.Now().Add(-24 * time.Hour),
	}
}

func TestHandleTrackingUpdate_InvalidEvent(t *testing.T) {
	handler, _, _, _ := newTestHandler(t)

	tests := []struct {
		name  string
		event Event
	}{
		{"missing tracking number", Event{Tag: TagDelivered}},
		{"missing tag", Event{TrackingNumber: "FR123456789AB"}},
		{"empty event", Event{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processed, err := handler.HandleTrackingUpdate(context.Background(), tt.event)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("error = %v, want ErrInvalidEvent", err)
			}
			if processed {
				t.Error("processed = true for invalid event")
			}
		})
	}
}

func TestHandleTrackingUpdate_UnmatchedTracking(t *testing.T) {
	handler, _, _, ledger := newTestHandler(t)

	processed, err := handler.HandleTrackingUpdate(context.Background(), Event{
		TrackingNumber: "FR000000000XX",
		Tag:            TagDelivered,
	})
	if err != nil {
		t.Fatalf("HandleTrackingUpdate() error = %v", err)
	}
	if processed {
		t.Error("processed = true for unmatched tracking number")
	}
	if ledger.Len() != 0 {
		t.Errorf("ledger entries = %d for unmatched event, want 0", ledger.Len())
	}
}

func TestHandleTrackingUpdate_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		tag            string
		dispute        claims.DisputeType
		payment        claims.PaymentStatus
		wantStatus     claims.Status
		wantAutomation claims.AutomationStatus
		wantAlerts     int
	}{
		{
			name:           "delivered while disputing a loss rejects the claim",
			tag:            TagDelivered,
			dispute:        claims.DisputeLost,
			payment:        claims.PaymentUnpaid,
			wantStatus:     claims.StatusRejected,
			wantAutomation: claims.AutomationActionRequired,
			wantAlerts:     1,
		},
		{
			name:           "delivered on a damage claim goes under review",
			tag:            TagDelivered,
			dispute:        claims.DisputeDamaged,
			payment:        claims.PaymentPaid,
			wantStatus:     claims.StatusUnderReview,
			wantAutomation: claims.AutomationAutomated,
			wantAlerts:     0,
		},
		{
			name:           "delivered on an unpaid damage claim raises a bypass alert",
			tag:            TagDelivered,
			dispute:        claims.DisputeDamaged,
			payment:        claims.PaymentUnpaid,
			wantStatus:     claims.StatusUnderReview,
			wantAutomation: claims.AutomationAutomated,
			wantAlerts:     1,
		},
		{
			name:           "lost confirmation goes under review",
			tag:            TagLost,
			dispute:        claims.DisputeLost,
			payment:        claims.PaymentUnpaid,
			wantStatus:     claims.StatusUnderReview,
			wantAutomation: claims.AutomationAutomated,
			wantAlerts:     0,
		},
		{
			name:       "in transit marks submitted",
			tag:        TagInTransit,
			dispute:    claims.DisputeLate,
			payment:    claims.PaymentUnpaid,
			wantStatus: claims.StatusSubmitted,
			wantAlerts: 0,
		},
		{
			name:       "out for delivery goes under review",
			tag:        TagOutForDelivery,
			dispute:    claims.DisputeLate,
			payment:    claims.PaymentUnpaid,
			wantStatus: claims.StatusUnderReview,
			wantAlerts: 0,
		},
		{
			name:           "exception needs a human",
			tag:            TagException,
			dispute:        claims.DisputeDamaged,
			payment:        claims.PaymentUnpaid,
			wantStatus:     claims.StatusUnderReview,
			wantAutomation: claims.AutomationActionRequired,
			wantAlerts:     0,
		},
		{
			name:       "compensated while unpaid raises a bypass alert",
			tag:        TagCompensated,
			dispute:    claims.DisputeLost,
			payment:    claims.PaymentUnpaid,
			wantStatus: claims.StatusPending,
			wantAlerts: 1,
		},
		{
			name:       "unknown tag acknowledged without transition",
			tag:        "CustomsHold",
			dispute:    claims.DisputeLate,
			payment:    claims.PaymentPaid,
			wantStatus: claims.StatusPending,
			wantAlerts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store, alerts, _ := newTestHandler(t)
			store.Put(trackedClaim(1, "FR123456789AB", tt.dispute, tt.payment))

			processed, err := handler.HandleTrackingUpdate(context.Background(), Event{
				TrackingNumber: "FR123456789AB",
				Tag:            tt.tag,
			})
			if err != nil {
				t.Fatalf("HandleTrackingUpdate() error = %v", err)
			}
			if !processed {
				t.Fatal("processed = false, want true")
			}

			claim, _ := store.Get(1)
			if claim.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", claim.Status, tt.wantStatus)
			}
			if tt.wantAutomation != "" && claim.AutomationStatus != tt.wantAutomation {
				t.Errorf("AutomationStatus = %s, want %s", claim.AutomationStatus, tt.wantAutomation)
			}
			if got := len(alerts.Alerts()); got != tt.wantAlerts {
				t.Errorf("alerts = %d, want %d", got, tt.wantAlerts)
			}
		})
	}
}

func TestHandleTrackingUpdate_DeliveredWhileDisputedLost_SingleAlert(t *testing.T) {
	// The contradiction alert and the unpaid-terminal-event alert must not
	// both fire for one Delivered event.
	handler, store, alerts, _ := newTestHandler(t)
	store.Put(trackedClaim(1, "FR123456789AB", claims.DisputeLost, claims.PaymentUnpaid))

	if _, err := handler.HandleTrackingUpdate(context.Background(), Event{
		TrackingNumber: "FR123456789AB",
		Tag:            TagDelivered,
	}); err != nil {
		t.Fatalf("HandleTrackingUpdate() error = %v", err)
	}

	raised := alerts.Alerts()
	if len(raised) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(raised))
	}
	if raised[0].Reason != "delivered_while_disputed_lost" {
		t.Errorf("alert reason = %q", raised[0].Reason)
	}
	if raised[0].Reference == "" {
		t.Error("alert reference is empty")
	}
}

func TestHandleTrackingUpdate_DuplicateAbsorbed(t *testing.T) {
	handler, store, alerts, ledger := newTestHandler(t)
	store.Put(trackedClaim(1, "FR123456789AB", claims.DisputeLost, claims.PaymentUnpaid))

	event := Event{TrackingNumber: "FR123456789AB", Tag: TagDelivered}

	processed, err := handler.HandleTrackingUpdate(context.Background(), event)
	if err != nil || !processed {
		t.Fatalf("first delivery: processed = %v, err = %v", processed, err)
	}

	// Mutate the claim back so a reapplied event would be visible.
	claim, _ := store.Get(1)
	firstStatus := claim.Status
	alertsAfterFirst := len(alerts.Alerts())

	processed, err = handler.HandleTrackingUpdate(context.Background(), event)
	if err != nil {
		t.Fatalf("duplicate delivery error = %v", err)
	}
	if !processed {
		t.Error("duplicate delivery processed = false, want acknowledged true")
	}

	claim, _ = store.Get(1)
	if claim.Status != firstStatus {
		t.Errorf("Status changed on duplicate: %s -> %s", firstStatus, claim.Status)
	}
	if len(alerts.Alerts()) != alertsAfterFirst {
		t.Errorf("alerts grew on duplicate: %d -> %d", alertsAfterFirst, len(alerts.Alerts()))
	}
	if ledger.Len() != 1 {
		t.Errorf("ledger entries = %d, want 1", ledger.Len())
	}
}

func TestHandleTrackingUpdate_DistinctTagsBothApply(t *testing.T) {
	handler, store, _, ledger := newTestHandler(t)
	store.Put(trackedClaim(1, "FR123456789AB", claims.DisputeLate, claims.PaymentPaid))

	for _, tag := range []string{TagInTransit, TagOutForDelivery} {
		if _, err := handler.HandleTrackingUpdate(context.Background(), Event{
			TrackingNumber: "FR123456789AB",
			Tag:            tag,
		}); err != nil {
			t.Fatalf("HandleTrackingUpdate(%s) error = %v", tag, err)
		}
	}

	claim, _ := store.Get(1)
	if claim.Status != claims.StatusUnderReview {
		t.Errorf("Status = %s, want under_review after second event", claim.Status)
	}
	if ledger.Len() != 2 {
		t.Errorf("ledger entries = %d, want 2", ledger.Len())
	}
}

func TestHandleTrackingUpdate_ApplyFailureRollsBackLedger(t *testing.T) {
	store := testutil.NewFakeClaimStore()
	store.Put(trackedClaim(1, "FR123456789AB", claims.DisputeLost, claims.PaymentUnpaid))
	ledger := NewMemoryLedger()

	// Lookups succeed, the status update fails.
	failing := &updateFailingStore{FakeClaimStore: store, err: errors.New("database gone")}
	h, err := NewHandler(failing, testutil.NewFakeAlertSink(), ledger, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	processed, err := h.HandleTrackingUpdate(context.Background(), Event{
		TrackingNumber: "FR123456789AB",
		Tag:            TagDelivered,
	})
	if err == nil {
		t.Fatal("HandleTrackingUpdate() error = nil, want update failure")
	}
	if processed {
		t.Error("processed = true on failed apply")
	}

	// Rolled back: a redelivery can retry.
	if ledger.Len() != 0 {
		t.Errorf("ledger entries = %d after rollback, want 0", ledger.Len())
	}

	if _, err := h.HandleTrackingUpdate(context.Background(), Event{
		TrackingNumber: "FR123456789AB",
		Tag:            TagDelivered,
	}); err == nil {
		t.Error("redelivery error = nil, want update failure again (not duplicate-absorbed)")
	}
}

// updateFailingStore fails status updates but answers lookups.
type updateFailingStore struct {
	*testutil.FakeClaimStore
	err error
}

func (s *updateFailingStore) UpdateClaimStatus(_ context.Context, _ int64, _ claims.Status, _ claims.AutomationStatus) error {
	return s.err
}
