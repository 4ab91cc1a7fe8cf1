package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/recoura/pod-engine/pkg/claims"
)

// Prometheus metrics for webhook ingestion.
var (
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_webhook_events_total",
		Help: "Total tracking webhook events by tag and result",
	}, []string{"tag", "result"})

	bypassAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pod_bypass_alerts_total",
		Help: "Total bypass alerts raised from webhook events",
	})
)

// Event tags sent by the tracking providers.
const (
	TagDelivered      = "Delivered"
	TagLost           = "Lost"
	TagInTransit      = "InTransit"
	TagOutForDelivery = "OutForDelivery"
	TagException      = "Exception"
	TagCompensated    = "Compensated"
)

// Event is one inbound tracking update.
type Event struct {
	TrackingNumber string `json:"tracking_number"`
	Tag            string `json:"tag"`
}

// ErrInvalidEvent indicates a webhook payload without tracking number or tag.
var ErrInvalidEvent = errors.New("invalid webhook event")

// Handler applies tracking events to claims, exactly once per
// (tracking_number, event_tag) pair.
type Handler struct {
	store  claims.Store
	alerts claims.AlertSink
	ledger Ledger
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler wires a webhook handler.
func NewHandler(store claims.Store, alerts claims.AlertSink, ledger Ledger, logger zerolog.Logger) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert sink is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	return &Handler{
		store:  store,
		alerts: alerts,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}, nil
}

// HandleTrackingUpdate applies one tracking event. It returns true when the
// event was processed (including the duplicate case, which is acknowledged
// with no side effects) and false when no claim matches or the payload is
// invalid.
func (h *Handler) HandleTrackingUpdate(ctx context.Context, event Event) (bool, error) {
	if event.TrackingNumber == "" || event.Tag == "" {
		webhookEventsTotal.WithLabelValues(event.Tag, "invalid").Inc()
		return false, fmt.Errorf("%w: missing tracking number or tag", ErrInvalidEvent)
	}

	logger := h.logger.With().
		Str("tracking_number", event.TrackingNumber).
		Str("tag", event.Tag).
		Logger()

	logger.Info().Msg("Tracking webhook received")

	claim, err := h.store.FindByTracking(ctx, event.TrackingNumber)
	if err != nil {
		if errors.Is(err, claims.ErrClaimNotFound) {
			logger.Warn().Msg("No claim found for tracking number")
			webhookEventsTotal.WithLabelValues(event.Tag, "unmatched").Inc()
			return false, nil
		}
		webhookEventsTotal.WithLabelValues(event.Tag, "error").Inc()
		return false, fmt.Errorf("find claim: %w", err)
	}

	// Atomic insert-if-absent: of two concurrent duplicate deliveries only
	// one gets first=true, the other is absorbed here.
	first, err := h.ledger.Record(ctx, event.TrackingNumber, event.Tag)
	if err != nil {
		webhookEventsTotal.WithLabelValues(event.Tag, "error").Inc()
		return false, fmt.Errorf("idempotency ledger: %w", err)
	}
	if !first {
		logger.Info().Msg("Duplicate tracking event absorbed")
		webhookEventsTotal.WithLabelValues(event.Tag, "duplicate").Inc()
		return true, nil
	}

	if err := h.apply(ctx, claim, event, logger); err != nil {
		// Give the event back to the ledger so a redelivery can retry.
		if forgetErr := h.ledger.Forget(ctx, event.TrackingNumber, event.Tag); forgetErr != nil {
			logger.Error().Err(forgetErr).Msg("Failed to roll back ledger entry")
		}
		webhookEventsTotal.WithLabelValues(event.Tag, "error").Inc()
		return false, err
	}

	webhookEventsTotal.WithLabelValues(event.Tag, "applied").Inc()
	return true, nil
}

// apply runs the status transition table plus the bypass checks.
func (h *Handler) apply(ctx context.Context, claim *claims.Claim, event Event, logger zerolog.Logger) error {
	alerted := false

	switch event.Tag {
	case TagDelivered:
		if claim.DisputeType == claims.DisputeLost {
			// Carrier says delivered while the claim says lost: reject the
			// claim and flag the contradiction.
			logger.Warn().
				Int64("claim_id", claim.ID).
				Msg("Claim disputes a loss but carrier reports delivery")

			if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusRejected, claims.AutomationActionRequired); err != nil {
				return fmt.Errorf("update claim status: %w", err)
			}
			h.raiseBypass(ctx, claim, "delivered_while_disputed_lost", logger)
			alerted = true
		} else {
			if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusUnderReview, claims.AutomationAutomated); err != nil {
				return fmt.Errorf("update claim status: %w", err)
			}
		}

	case TagLost:
		if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusUnderReview, claims.AutomationAutomated); err != nil {
			return fmt.Errorf("update claim status: %w", err)
		}

	case TagInTransit:
		if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusSubmitted, ""); err != nil {
			return fmt.Errorf("update claim status: %w", err)
		}

	case TagOutForDelivery:
		if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusUnderReview, ""); err != nil {
			return fmt.Errorf("update claim status: %w", err)
		}

	case TagException:
		if err := h.store.UpdateClaimStatus(ctx, claim.ID, claims.StatusUnderReview, claims.AutomationActionRequired); err != nil {
			return fmt.Errorf("update claim status: %w", err)
		}

	default:
		logger.Info().Msg("No transition for event tag, acknowledging")
	}

	// A compensation or delivery while the claim is still unpaid is a
	// bypass signal regardless of status transitions.
	if (event.Tag == TagCompensated || event.Tag == TagDelivered) &&
		claim.PaymentStatus == claims.PaymentUnpaid && !alerted {
		h.raiseBypass(ctx, claim, "terminal_event_while_unpaid", logger)
	}

	return nil
}

// raiseBypass sends a bypass alert. Sink failures are logged, not returned:
// the status transition must not roll back because alerting hiccuped.
func (h *Handler) raiseBypass(ctx context.Context, claim *claims.Claim, reason string, logger zerolog.Logger) {
	alert := claims.BypassAlert{
		ClaimID:        claim.ID,
		TrackingNumber: claim.TrackingNumber,
		Reference:      fmt.Sprintf("AUTO-WH-%d", claim.ID),
		Reason:         reason,
		RaisedAt:       h.now(),
	}

	if err := h.alerts.RaiseBypassAlert(ctx, alert); err != nil {
		logger.Error().Err(err).Msg("Failed to raise bypass alert")
		return
	}

	bypassAlertsTotal.Inc()
	logger.Warn().
		Int64("claim_id", claim.ID).
		Str("reason", reason).
		Msg("Bypass alert raised")
}
