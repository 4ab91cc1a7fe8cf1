package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/recoura/pod-engine/internal/testutil"
	"github.com/recoura/pod-engine/pkg/claims"
)

func newTestServer(t *testing.T) (http.Handler, *testutil.FakeClaimStore) {
	t.Helper()

	store := testutil.NewFakeClaimStore()
	handler, err := NewHandler(store, testutil.NewFakeAlertSink(), NewMemoryLedger(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return NewHTTPHandler(handler, zerolog.Nop()), store
}

func TestHTTPHandler_Processed(t *testing.T) {
	httpHandler, store := newTestServer(t)
	store.Put(trackedClaim(1, "FR123456789AB", claims.DisputeDamaged, claims.PaymentPaid))

	body := `{"msg": {"tracking_number": "FR123456789AB", "tag": "Delivered"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracking", strings.NewReader(body))
	rec := httptest.NewRecorder()

	httpHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Processed bool `json:"processed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Processed {
		t.Error("processed = false, want true")
	}

	claim, _ := store.Get(1)
	if claim.Status != claims.StatusUnderReview {
		t.Errorf("Status = %s, want under_review", claim.Status)
	}
}

func TestHTTPHandler_UnmatchedTracking(t *testing.T) {
	httpHandler, _ := newTestServer(t)

	body := `{"msg": {"tracking_number": "FR000000000XX", "tag": "Delivered"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracking", strings.NewReader(body))
	rec := httptest.NewRecorder()

	httpHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Processed bool `json:"processed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Processed {
		t.Error("processed = true for unmatched tracking, want false")
	}
}

func TestHTTPHandler_MalformedBody(t *testing.T) {
	httpHandler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracking", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	httpHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHTTPHandler_MethodNotAllowed(t *testing.T) {
	httpHandler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/tracking", nil)
	rec := httptest.NewRecorder()

	httpHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
