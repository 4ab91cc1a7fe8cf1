package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// payload is the inbound webhook body.
// Example: {"msg": {"tracking_number": "FR123456789AB", "tag": "Delivered"}}
type payload struct {
	Msg Event `json:"msg"`
}

type response struct {
	Processed bool `json:"processed"`
}

// NewHTTPHandler returns the HTTP endpoint for tracking webhooks.
func NewHTTPHandler(handler *Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body payload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Warn().Err(err).Msg("Malformed webhook payload")
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}

		processed, err := handler.HandleTrackingUpdate(r.Context(), body.Msg)
		if err != nil {
			logger.Error().Err(err).Msg("Webhook processing failed")
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response{Processed: processed}); err != nil {
			logger.Warn().Err(err).Msg("Failed to write webhook response")
		}
	})
}
