package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig configures one HTTP connector. Each carrier integration runs
// behind an internal POD gateway that normalizes the carrier wire formats
// to a single JSON shape.
type HTTPConfig struct {
	// Carrier is the canonical lowercase carrier name.
	Carrier string

	// BaseURL of the POD gateway for this carrier.
	BaseURL string

	// APIKey sent as a bearer token. Optional.
	APIKey string

	// UserAgent header. Optional.
	UserAgent string

	// Timeout per request (default: 30s).
	Timeout time.Duration

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// podResponse is the gateway JSON body.
type podResponse struct {
	Available        bool   `json:"available"`
	PODURL           string `json:"pod_url"`
	RecipientName    string `json:"recipient_name"`
	SignatureURL     string `json:"signature_url"`
	DeliveryDate     string `json:"delivery_date"`
	DeliveryLocation string `json:"delivery_location"`
	Error            string `json:"error"`
}

// HTTPConnector fetches PODs from a carrier gateway over HTTP.
type HTTPConnector struct {
	carrier    string
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// NewHTTPConnector creates an HTTP connector for one carrier.
func NewHTTPConnector(cfg HTTPConfig) (*HTTPConnector, error) {
	carrier := strings.ToLower(strings.TrimSpace(cfg.Carrier))
	if carrier == "" {
		return nil, fmt.Errorf("carrier name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for carrier %s", carrier)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for carrier %s: %w", carrier, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &HTTPConnector{
		carrier:    carrier,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
	}, nil
}

// Name returns the canonical carrier name.
func (c *HTTPConnector) Name() string {
	return c.carrier
}

// GetPOD fetches proof of delivery from the gateway. Carrier-level outcomes
// (tracking unknown, POD not available yet) come back as an unsuccessful
// PODResult; transport and server failures are returned as an error so the
// caller can retry them.
func (c *HTTPConnector) GetPOD(ctx context.Context, trackingNumber string) (*PODResult, error) {
	endpoint := fmt.Sprintf("%s/pod/%s", c.baseURL, url.PathEscape(trackingNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s gateway failed: %w", c.carrier, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Decoded below.
	case resp.StatusCode == http.StatusNotFound:
		return &PODResult{Success: false, Err: "Tracking number not found"}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PODResult{Success: false, Err: "Invalid credentials for carrier API"}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s gateway rate limit exceeded", c.carrier)
	default:
		return nil, fmt.Errorf("%s gateway returned status %d", c.carrier, resp.StatusCode)
	}

	var body podResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode %s gateway response: %w", c.carrier, err)
	}

	if !body.Available {
		msg := body.Error
		if msg == "" {
			msg = "POD not available"
		}
		return &PODResult{Success: false, Err: msg}, nil
	}

	result := &PODResult{
		Success: true,
		PODURL:  body.PODURL,
		PODData: PODData{
			RecipientName:    body.RecipientName,
			SignatureURL:     body.SignatureURL,
			DeliveryLocation: body.DeliveryLocation,
		},
	}
	if body.DeliveryDate != "" {
		if parsed, err := time.Parse(time.RFC3339, body.DeliveryDate); err == nil {
			result.PODData.DeliveryDate = &parsed
		}
	}
	return result, nil
}
