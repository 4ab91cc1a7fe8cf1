package scheduler

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    ErrorClass
	}{
		{
			name:    "tracking not found is persistent",
			message: "Tracking number not found",
			want:    ErrorClassPersistent,
		},
		{
			name:    "unsupported carrier is persistent",
			message: "Carrier not supported: dpd",
			want:    ErrorClassPersistent,
		},
		{
			name:    "pod not available is persistent",
			message: "POD document not available for this shipment",
			want:    ErrorClassPersistent,
		},
		{
			name:    "french invalid number is persistent",
			message: "Numéro invalide",
			want:    ErrorClassPersistent,
		},
		{
			name:    "invalid credentials is persistent",
			message: "Invalid credentials for carrier API",
			want:    ErrorClassPersistent,
		},
		{
			name:    "connection timeout is transient",
			message: "Connection timeout",
			want:    ErrorClassTransient,
		},
		{
			name:    "rate limit is transient",
			message: "Rate limit exceeded, try later",
			want:    ErrorClassTransient,
		},
		{
			name:    "not yet delivered is transient",
			message: "Package not yet delivered",
			want:    ErrorClassTransient,
		},
		{
			name:    "french not yet delivered is transient",
			message: "Colis pas encore livré",
			want:    ErrorClassTransient,
		},
		{
			name:    "max retries marker is transient",
			message: "Max retries exceeded",
			want:    ErrorClassTransient,
		},
		{
			name:    "case insensitive matching",
			message: "TRACKING NOT FOUND",
			want:    ErrorClassPersistent,
		},
		{
			name:    "empty message is transient",
			message: "",
			want:    ErrorClassTransient,
		},
		{
			// Unknown errors default to transient: retry silently rather than
			// send a possibly-wrong terminal notification.
			name:    "unknown message defaults to transient",
			message: "Something completely unexpected happened",
			want:    ErrorClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}

func TestIsPersistent(t *testing.T) {
	if !IsPersistent("Tracking number not found") {
		t.Error("IsPersistent() = false for not-found error, want true")
	}
	if IsPersistent("Connection timeout") {
		t.Error("IsPersistent() = true for timeout, want false")
	}
}
