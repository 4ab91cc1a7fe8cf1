package scheduler

import (
	"strings"
)

// ErrorClass splits POD fetch failures into persistent errors, which will
// never resolve on their own and warrant a terminal notification, and
// transient ones, which the backoff schedule retries silently.
type ErrorClass string

const (
	ErrorClassPersistent ErrorClass = "persistent"
	ErrorClassTransient  ErrorClass = "transient"
)

// Persistent errors won't resolve automatically. Carrier messages arrive in
// English or French depending on the API.
var persistentKeywords = []string{
	"not found",
	"tracking number invalid",
	"tracking not found",
	"numéro invalide",
	"numéro introuvable",
	"pod not available",
	"pod document not available",
	"pod non disponible",
	"not supported",
	"transporteur non supporté",
	"authentication failed",
	"invalid credentials",
	"account suspended",
	"compte suspendu",
}

// Transient errors resolve on retry.
var transientKeywords = []string{
	"timeout",
	"connection",
	"rate limit",
	"too many requests",
	"not yet delivered",
	"pas encore livré",
	"en cours de livraison",
	"in transit",
	"temporary",
	"temporaire",
	"try again",
	"retry",
}

// Classify categorizes a POD fetch error message.
//
// Messages matching neither list default to transient: an unknown error is
// retried rather than spamming the user with a possibly-wrong terminal
// notification. The cost is that a genuinely permanent error outside the
// keyword list stays silent forever.
func Classify(errorMessage string) ErrorClass {
	if errorMessage == "" {
		return ErrorClassTransient
	}

	lower := strings.ToLower(errorMessage)

	for _, keyword := range persistentKeywords {
		if strings.Contains(lower, keyword) {
			return ErrorClassPersistent
		}
	}

	for _, keyword := range transientKeywords {
		if strings.Contains(lower, keyword) {
			return ErrorClassTransient
		}
	}

	return ErrorClassTransient
}

// IsPersistent reports whether an error message describes a failure that
// retrying cannot fix.
func IsPersistent(errorMessage string) bool {
	return Classify(errorMessage) == ErrorClassPersistent
}
