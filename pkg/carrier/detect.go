package carrier

import (
	"strings"
	"unicode"
)

// Detect infers the carrier from a tracking number's format. It is a pure
// fallback heuristic for claims created without a carrier; an explicit
// carrier always wins.
func Detect(trackingNumber string) (string, bool) {
	tracking := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if tracking == "" {
		return "", false
	}

	// UPS: "1Z" prefix, 18 characters.
	if strings.HasPrefix(tracking, "1Z") && len(tracking) == 18 {
		return "ups", true
	}

	// Chronopost: "CH" or "XP" prefix.
	if strings.HasPrefix(tracking, "CH") || strings.HasPrefix(tracking, "XP") {
		return "chronopost", true
	}

	// Colissimo / La Poste: "FR" prefix, or 13 characters led by two letters.
	if strings.HasPrefix(tracking, "FR") {
		return "colissimo", true
	}
	if len(tracking) == 13 && isAlpha(tracking[:2]) {
		return "colissimo", true
	}

	if isDigits(tracking) {
		switch len(tracking) {
		case 12, 15:
			return "fedex", true
		case 10:
			return "dhl", true
		}
	}

	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
