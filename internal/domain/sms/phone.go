package sms

import (
	"regexp"
	"strings"
	"unicode"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// NormalizePhone converts a user-entered number to E.164. Bare 10-digit
// numbers are assumed to be US numbers.
func NormalizePhone(raw string) PhoneValidation {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PhoneValidation{Error: "phone number is empty"}
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, trimmed)

	var formatted string
	switch {
	case len(digits) == 10:
		formatted = "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		formatted = "+" + digits
	default:
		formatted = "+" + digits
	}

	if !e164Pattern.MatchString(formatted) {
		return PhoneValidation{Error: "invalid phone number format: " + raw}
	}
	return PhoneValidation{Valid: true, Formatted: formatted}
}
