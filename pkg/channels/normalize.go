package channels

import (
	"errors"
	"strings"
)

const brazilCountryCode = "55"

// NormalizedNumber is the result of WhatsApp phone normalization.
// MissingNinthDigit flags 12-digit numbers (country + area + 8 digits)
// that may lack the Brazilian mobile ninth digit; delivery is still
// attempted, the flag is surfaced for logging.
type NormalizedNumber struct {
	Value             string
	MissingNinthDigit bool
}

// NormalizeWhatsAppNumber canonicalizes a destination to country-code
// prefixed digits: strip non-digits, strip leading zeros, prefix 55
// when the country code is absent. Valid results have 12 or 13 digits.
func NormalizeWhatsAppNumber(raw string) (NormalizedNumber, error) {
	digits := keepDigits(raw)
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return NormalizedNumber{}, errors.New("phone number has no digits")
	}
	if !strings.HasPrefix(digits, brazilCountryCode) || len(digits) < 12 {
		digits = brazilCountryCode + digits
	}
	if len(digits) < 12 || len(digits) > 13 {
		return NormalizedNumber{}, errors.New("phone number must have 12 or 13 digits after normalization")
	}
	return NormalizedNumber{
		Value:             digits,
		MissingNinthDigit: len(digits) == 12,
	}, nil
}

// NormalizeSMSNumber canonicalizes a destination to +E.164-ish form:
// 10 to 15 digits with a leading plus.
func NormalizeSMSNumber(raw string) (string, error) {
	digits := keepDigits(raw)
	if len(digits) < 10 || len(digits) > 15 {
		return "", errors.New("phone number must have between 10 and 15 digits")
	}
	return "+" + digits, nil
}

// TruncateBody enforces a provider's documented message size limit.
// Oversized bodies are cut, not rejected.
func TruncateBody(body string, limit int) (string, bool) {
	if limit <= 0 || len(body) <= limit {
		return body, false
	}
	runes := []rune(body)
	if len(runes) <= limit {
		return body, false
	}
	return string(runes[:limit]), true
}

func keepDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
