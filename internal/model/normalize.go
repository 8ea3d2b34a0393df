package model

import "strings"

// NormalizeDestination strips all non-digit characters except a leading '+'
// and appends the transport's canonical suffix, matching spec §4.1 step 3 /
// §4.4's "every service identifies a conversation by its transport-canonical
// form" shared idiom.
func NormalizeDestination(raw, suffix string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		// Already transport-canonical (e.g. "1555...@s.whatsapp.net" or a group id).
		return raw
	}
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if digits == "" {
		return raw
	}
	return digits + suffix
}

// DigitsOnly extracts just the digits from a phone-like string, used to build
// the synthetic reporter email fallback (spec §4.3 step 1).
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SyntheticEmail derives `{digits}@whatsapp.local` from a phone number when no
// real email is available.
func SyntheticEmail(phone string) string {
	return DigitsOnly(phone) + "@whatsapp.local"
}
