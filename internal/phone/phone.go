// Package phone canonicalizes Gabonese phone numbers into the stable identity
// key and messaging destination used across botpharma.
//
// Gabon renumbered mobile lines from the legacy 10-digit local format
// (241 0X XXX XXX) to a 9-digit format (241 XX XXX XXX); both still appear in
// gateway payloads and must map to the same canonical form.
package phone

import "strings"

const (
	// GabonPrefix is the Gabon country calling code without the leading plus.
	GabonPrefix = "241"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// validSecondDigits are the digits allowed directly after the country prefix
// in a normalized number.
var validSecondDigits = map[byte]bool{'1': true, '2': true, '5': true, '6': true, '7': true}

// Normalize strips formatting and rewrites legacy-format Gabon numbers to the
// current 9-digit-after-prefix form. It is idempotent: Normalize(Normalize(x))
// == Normalize(x). Non-Gabonese numbers are only lightly cleaned.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimPrefix(b.String(), "+")

	if !strings.HasPrefix(cleaned, GabonPrefix) {
		return cleaned
	}
	rest := cleaned[len(GabonPrefix):]

	// Legacy format: ten digits with a leading zero. Dropping the zero yields
	// the current nine-digit form (2410662345678 -> 241662345678).
	if len(rest) == 10 && rest[0] == '0' {
		return GabonPrefix + rest[1:]
	}
	return cleaned
}

// IsValidGabonNumber reports whether raw normalizes to a well-formed Gabon
// mobile number: 241 followed by nine digits starting with 1, 2, 5, 6 or 7.
func IsValidGabonNumber(raw string) bool {
	n := Normalize(raw)
	if !strings.HasPrefix(n, GabonPrefix) || len(n) != 12 {
		return false
	}
	return validSecondDigits[n[3]]
}

// ChatID converts a phone number to the gateway's native chat identifier
// (e.g. 241662345678@s.whatsapp.net).
func ChatID(raw string) string {
	return Normalize(raw) + "@" + JIDSuffix
}

// FromChatID extracts the canonical phone number from a gateway chat
// identifier, tolerating plain numbers as input.
func FromChatID(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		chatID = chatID[:i]
	}
	return Normalize(chatID)
}

// FormatForDisplay renders a normalized Gabon number as +241 XX XXX XXX;
// other numbers are prefixed with a plus.
func FormatForDisplay(raw string) string {
	n := Normalize(raw)
	if strings.HasPrefix(n, GabonPrefix) && len(n) == 12 {
		return "+" + n[:3] + " " + n[3:5] + " " + n[5:8] + " " + n[8:]
	}
	return "+" + n
}
