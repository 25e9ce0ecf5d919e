package util

import (
	"math/rand/v2"
	"strings"
)

// GeneratePromoCode generates a promo code with the given prefix and a random
// alphanumeric suffix (e.g. "FIDELITE7K2M9Q"). Uses math/rand/v2; promo codes
// are not security-sensitive.
func GeneratePromoCode(prefix string, suffixLength int) string {
	return prefix + GenerateRandomAlphaNumeric(suffixLength)
}

// GenerateRandomAlphaNumeric generates an uppercase alphanumeric string of
// the specified length.
func GenerateRandomAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}

	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}

	return builder.String()
}
