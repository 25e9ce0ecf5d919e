package flow

import "strings"

// Default escalation configuration. The keyword lists are French because the
// assistant currently serves a francophone market; both are injectable so the
// detection logic is not coupled to one locale.
var (
	// DefaultEscalationKeywords trigger a handoff to a human advisor.
	DefaultEscalationKeywords = []string{
		"conseiller", "humain", "personne", "aide", "probleme", "problème",
		"urgent", "parler", "agent",
	}
	// DefaultDeleteKeywords mark a GDPR data-deletion request.
	DefaultDeleteKeywords = []string{"supprimer"}
)

// DefaultHighValueThreshold is the cart value (FCFA) above which a
// conversation is always escalated to a human advisor.
const DefaultHighValueThreshold int64 = 150000

// EscalationMatcher decides when a conversation must leave automated handling.
type EscalationMatcher struct {
	keywords       []string
	deleteKeywords []string
	highValue      int64
}

// MatcherOption configures an EscalationMatcher.
type MatcherOption func(*EscalationMatcher)

// WithKeywords replaces the escalation keyword list.
func WithKeywords(keywords []string) MatcherOption {
	return func(m *EscalationMatcher) { m.keywords = keywords }
}

// WithDeleteKeywords replaces the data-deletion keyword list.
func WithDeleteKeywords(keywords []string) MatcherOption {
	return func(m *EscalationMatcher) { m.deleteKeywords = keywords }
}

// WithHighValueThreshold replaces the cart-value escalation threshold.
func WithHighValueThreshold(v int64) MatcherOption {
	return func(m *EscalationMatcher) { m.highValue = v }
}

// NewEscalationMatcher creates a matcher with the default French keyword sets.
func NewEscalationMatcher(opts ...MatcherOption) *EscalationMatcher {
	m := &EscalationMatcher{
		keywords:       DefaultEscalationKeywords,
		deleteKeywords: DefaultDeleteKeywords,
		highValue:      DefaultHighValueThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldEscalate reports whether the message (case-insensitively) contains an
// escalation keyword, or the cart value exceeds the high-value threshold.
func (m *EscalationMatcher) ShouldEscalate(message string, cartValue int64) bool {
	lower := strings.ToLower(message)
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return cartValue > m.highValue
}

// IsDeleteRequest reports whether the message contains a data-deletion keyword.
func (m *EscalationMatcher) IsDeleteRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range m.deleteKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
