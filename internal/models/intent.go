// Package models defines intent classification types shared across modules.
package models

// Intent is the classified purpose of an inbound customer message.
type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentProductSearch Intent = "product_search"
	IntentQuestion      Intent = "question"
	IntentOrder         Intent = "order"
	IntentComplaint     Intent = "complaint"
	IntentPromotions    Intent = "promotions"
	IntentOther         Intent = "other"
)

// DefaultIntentConfidence is used when the classifier output is unparseable.
const DefaultIntentConfidence = 0.5

// IsValidIntent reports whether the given intent is part of the vocabulary.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentGreeting, IntentProductSearch, IntentQuestion, IntentOrder,
		IntentComplaint, IntentPromotions, IntentOther:
		return true
	default:
		return false
	}
}

// IntentResult is the classifier output. Confidence is advisory only.
type IntentResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}
