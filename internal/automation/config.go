// Package automation implements the post-purchase engines: satisfaction
// surveys, inactive customer reactivation, product usage tips and the loyalty
// program. Each engine schedules campaign messages in the store; a separate
// delivery sweep sends whatever is due, so a crash between the two never
// loses or duplicates a message.
package automation

// SurveyConfig tunes the satisfaction survey engine.
type SurveyConfig struct {
	// DelayDays is how long after delivery the survey is sent.
	DelayDays int
	// WindowDays bounds how far back the detection sweep looks.
	WindowDays int
}

// DefaultSurveyConfig returns the production survey settings.
func DefaultSurveyConfig() SurveyConfig {
	return SurveyConfig{DelayDays: 2, WindowDays: 7}
}

// ReactivationConfig tunes the inactive customer reactivation engine.
type ReactivationConfig struct {
	// InactiveDays is the inactivity threshold.
	InactiveDays int
	// DiscountPct is the win-back coupon discount.
	DiscountPct int
	// MaxCampaigns caps reactivation attempts per customer, ever.
	MaxCampaigns int
	// ValidityDays is the coupon validity window.
	ValidityDays int
}

// DefaultReactivationConfig returns the production reactivation settings.
func DefaultReactivationConfig() ReactivationConfig {
	return ReactivationConfig{InactiveDays: 30, DiscountPct: 15, MaxCampaigns: 3, ValidityDays: 14}
}

// UsageTipsConfig tunes the usage tips engine.
type UsageTipsConfig struct {
	// DelayDays is how long after purchase the first tip is sent.
	DelayDays int
	// MaxTipsPerProduct caps how many tips one customer receives, one per
	// variant.
	MaxTipsPerProduct int
}

// DefaultUsageTipsConfig returns the production usage tips settings.
func DefaultUsageTipsConfig() UsageTipsConfig {
	return UsageTipsConfig{DelayDays: 3, MaxTipsPerProduct: 3}
}

// Milestone is one order-count reward tier.
type Milestone struct {
	Orders      int
	DiscountPct int
}

// LoyaltyConfig tunes the loyalty engine.
type LoyaltyConfig struct {
	// PointsPerFCFA converts completed order spend into points.
	PointsPerFCFA int64
	// PointsForCoupon is the balance that triggers a reward coupon.
	PointsForCoupon int64
	// CouponDiscountPct is the points reward coupon discount.
	CouponDiscountPct int
	// CouponValidityDays is the validity window of issued coupons.
	CouponValidityDays int
	// PointsGuardDays throttles points rewards per customer.
	PointsGuardDays int
	// BirthdayDiscountPct is the birthday coupon discount.
	BirthdayDiscountPct int
	// Milestones are the order-count reward tiers, in ascending order.
	Milestones []Milestone
}

// DefaultLoyaltyConfig returns the production loyalty settings.
func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		PointsPerFCFA:       1,
		PointsForCoupon:     10000,
		CouponDiscountPct:   20,
		CouponValidityDays:  30,
		PointsGuardDays:     30,
		BirthdayDiscountPct: 15,
		Milestones: []Milestone{
			{Orders: 5, DiscountPct: 10},
			{Orders: 10, DiscountPct: 15},
			{Orders: 20, DiscountPct: 20},
		},
	}
}
