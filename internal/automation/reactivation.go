package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
	"github.com/FranckSowax/botpharma/internal/util"
)

// ReactivationEngine wins back customers whose last order is older than the
// inactivity threshold, or who registered but never ordered.
type ReactivationEngine struct {
	store store.Store
	msg   messaging.Service
	cfg   ReactivationConfig
}

// NewReactivationEngine creates a reactivation engine.
func NewReactivationEngine(st store.Store, msg messaging.Service, cfg ReactivationConfig) *ReactivationEngine {
	return &ReactivationEngine{store: st, msg: msg, cfg: cfg}
}

// ReactivationStats summarizes campaign effectiveness.
type ReactivationStats struct {
	Sent           int     `json:"sent"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// DetectInactiveCustomers returns the customers eligible for a win-back
// campaign right now: last order older than the threshold (or no order at
// all), under the lifetime campaign cap, and no win-back coupon still valid.
func (e *ReactivationEngine) DetectInactiveCustomers(now time.Time) ([]models.User, error) {
	customers, err := e.store.ListCustomers()
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	cutoff := now.AddDate(0, 0, -e.cfg.InactiveDays)

	var inactive []models.User
	for _, user := range customers {
		latest, err := e.store.LatestOrder(user.ID)
		if err != nil {
			slog.Error("ReactivationEngine: failed to load latest order", "error", err, "user_id", user.ID)
			continue
		}
		if latest != nil && !latest.CreatedAt.Before(cutoff) {
			continue
		}
		count, err := e.store.CountCampaignMessages(user.ID, models.CampaignReactivation)
		if err != nil {
			slog.Error("ReactivationEngine: failed to count campaigns", "error", err, "user_id", user.ID)
			continue
		}
		if count >= e.cfg.MaxCampaigns {
			continue
		}
		recent, err := e.store.CouponExistsSince(user.ID, now.AddDate(0, 0, -e.cfg.ValidityDays))
		if err != nil {
			slog.Error("ReactivationEngine: failed to check recent coupons", "error", err, "user_id", user.ID)
			continue
		}
		if recent {
			continue
		}
		inactive = append(inactive, user)
	}
	return inactive, nil
}

// CreateCampaign issues a win-back coupon for the user and schedules the
// campaign message carrying it.
func (e *ReactivationEngine) CreateCampaign(user models.User, now time.Time) error {
	code := util.GeneratePromoCode(fmt.Sprintf("RETOUR%d", e.cfg.DiscountPct), 4)
	coupon := &models.LoyaltyCoupon{
		UserID:      user.ID,
		Code:        code,
		DiscountPct: e.cfg.DiscountPct,
		ValidFrom:   now,
		ValidTo:     now.AddDate(0, 0, e.cfg.ValidityDays),
		CreatedAt:   now,
	}
	if err := e.store.CreateCoupon(coupon); err != nil {
		return fmt.Errorf("failed to create win-back coupon: %w", err)
	}

	cm := &models.CampaignMessage{
		UserID:       user.ID,
		Type:         models.CampaignReactivation,
		Content:      buildWinBackMessage(user, code, e.cfg.DiscountPct, e.cfg.ValidityDays),
		ScheduledFor: now,
		Metadata:     models.CampaignMetadata{PromoCode: code, Discount: e.cfg.DiscountPct, Reason: "inactivity"},
	}
	if err := e.store.CreateCampaignMessage(cm); err != nil {
		return fmt.Errorf("failed to schedule win-back message: %w", err)
	}
	slog.Info("ReactivationEngine: campaign created", "user_id", user.ID, "code", code)
	return nil
}

// buildWinBackMessage personalizes the win-back text with the customer's name
// and known preferences.
func buildWinBackMessage(user models.User, code string, pct, validityDays int) string {
	var b strings.Builder
	name := user.Name
	if name == "" {
		name = "cher client"
	}
	fmt.Fprintf(&b, "Bonjour %s ! 🌿 Cela fait un moment que nous ne vous avons pas vu à la Parapharmacie Libreville, et vous nous manquez !\n\n", name)
	switch {
	case user.Profile.Bio && user.Profile.Vegan:
		b.WriteString("Nos nouveautés bio et vegan viennent d'arriver, nous avons pensé à vous. ")
	case user.Profile.Bio:
		b.WriteString("Notre rayon bio s'est agrandi avec de belles nouveautés. ")
	case user.Profile.Vegan:
		b.WriteString("De nouvelles références vegan sont en rayon. ")
	}
	fmt.Fprintf(&b, "Pour votre retour, profitez de %d%% de réduction avec le code %s, valable %d jours. À très vite ! 💚", pct, code, validityDays)
	return b.String()
}

// Run detects inactive customers and creates their campaigns, returning how
// many were created.
func (e *ReactivationEngine) Run(now time.Time) (int, error) {
	inactive, err := e.DetectInactiveCustomers(now)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, user := range inactive {
		if err := e.CreateCampaign(user, now); err != nil {
			slog.Error("ReactivationEngine: failed to create campaign", "error", err, "user_id", user.ID)
			continue
		}
		created++
	}
	return created, nil
}

// Deliver sends every win-back message that is due.
func (e *ReactivationEngine) Deliver(ctx context.Context, now time.Time) (int, error) {
	return deliverDue(ctx, e.store, e.msg, models.CampaignReactivation, now)
}

// AnalyzeEffectiveness counts how many reactivated customers ordered again
// after receiving their win-back message.
func (e *ReactivationEngine) AnalyzeEffectiveness() (ReactivationStats, error) {
	sent, err := e.store.ListSentCampaignMessages(models.CampaignReactivation)
	if err != nil {
		return ReactivationStats{}, fmt.Errorf("failed to list sent campaigns: %w", err)
	}
	stats := ReactivationStats{Sent: len(sent)}
	for _, cm := range sent {
		if cm.SentAt == nil {
			continue
		}
		ordered, err := e.store.HasOrderAfter(cm.UserID, *cm.SentAt)
		if err != nil {
			slog.Error("ReactivationEngine: failed to check conversion", "error", err, "campaign_id", cm.ID)
			continue
		}
		if ordered {
			stats.Conversions++
		}
	}
	if stats.Sent > 0 {
		stats.ConversionRate = float64(stats.Conversions) / float64(stats.Sent) * 100
	}
	return stats, nil
}
