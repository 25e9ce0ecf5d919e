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

// Coupon code prefixes distinguishing the loyalty triggers. The guards are
// per trigger, so each check only looks at its own prefix.
const (
	pointsCodePrefix    = "FIDELITE"
	milestoneCodePrefix = "FIDELE"
	birthdayCodePrefix  = "ANNIV"
)

// LoyaltyEngine rewards repeat customers: points for spend, order-count
// milestones and birthday coupons.
type LoyaltyEngine struct {
	store store.Store
	msg   messaging.Service
	cfg   LoyaltyConfig
}

// NewLoyaltyEngine creates a loyalty engine.
func NewLoyaltyEngine(st store.Store, msg messaging.Service, cfg LoyaltyConfig) *LoyaltyEngine {
	return &LoyaltyEngine{store: st, msg: msg, cfg: cfg}
}

// CalculatePoints returns the customer's current points balance: one point
// per FCFA spent on completed orders.
func (e *LoyaltyEngine) CalculatePoints(userID string) (int64, error) {
	spend, err := e.store.SumCompletedOrderAmounts(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum spend for %s: %w", userID, err)
	}
	return spend * e.cfg.PointsPerFCFA, nil
}

// hasCouponWithPrefixSince reports whether the user already holds a coupon of
// the given trigger created after the guard boundary.
func (e *LoyaltyEngine) hasCouponWithPrefixSince(userID, prefix string, since time.Time) (bool, error) {
	coupons, err := e.store.ListCoupons(userID)
	if err != nil {
		return false, fmt.Errorf("failed to list coupons for %s: %w", userID, err)
	}
	for _, c := range coupons {
		if strings.HasPrefix(c.Code, prefix) && !c.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// issueReward creates a coupon and schedules the loyalty message announcing
// it.
func (e *LoyaltyEngine) issueReward(user models.User, prefix, content string, discountPct int, reason string, now time.Time) error {
	code := util.GeneratePromoCode(prefix, 4)
	coupon := &models.LoyaltyCoupon{
		UserID:      user.ID,
		Code:        code,
		DiscountPct: discountPct,
		ValidFrom:   now,
		ValidTo:     now.AddDate(0, 0, e.cfg.CouponValidityDays),
		CreatedAt:   now,
	}
	if err := e.store.CreateCoupon(coupon); err != nil {
		return fmt.Errorf("failed to create %s coupon: %w", reason, err)
	}
	cm := &models.CampaignMessage{
		UserID:       user.ID,
		Type:         models.CampaignLoyalty,
		Content:      fmt.Sprintf(content, code),
		ScheduledFor: now,
		Metadata:     models.CampaignMetadata{PromoCode: code, Discount: discountPct, Reason: reason, IsThankYou: true},
	}
	if err := e.store.CreateCampaignMessage(cm); err != nil {
		return fmt.Errorf("failed to schedule %s message: %w", reason, err)
	}
	slog.Info("LoyaltyEngine: reward issued", "user_id", user.ID, "reason", reason, "code", code)
	return nil
}

// CheckPoints issues the points reward when the balance crosses the threshold
// and no points coupon was granted within the guard window.
func (e *LoyaltyEngine) CheckPoints(user models.User, now time.Time) (bool, error) {
	points, err := e.CalculatePoints(user.ID)
	if err != nil {
		return false, err
	}
	if points < e.cfg.PointsForCoupon {
		return false, nil
	}
	guarded, err := e.hasCouponWithPrefixSince(user.ID, pointsCodePrefix, now.AddDate(0, 0, -e.cfg.PointsGuardDays))
	if err != nil || guarded {
		return false, err
	}
	content := fmt.Sprintf("🌟 Félicitations ! Vous avez cumulé %d points de fidélité à la Parapharmacie Libreville.\n\n"+
		"En remerciement, voici %d%%%% de réduction sur votre prochaine commande avec le code %%s. Merci de votre fidélité ! 💚",
		points, e.cfg.CouponDiscountPct)
	if err := e.issueReward(user, pointsCodePrefix, content, e.cfg.CouponDiscountPct, "points", now); err != nil {
		return false, err
	}
	return true, nil
}

// CheckMilestones issues the milestone reward when the customer's completed
// order count lands exactly on a tier. Each tier is granted at most once per
// customer, ever: the guard is the FIDELE<count> coupon itself.
func (e *LoyaltyEngine) CheckMilestones(user models.User, now time.Time) (bool, error) {
	count, err := e.store.CountCompletedOrders(user.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count orders for %s: %w", user.ID, err)
	}
	var tier *Milestone
	for i := range e.cfg.Milestones {
		if e.cfg.Milestones[i].Orders == count {
			tier = &e.cfg.Milestones[i]
			break
		}
	}
	if tier == nil {
		return false, nil
	}
	tierPrefix := fmt.Sprintf("%s%d", milestoneCodePrefix, count)
	granted, err := e.hasCouponWithPrefixSince(user.ID, tierPrefix, time.Time{})
	if err != nil || granted {
		return false, err
	}
	content := fmt.Sprintf("🎉 Quelle fidélité ! Vous venez de passer votre commande n°%d à la Parapharmacie Libreville.\n\n"+
		"Pour fêter ça, %d%%%% de réduction vous attendent avec le code %%s. Merci d'être là ! 🙏", count, tier.DiscountPct)
	if err := e.issueReward(user, tierPrefix, content, tier.DiscountPct, "milestone", now); err != nil {
		return false, err
	}
	return true, nil
}

// CheckBirthday issues the birthday coupon on the customer's birthday, at
// most once per calendar year.
func (e *LoyaltyEngine) CheckBirthday(user models.User, now time.Time) (bool, error) {
	if user.Profile.Birthday == "" {
		return false, nil
	}
	bday, err := time.Parse("2006-01-02", user.Profile.Birthday)
	if err != nil {
		slog.Warn("LoyaltyEngine: unparseable birthday, skipping", "user_id", user.ID, "birthday", user.Profile.Birthday)
		return false, nil
	}
	if bday.Month() != now.Month() || bday.Day() != now.Day() {
		return false, nil
	}
	startOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	guarded, err := e.hasCouponWithPrefixSince(user.ID, birthdayCodePrefix, startOfYear)
	if err != nil || guarded {
		return false, err
	}
	content := fmt.Sprintf("🎂 Joyeux anniversaire de la part de toute l'équipe de la Parapharmacie Libreville !\n\n"+
		"Votre cadeau : %d%%%% de réduction avec le code %%s, valable tout le mois. Belle journée à vous ! 🎁", e.cfg.BirthdayDiscountPct)
	if err := e.issueReward(user, birthdayCodePrefix, content, e.cfg.BirthdayDiscountPct, "birthday", now); err != nil {
		return false, err
	}
	return true, nil
}

// Run evaluates every loyalty trigger for every customer and returns how many
// rewards were issued.
func (e *LoyaltyEngine) Run(now time.Time) (int, error) {
	customers, err := e.store.ListCustomers()
	if err != nil {
		return 0, fmt.Errorf("failed to list customers: %w", err)
	}
	issued := 0
	for _, user := range customers {
		checks := []func(models.User, time.Time) (bool, error){
			e.CheckMilestones, e.CheckPoints, e.CheckBirthday,
		}
		for _, check := range checks {
			ok, err := check(user, now)
			if err != nil {
				slog.Error("LoyaltyEngine: trigger check failed", "error", err, "user_id", user.ID)
				continue
			}
			if ok {
				issued++
			}
		}
	}
	return issued, nil
}

// Deliver sends every loyalty message that is due.
func (e *LoyaltyEngine) Deliver(ctx context.Context, now time.Time) (int, error) {
	return deliverDue(ctx, e.store, e.msg, models.CampaignLoyalty, now)
}

// Stats reports the coupon program counters.
func (e *LoyaltyEngine) Stats() (models.CouponStats, error) {
	return e.store.CouponStats()
}
