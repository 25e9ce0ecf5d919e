package automation

import (
	"strings"
	"testing"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

func TestDetectInactiveCustomers(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewReactivationEngine(st, &messaging.MockService{}, DefaultReactivationConfig())
	now := time.Now()

	dormant := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, dormant.ID, 20000, now.AddDate(0, 0, -45))

	active := seedCustomer(t, st, "241662345679")
	seedCompletedOrder(t, st, active.ID, 20000, now.AddDate(0, 0, -5))

	// Registered but never ordered: just as much in need of a nudge.
	neverOrdered := seedCustomer(t, st, "241662345670")

	inactive, err := engine.DetectInactiveCustomers(now)
	if err != nil {
		t.Fatalf("DetectInactiveCustomers: %v", err)
	}
	if len(inactive) != 2 {
		t.Fatalf("inactive = %+v, want dormant and never-ordered", inactive)
	}
	found := map[string]bool{}
	for _, u := range inactive {
		found[u.ID] = true
	}
	if !found[dormant.ID] || !found[neverOrdered.ID] {
		t.Errorf("inactive = %+v", inactive)
	}
	if found[active.ID] {
		t.Error("recently active customer detected as inactive")
	}
}

func TestDetectIncludesCustomerWithNoOrders(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewReactivationEngine(st, &messaging.MockService{}, DefaultReactivationConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")

	inactive, err := engine.DetectInactiveCustomers(now)
	if err != nil {
		t.Fatalf("DetectInactiveCustomers: %v", err)
	}
	if len(inactive) != 1 || inactive[0].ID != user.ID {
		t.Fatalf("customer without orders not eligible: %+v", inactive)
	}

	// The usual guards still apply to them.
	if err := engine.CreateCampaign(*user, now); err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	inactive, err = engine.DetectInactiveCustomers(now)
	if err != nil {
		t.Fatalf("second detect: %v", err)
	}
	if len(inactive) != 0 {
		t.Errorf("live coupon did not block a repeat campaign: %+v", inactive)
	}
}

func TestDetectSkipsUserAtCampaignCap(t *testing.T) {
	st := store.NewInMemoryStore()
	cfg := DefaultReactivationConfig()
	engine := NewReactivationEngine(st, &messaging.MockService{}, cfg)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, user.ID, 20000, now.AddDate(0, 0, -45))
	for i := 0; i < cfg.MaxCampaigns; i++ {
		cm := &models.CampaignMessage{UserID: user.ID, Type: models.CampaignReactivation, Content: "x", ScheduledFor: now.AddDate(0, -1-i, 0)}
		if err := st.CreateCampaignMessage(cm); err != nil {
			t.Fatalf("CreateCampaignMessage: %v", err)
		}
	}

	inactive, err := engine.DetectInactiveCustomers(now)
	if err != nil {
		t.Fatalf("DetectInactiveCustomers: %v", err)
	}
	if len(inactive) != 0 {
		t.Errorf("capped user still detected: %+v", inactive)
	}
}

func TestDetectSkipsUserWithRecentCoupon(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewReactivationEngine(st, &messaging.MockService{}, DefaultReactivationConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, user.ID, 20000, now.AddDate(0, 0, -45))
	coupon := &models.LoyaltyCoupon{
		UserID: user.ID, Code: "RETOUR15ABCD", DiscountPct: 15,
		ValidFrom: now.AddDate(0, 0, -2), ValidTo: now.AddDate(0, 0, 12),
		CreatedAt: now.AddDate(0, 0, -2),
	}
	if err := st.CreateCoupon(coupon); err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}

	inactive, err := engine.DetectInactiveCustomers(now)
	if err != nil {
		t.Fatalf("DetectInactiveCustomers: %v", err)
	}
	if len(inactive) != 0 {
		t.Errorf("user with live coupon still detected: %+v", inactive)
	}
}

func TestCreateCampaignIssuesCouponAndMessage(t *testing.T) {
	st := store.NewInMemoryStore()
	cfg := DefaultReactivationConfig()
	engine := NewReactivationEngine(st, &messaging.MockService{}, cfg)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	user.Profile = models.ProfileData{Bio: true}
	if err := engine.CreateCampaign(*user, now); err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}

	coupons, _ := st.ListCoupons(user.ID)
	if len(coupons) != 1 {
		t.Fatalf("got %d coupons, want 1", len(coupons))
	}
	if !strings.HasPrefix(coupons[0].Code, "RETOUR15") {
		t.Errorf("code = %q", coupons[0].Code)
	}
	if coupons[0].DiscountPct != cfg.DiscountPct {
		t.Errorf("discount = %d", coupons[0].DiscountPct)
	}

	due, _ := st.ListDueCampaignMessages(models.CampaignReactivation, now)
	if len(due) != 1 {
		t.Fatalf("got %d campaign messages, want 1", len(due))
	}
	content := due[0].Content
	if !strings.Contains(content, coupons[0].Code) {
		t.Errorf("promo code missing from message: %q", content)
	}
	if !strings.Contains(content, "rayon bio") {
		t.Errorf("bio preference not reflected: %q", content)
	}
	if due[0].Metadata.Reason != "inactivity" {
		t.Errorf("metadata reason = %q", due[0].Metadata.Reason)
	}
}

func TestBuildWinBackMessageFallsBackToGenericName(t *testing.T) {
	msg := buildWinBackMessage(models.User{}, "RETOUR15XXXX", 15, 14)
	if !strings.Contains(msg, "cher client") {
		t.Errorf("anonymous greeting missing: %q", msg)
	}
	if !strings.Contains(msg, "15% de réduction") {
		t.Errorf("discount missing: %q", msg)
	}
}

func TestAnalyzeEffectiveness(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewReactivationEngine(st, &messaging.MockService{}, DefaultReactivationConfig())
	now := time.Now()

	converted := seedCustomer(t, st, "241662345678")
	ignored := seedCustomer(t, st, "241662345679")

	sentAt := now.AddDate(0, 0, -7)
	for _, u := range []*models.User{converted, ignored} {
		cm := &models.CampaignMessage{UserID: u.ID, Type: models.CampaignReactivation, Content: "x", ScheduledFor: sentAt}
		if err := st.CreateCampaignMessage(cm); err != nil {
			t.Fatalf("CreateCampaignMessage: %v", err)
		}
		if err := st.MarkCampaignMessageSent(cm.ID, sentAt); err != nil {
			t.Fatalf("MarkCampaignMessageSent: %v", err)
		}
	}
	// Only the first customer came back.
	seedCompletedOrder(t, st, converted.ID, 9000, now.AddDate(0, 0, -3))

	stats, err := engine.AnalyzeEffectiveness()
	if err != nil {
		t.Fatalf("AnalyzeEffectiveness: %v", err)
	}
	if stats.Sent != 2 || stats.Conversions != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ConversionRate != 50 {
		t.Errorf("conversion rate = %v", stats.ConversionRate)
	}
}
