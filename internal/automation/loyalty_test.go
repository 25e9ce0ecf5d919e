package automation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

func newLoyaltyEngine(st *store.InMemoryStore) *LoyaltyEngine {
	return NewLoyaltyEngine(st, &messaging.MockService{}, DefaultLoyaltyConfig())
}

func TestCalculatePoints(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, user.ID, 6000, now.AddDate(0, 0, -10))
	seedCompletedOrder(t, st, user.ID, 5000, now.AddDate(0, 0, -3))
	// Pending orders earn nothing.
	if err := st.AddOrder(&models.Order{UserID: user.ID, Status: models.OrderPending, TotalAmount: 99999}); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}

	points, err := engine.CalculatePoints(user.ID)
	if err != nil {
		t.Fatalf("CalculatePoints: %v", err)
	}
	if points != 11000 {
		t.Errorf("points = %d, want 11000", points)
	}
}

func TestCheckPointsThresholdAndGuard(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, user.ID, 4000, now.AddDate(0, 0, -10))

	// Below threshold: no reward.
	issued, err := engine.CheckPoints(*user, now)
	if err != nil {
		t.Fatalf("CheckPoints: %v", err)
	}
	if issued {
		t.Error("reward issued below the points threshold")
	}

	seedCompletedOrder(t, st, user.ID, 8000, now.AddDate(0, 0, -2))
	issued, err = engine.CheckPoints(*user, now)
	if err != nil {
		t.Fatalf("CheckPoints above threshold: %v", err)
	}
	if !issued {
		t.Fatal("no reward above the points threshold")
	}

	coupons, _ := st.ListCoupons(user.ID)
	if len(coupons) != 1 || !strings.HasPrefix(coupons[0].Code, pointsCodePrefix) {
		t.Fatalf("coupons = %+v", coupons)
	}
	due, _ := st.ListDueCampaignMessages(models.CampaignLoyalty, now)
	if len(due) != 1 {
		t.Fatalf("got %d loyalty messages, want 1", len(due))
	}
	content := due[0].Content
	if !strings.Contains(content, coupons[0].Code) {
		t.Errorf("code missing from message: %q", content)
	}
	if !strings.Contains(content, "20% de réduction") {
		t.Errorf("discount not rendered: %q", content)
	}
	if strings.Contains(content, "%s") || strings.Contains(content, "%!") {
		t.Errorf("unexpanded format verb in message: %q", content)
	}

	// The guard window blocks a second grant while the balance stays high.
	issued, err = engine.CheckPoints(*user, now)
	if err != nil {
		t.Fatalf("guarded CheckPoints: %v", err)
	}
	if issued {
		t.Error("guard window did not block a repeat points reward")
	}
}

func TestCheckMilestonesExactCountOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	for i := 0; i < 4; i++ {
		seedCompletedOrder(t, st, user.ID, 1000, now.AddDate(0, 0, -20+i))
	}

	issued, err := engine.CheckMilestones(*user, now)
	if err != nil {
		t.Fatalf("CheckMilestones at 4 orders: %v", err)
	}
	if issued {
		t.Error("reward issued before the milestone")
	}

	seedCompletedOrder(t, st, user.ID, 1000, now.AddDate(0, 0, -1))
	issued, err = engine.CheckMilestones(*user, now)
	if err != nil {
		t.Fatalf("CheckMilestones at 5 orders: %v", err)
	}
	if !issued {
		t.Fatal("no reward at the 5-order milestone")
	}
	coupons, _ := st.ListCoupons(user.ID)
	if len(coupons) != 1 || !strings.HasPrefix(coupons[0].Code, fmt.Sprintf("%s5", milestoneCodePrefix)) {
		t.Fatalf("coupons = %+v", coupons)
	}
	if coupons[0].DiscountPct != 10 {
		t.Errorf("milestone discount = %d, want 10", coupons[0].DiscountPct)
	}

	// Re-running later, even days later, must not grant the tier again.
	issued, err = engine.CheckMilestones(*user, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("guarded CheckMilestones: %v", err)
	}
	if issued {
		t.Error("milestone tier granted twice")
	}

	// One order past the tier: no longer an exact match.
	seedCompletedOrder(t, st, user.ID, 1000, now)
	issued, err = engine.CheckMilestones(*user, now.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("CheckMilestones at 6 orders: %v", err)
	}
	if issued {
		t.Error("reward issued between milestones")
	}
}

func TestMilestoneRewardIssuedOncePerTier(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	for i := 0; i < 5; i++ {
		seedCompletedOrder(t, st, user.ID, 1000, now.AddDate(0, 0, -10+i))
	}

	issued, err := engine.Run(now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if issued != 1 {
		t.Fatalf("first run issued = %d, want 1", issued)
	}

	// The engine runs on a schedule; a customer parked at exactly five orders
	// keeps their single reward no matter how many cycles pass.
	issued, err = engine.Run(now.Add(48 * time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if issued != 0 {
		t.Errorf("second run issued = %d, want 0", issued)
	}

	var milestones int
	coupons, _ := st.ListCoupons(user.ID)
	for _, c := range coupons {
		if strings.HasPrefix(c.Code, fmt.Sprintf("%s5", milestoneCodePrefix)) {
			milestones++
		}
	}
	if milestones != 1 {
		t.Errorf("milestone 5 rewarded %d times, want exactly once", milestones)
	}
}

func TestCheckBirthdayOncePerYear(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)

	user := seedCustomer(t, st, "241662345678")
	profile := models.ProfileData{Birthday: "1990-08-30"}
	if err := st.UpdateUserProfile(user.ID, profile); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	user.Profile = profile

	issued, err := engine.CheckBirthday(*user, now)
	if err != nil {
		t.Fatalf("CheckBirthday: %v", err)
	}
	if !issued {
		t.Fatal("no birthday reward on the birthday")
	}
	coupons, _ := st.ListCoupons(user.ID)
	if len(coupons) != 1 || !strings.HasPrefix(coupons[0].Code, birthdayCodePrefix) {
		t.Fatalf("coupons = %+v", coupons)
	}

	// Asking again the same day, or later the same year, stays quiet.
	if issued, _ = engine.CheckBirthday(*user, now.Add(2*time.Hour)); issued {
		t.Error("birthday reward granted twice in one day")
	}

	// Next year it fires again.
	nextYear := now.AddDate(1, 0, 0)
	if issued, _ = engine.CheckBirthday(*user, nextYear); !issued {
		t.Error("birthday reward not granted the following year")
	}
}

func TestCheckBirthdaySkipsOtherDays(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)

	user := seedCustomer(t, st, "241662345678")
	user.Profile = models.ProfileData{Birthday: "1990-08-30"}

	notBirthday := time.Date(2026, time.July, 30, 10, 0, 0, 0, time.UTC)
	if issued, _ := engine.CheckBirthday(*user, notBirthday); issued {
		t.Error("reward issued on the wrong day")
	}

	// Missing or malformed birthdays are skipped without error.
	user.Profile.Birthday = ""
	if issued, err := engine.CheckBirthday(*user, notBirthday); err != nil || issued {
		t.Errorf("empty birthday: issued=%v err=%v", issued, err)
	}
	user.Profile.Birthday = "30/08/1990"
	if issued, err := engine.CheckBirthday(*user, notBirthday); err != nil || issued {
		t.Errorf("malformed birthday: issued=%v err=%v", issued, err)
	}
}

func TestLoyaltyRunEvaluatesAllCustomers(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newLoyaltyEngine(st)
	now := time.Now()

	bigSpender := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, bigSpender.ID, 15000, now.AddDate(0, 0, -2))

	casual := seedCustomer(t, st, "241662345679")
	seedCompletedOrder(t, st, casual.ID, 2000, now.AddDate(0, 0, -2))

	issued, err := engine.Run(now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if issued != 1 {
		t.Errorf("issued = %d, want 1", issued)
	}
	coupons, _ := st.ListCoupons(bigSpender.ID)
	if len(coupons) != 1 {
		t.Errorf("big spender coupons = %+v", coupons)
	}
}
