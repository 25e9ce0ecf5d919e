package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

func seedCustomer(t *testing.T, st *store.InMemoryStore, phoneNumber string) *models.User {
	t.Helper()
	user, err := st.UpsertUser(phoneNumber, "Awa")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	return user
}

func seedCompletedOrder(t *testing.T, st *store.InMemoryStore, userID string, amount int64, completedAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		UserID:      userID,
		Status:      models.OrderCompleted,
		TotalAmount: amount,
		CreatedAt:   completedAt,
		UpdatedAt:   completedAt,
	}
	if err := st.AddOrder(order); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	return order
}

func TestDetectDeliveredOrdersSchedulesOncePerOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewSurveyEngine(st, &messaging.MockService{}, DefaultSurveyConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	order := seedCompletedOrder(t, st, user.ID, 15000, now.AddDate(0, 0, -1))

	scheduled, err := engine.DetectDeliveredOrders(now)
	if err != nil {
		t.Fatalf("DetectDeliveredOrders: %v", err)
	}
	if scheduled != 1 {
		t.Fatalf("scheduled = %d, want 1", scheduled)
	}

	// The sweep is re-run daily; the same order must not schedule twice.
	scheduled, err = engine.DetectDeliveredOrders(now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if scheduled != 0 {
		t.Errorf("second run scheduled %d surveys", scheduled)
	}

	// The survey goes out DelayDays after the order was picked up.
	due, _ := st.ListDueCampaignMessages(models.CampaignSurvey, now.AddDate(0, 0, 2))
	if len(due) != 1 {
		t.Fatalf("got %d due messages, want 1", len(due))
	}
	want := now.AddDate(0, 0, DefaultSurveyConfig().DelayDays)
	if !due[0].ScheduledFor.Equal(want) {
		t.Errorf("scheduled for %v, want %v", due[0].ScheduledFor, want)
	}
	if due[0].Metadata.OrderID != order.ID {
		t.Errorf("metadata order = %q", due[0].Metadata.OrderID)
	}
}

func TestDetectIgnoresOrdersOutsideWindow(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewSurveyEngine(st, &messaging.MockService{}, DefaultSurveyConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	seedCompletedOrder(t, st, user.ID, 15000, now.AddDate(0, 0, -30))

	scheduled, err := engine.DetectDeliveredOrders(now)
	if err != nil {
		t.Fatalf("DetectDeliveredOrders: %v", err)
	}
	if scheduled != 0 {
		t.Errorf("old order scheduled a survey")
	}
}

func TestDeliverSendsOnlyDueSurveys(t *testing.T) {
	st := store.NewInMemoryStore()
	msg := &messaging.MockService{}
	engine := NewSurveyEngine(st, msg, DefaultSurveyConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	dueMsg := &models.CampaignMessage{UserID: user.ID, Type: models.CampaignSurvey, Content: surveyPrompt, ScheduledFor: now.Add(-time.Hour)}
	futureMsg := &models.CampaignMessage{UserID: user.ID, Type: models.CampaignSurvey, Content: surveyPrompt, ScheduledFor: now.Add(time.Hour)}
	for _, cm := range []*models.CampaignMessage{dueMsg, futureMsg} {
		if err := st.CreateCampaignMessage(cm); err != nil {
			t.Fatalf("CreateCampaignMessage: %v", err)
		}
	}

	sent, err := engine.Deliver(context.Background(), now)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if got := msg.Messages(); len(got) != 1 || got[0].Body != surveyPrompt {
		t.Errorf("delivered = %+v", got)
	}

	// A second sweep finds nothing left.
	sent, _ = engine.Deliver(context.Background(), now)
	if sent != 0 {
		t.Errorf("second sweep sent %d", sent)
	}
}

func TestDeliverKeepsMessagePendingWhenGatewayFails(t *testing.T) {
	st := store.NewInMemoryStore()
	msg := &messaging.MockService{Err: errors.New("gateway down")}
	engine := NewSurveyEngine(st, msg, DefaultSurveyConfig())
	now := time.Now()

	user := seedCustomer(t, st, "241662345678")
	cm := &models.CampaignMessage{UserID: user.ID, Type: models.CampaignSurvey, Content: surveyPrompt, ScheduledFor: now.Add(-time.Hour)}
	if err := st.CreateCampaignMessage(cm); err != nil {
		t.Fatalf("CreateCampaignMessage: %v", err)
	}

	sent, err := engine.Deliver(context.Background(), now)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
	due, _ := st.ListDueCampaignMessages(models.CampaignSurvey, now)
	if len(due) != 1 {
		t.Error("failed delivery lost the pending message")
	}
}

func TestProcessSurveyResponseBands(t *testing.T) {
	cases := []struct {
		rating     int
		wantPart   string
		wantAlerts int
	}{
		{5, ThankYouPromoCode, 0},
		{4, ThankYouPromoCode, 0},
		{3, "expérience parfaite", 0},
		{2, "désolés", 1},
		{1, "désolés", 1},
	}
	for _, c := range cases {
		st := store.NewInMemoryStore()
		msg := &messaging.MockService{}
		engine := NewSurveyEngine(st, msg, DefaultSurveyConfig())
		now := time.Now()

		user := seedCustomer(t, st, "241662345678")
		if _, _, err := st.CreateSurveyIfAbsent(user.ID, "order-1"); err != nil {
			t.Fatalf("CreateSurveyIfAbsent: %v", err)
		}

		reply, err := engine.ProcessSurveyResponse(context.Background(), user.ID, c.rating, "", now)
		if err != nil {
			t.Fatalf("rating %d: %v", c.rating, err)
		}
		if !strings.Contains(reply, c.wantPart) {
			t.Errorf("rating %d: reply = %q, want %q", c.rating, reply, c.wantPart)
		}
		alerts, _ := st.ListPendingAlerts()
		if len(alerts) != c.wantAlerts {
			t.Errorf("rating %d: %d alerts, want %d", c.rating, len(alerts), c.wantAlerts)
		}
		if c.wantAlerts > 0 && !strings.Contains(alerts[0].Reason, "order-1") {
			t.Errorf("rating %d: alert reason = %q", c.rating, alerts[0].Reason)
		}

		// The answer is queued, not pushed; the sweep carries it out.
		due, _ := st.ListDueCampaignMessages(models.CampaignSurvey, now)
		if len(due) != 1 || due[0].Content != reply {
			t.Fatalf("rating %d: queued = %+v", c.rating, due)
		}
		if !due[0].Metadata.IsThankYou || due[0].Metadata.OrderID != "order-1" {
			t.Errorf("rating %d: metadata = %+v", c.rating, due[0].Metadata)
		}
		if len(msg.Messages()) != 0 {
			t.Errorf("rating %d: reply pushed outside the sweep: %+v", c.rating, msg.Messages())
		}
		sent, err := engine.Deliver(context.Background(), now)
		if err != nil {
			t.Fatalf("rating %d: Deliver: %v", c.rating, err)
		}
		if sent != 1 {
			t.Fatalf("rating %d: sent = %d, want 1", c.rating, sent)
		}
		if got := msg.Messages(); len(got) != 1 || got[0].Body != reply {
			t.Errorf("rating %d: delivered = %+v", c.rating, got)
		}
	}
}

func TestProcessSurveyResponseValidation(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewSurveyEngine(st, &messaging.MockService{}, DefaultSurveyConfig())
	now := time.Now()
	user := seedCustomer(t, st, "241662345678")

	if _, err := engine.ProcessSurveyResponse(context.Background(), user.ID, 7, "", now); !errors.Is(err, models.ErrInvalidRating) {
		t.Errorf("rating 7: err = %v", err)
	}
	if _, err := engine.ProcessSurveyResponse(context.Background(), user.ID, 4, "", now); !errors.Is(err, models.ErrNoPendingSurvey) {
		t.Errorf("no survey: err = %v", err)
	}

	if _, _, err := st.CreateSurveyIfAbsent(user.ID, "order-1"); err != nil {
		t.Fatalf("CreateSurveyIfAbsent: %v", err)
	}
	if _, err := engine.ProcessSurveyResponse(context.Background(), user.ID, 4, "", now); err != nil {
		t.Fatalf("valid rating: %v", err)
	}
	// The survey was consumed; another rating has nothing to attach to.
	if _, err := engine.ProcessSurveyResponse(context.Background(), user.ID, 4, "", now); !errors.Is(err, models.ErrNoPendingSurvey) {
		t.Errorf("consumed survey: err = %v", err)
	}
}
