package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

// ThankYouPromoCode is the fixed code offered after a positive survey rating.
const ThankYouPromoCode = "MERCI10"

// ThankYouDiscountPct is the discount attached to ThankYouPromoCode.
const ThankYouDiscountPct = 10

const surveyPrompt = "Bonjour ! 😊 Votre commande de la Parapharmacie Libreville est arrivée il y a quelques jours.\n\n" +
	"Sur une échelle de 1 à 5, comment évaluez-vous votre expérience ?\n" +
	"Répondez simplement avec un chiffre de 1 à 5."

// SurveyEngine schedules and processes post-delivery satisfaction surveys.
type SurveyEngine struct {
	store store.Store
	msg   messaging.Service
	cfg   SurveyConfig
}

// NewSurveyEngine creates a survey engine.
func NewSurveyEngine(st store.Store, msg messaging.Service, cfg SurveyConfig) *SurveyEngine {
	return &SurveyEngine{store: st, msg: msg, cfg: cfg}
}

// DetectDeliveredOrders scans recently completed orders and schedules one
// survey per order, going out DelayDays from now. Re-running over the same
// orders is a no-op.
func (e *SurveyEngine) DetectDeliveredOrders(now time.Time) (int, error) {
	since := now.AddDate(0, 0, -e.cfg.WindowDays)
	orders, err := e.store.ListCompletedOrdersSince(since)
	if err != nil {
		return 0, fmt.Errorf("failed to list delivered orders: %w", err)
	}

	scheduled := 0
	for _, order := range orders {
		survey, created, err := e.store.CreateSurveyIfAbsent(order.UserID, order.ID)
		if err != nil {
			slog.Error("SurveyEngine: failed to create survey", "error", err, "order_id", order.ID)
			continue
		}
		if !created {
			continue
		}
		cm := &models.CampaignMessage{
			UserID:       order.UserID,
			Type:         models.CampaignSurvey,
			Content:      surveyPrompt,
			ScheduledFor: now.AddDate(0, 0, e.cfg.DelayDays),
			Metadata:     models.CampaignMetadata{SurveyID: survey.ID, OrderID: order.ID},
		}
		if err := e.store.CreateCampaignMessage(cm); err != nil {
			slog.Error("SurveyEngine: failed to schedule survey message", "error", err, "survey_id", survey.ID)
			continue
		}
		scheduled++
		slog.Info("SurveyEngine: survey scheduled", "survey_id", survey.ID, "order_id", order.ID, "scheduled_for", cm.ScheduledFor)
	}
	return scheduled, nil
}

// Deliver sends every survey message that is due and marks it sent.
func (e *SurveyEngine) Deliver(ctx context.Context, now time.Time) (int, error) {
	return deliverDue(ctx, e.store, e.msg, models.CampaignSurvey, now)
}

// ProcessSurveyResponse records a rating for the user's pending survey and
// answers according to the satisfaction band: 4-5 earns a thank-you promo
// code, 3 asks for suggestions, 1-2 apologizes and alerts an advisor. The
// answer is queued as an immediately due campaign message and goes out with
// the next delivery sweep, like every other survey traffic.
func (e *SurveyEngine) ProcessSurveyResponse(ctx context.Context, userID string, rating int, feedback string, now time.Time) (string, error) {
	if rating < 1 || rating > 5 {
		return "", models.ErrInvalidRating
	}
	survey, err := e.store.LatestPendingSurvey(userID)
	if err != nil {
		return "", fmt.Errorf("failed to load pending survey: %w", err)
	}
	if survey == nil {
		return "", models.ErrNoPendingSurvey
	}
	if err := e.store.SubmitSurvey(survey.ID, rating, feedback, now); err != nil {
		return "", fmt.Errorf("failed to submit survey: %w", err)
	}
	slog.Info("SurveyEngine: survey submitted", "survey_id", survey.ID, "rating", rating)

	var reply string
	switch {
	case rating >= 4:
		reply = fmt.Sprintf("Merci beaucoup pour votre note de %d/5 ! 🌟\n\n"+
			"Pour vous remercier, voici un code de réduction de %d%% sur votre prochaine commande : %s",
			rating, ThankYouDiscountPct, ThankYouPromoCode)
	case rating == 3:
		reply = "Merci pour votre retour ! Nous aimerions faire mieux. " +
			"Qu'est-ce qui aurait pu rendre votre expérience parfaite ?"
	default:
		reply = "Nous sommes sincèrement désolés que votre expérience n'ait pas été à la hauteur. 🙏 " +
			"Un membre de notre équipe va vous contacter très rapidement pour arranger cela."
		reason := fmt.Sprintf("Note de satisfaction %d/5 pour la commande %s", rating, survey.OrderID)
		if feedback != "" {
			reason += fmt.Sprintf(" — %q", feedback)
		}
		if err := e.store.CreateAlert(&models.AdvisorAlert{Reason: reason}); err != nil {
			slog.Error("SurveyEngine: failed to create advisor alert", "error", err, "survey_id", survey.ID)
		}
	}

	cm := &models.CampaignMessage{
		UserID:       userID,
		Type:         models.CampaignSurvey,
		Content:      reply,
		ScheduledFor: now,
		Metadata:     models.CampaignMetadata{SurveyID: survey.ID, OrderID: survey.OrderID, IsThankYou: true},
	}
	if err := e.store.CreateCampaignMessage(cm); err != nil {
		return "", fmt.Errorf("failed to queue survey reply: %w", err)
	}
	return reply, nil
}

// deliverDue is the shared delivery sweep: send every due pending message of
// one campaign type, marking each sent only after the gateway accepted it.
func deliverDue(ctx context.Context, st store.Store, msg messaging.Service, ct models.CampaignType, now time.Time) (int, error) {
	due, err := st.ListDueCampaignMessages(ct, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due %s messages: %w", ct, err)
	}
	sent := 0
	for _, cm := range due {
		user, err := st.GetUser(cm.UserID)
		if err != nil || user == nil {
			slog.Error("automation: campaign user missing", "type", ct, "campaign_id", cm.ID, "user_id", cm.UserID)
			continue
		}
		if err := msg.SendMessage(ctx, user.PhoneNumber, cm.Content); err != nil {
			slog.Error("automation: campaign delivery failed", "error", err, "type", ct, "campaign_id", cm.ID)
			continue
		}
		if err := st.MarkCampaignMessageSent(cm.ID, now); err != nil {
			slog.Error("automation: failed to mark campaign sent", "error", err, "campaign_id", cm.ID)
			continue
		}
		sent++
	}
	if sent > 0 {
		slog.Info("automation: campaign messages delivered", "type", ct, "sent", sent)
	}
	return sent, nil
}
