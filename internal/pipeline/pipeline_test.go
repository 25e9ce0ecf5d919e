package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FranckSowax/botpharma/internal/flow"
	"github.com/FranckSowax/botpharma/internal/genai"
	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

// mockAI is a ClientInterface double with per-method overrides.
type mockAI struct {
	ReplyFn     func(genai.ReplyContext) (string, error)
	IntentFn    func(string) (models.IntentResult, error)
	RecommendFn func(string, models.ProfileData, []models.Product) (*genai.RecommendationResult, error)
}

func (m *mockAI) GenerateReply(_ context.Context, rc genai.ReplyContext) (string, error) {
	if m.ReplyFn != nil {
		return m.ReplyFn(rc)
	}
	return "D'accord !", nil
}

func (m *mockAI) ClassifyIntent(_ context.Context, message string) (models.IntentResult, error) {
	if m.IntentFn != nil {
		return m.IntentFn(message)
	}
	return models.IntentResult{Intent: models.IntentQuestion, Confidence: 0.9}, nil
}

func (m *mockAI) RecommendProducts(_ context.Context, need string, profile models.ProfileData, products []models.Product) (*genai.RecommendationResult, error) {
	if m.RecommendFn != nil {
		return m.RecommendFn(need, profile, products)
	}
	return &genai.RecommendationResult{}, nil
}

const testPhone = "241662345678"

func newTestHandler(t *testing.T, ai genai.ClientInterface, opts ...Option) (*Handler, *store.InMemoryStore, *messaging.MockService) {
	t.Helper()
	st := store.NewInMemoryStore()
	msg := &messaging.MockService{}
	if ai == nil {
		ai = &mockAI{}
	}
	return NewHandler(st, ai, msg, opts...), st, msg
}

// seedConsentedConversation creates a user with an open, consented
// conversation sitting at the given state.
func seedConsentedConversation(t *testing.T, st *store.InMemoryStore, state flow.State) (*models.User, *models.Conversation) {
	t.Helper()
	user, err := st.UpsertUser(testPhone, "Awa")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	conv, err := st.CreateConversation(user.ID)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	conv.CurrentState = string(state)
	conv.Data.ConsentGiven = true
	if err := st.UpdateConversation(conv); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}
	return user, conv
}

func incoming(body string) models.IncomingMessage {
	return models.IncomingMessage{From: testPhone, Body: body, Name: "Awa", Timestamp: time.Now()}
}

func TestHandleIncomingRejectsInvalidNumber(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	if _, err := h.HandleIncoming(context.Background(), models.IncomingMessage{From: "33612345678", Body: "bonjour"}); err == nil {
		t.Fatal("expected error for non-Gabon number")
	}
}

func TestHandleIncomingRejectsEmptyBody(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	_, err := h.HandleIncoming(context.Background(), models.IncomingMessage{From: testPhone, Body: "   "})
	if !errors.Is(err, models.ErrEmptyMessageBody) {
		t.Fatalf("err = %v, want ErrEmptyMessageBody", err)
	}
}

func TestFirstContactAsksForConsent(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)

	res, err := h.HandleIncoming(context.Background(), incoming("Bonjour"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Success || res.Reply != consentPrompt {
		t.Errorf("result = %+v", res)
	}

	sent := msg.Messages()
	if len(sent) != 1 {
		t.Fatalf("got %d sends, want 1", len(sent))
	}
	if len(sent[0].Buttons) != 2 {
		t.Errorf("consent prompt carried %d buttons, want 2", len(sent[0].Buttons))
	}

	user, _ := st.GetUserByPhone(testPhone)
	conv, _ := st.GetOpenConversation(user.ID)
	if conv.CurrentState != string(flow.StateConsent) {
		t.Errorf("state = %q, want consent", conv.CurrentState)
	}
	if conv.Data.ConsentGiven {
		t.Error("consent flagged before the customer answered")
	}
}

func TestConsentAcceptedOpensMenu(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)
	ctx := context.Background()

	if _, err := h.HandleIncoming(ctx, incoming("Bonjour")); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	res, err := h.HandleIncoming(ctx, incoming("oui j'accepte"))
	if err != nil {
		t.Fatalf("consent: %v", err)
	}
	if res.Reply != menuPrompt {
		t.Errorf("reply = %q", res.Reply)
	}

	sent := msg.Messages()
	if len(sent[len(sent)-1].Buttons) != 3 {
		t.Errorf("menu carried %d buttons, want 3", len(sent[len(sent)-1].Buttons))
	}

	user, _ := st.GetUserByPhone(testPhone)
	conv, _ := st.GetOpenConversation(user.ID)
	if conv.CurrentState != string(flow.StateMenu) || !conv.Data.ConsentGiven {
		t.Errorf("conversation = state %q consent %v", conv.CurrentState, conv.Data.ConsentGiven)
	}
}

func TestConsentDeniedClosesConversation(t *testing.T) {
	h, st, _ := newTestHandler(t, nil)
	ctx := context.Background()

	_, _ = h.HandleIncoming(ctx, incoming("Bonjour"))
	res, err := h.HandleIncoming(ctx, incoming("non merci"))
	if err != nil {
		t.Fatalf("refusal: %v", err)
	}
	if res.Reply != consentDeniedReply {
		t.Errorf("reply = %q", res.Reply)
	}

	user, _ := st.GetUserByPhone(testPhone)
	if conv, _ := st.GetOpenConversation(user.ID); conv != nil {
		t.Error("conversation still open after refusal")
	}
}

func TestUnclearConsentAnswerRepeatsPrompt(t *testing.T) {
	h, _, msg := newTestHandler(t, nil)
	ctx := context.Background()

	_, _ = h.HandleIncoming(ctx, incoming("Bonjour"))
	res, err := h.HandleIncoming(ctx, incoming("peut-être"))
	if err != nil {
		t.Fatalf("unclear answer: %v", err)
	}
	if res.Reply != consentPrompt {
		t.Errorf("reply = %q, want repeated consent prompt", res.Reply)
	}
	if len(msg.Messages()) != 2 {
		t.Errorf("got %d sends, want 2", len(msg.Messages()))
	}
}

func TestKeywordEscalationAlertsAdvisor(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)
	_, conv := seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("Je veux parler à un conseiller"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Escalated {
		t.Error("result not marked escalated")
	}

	updated, _ := st.GetOpenConversation(conv.UserID)
	if updated.Status != models.ConversationEscalated {
		t.Errorf("status = %q", updated.Status)
	}
	if updated.CurrentState != string(flow.StateHumanHandoff) {
		t.Errorf("state = %q", updated.CurrentState)
	}

	alerts, _ := st.ListPendingAlerts()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if !strings.Contains(alerts[0].Reason, "conseiller") {
		t.Errorf("alert reason = %q", alerts[0].Reason)
	}

	sent := msg.Messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "conseillers") {
		t.Errorf("sent = %+v", sent)
	}
}

func TestHighValueCartEscalates(t *testing.T) {
	h, st, _ := newTestHandler(t, nil)
	user, _ := seedConsentedConversation(t, st, flow.StateQAFlow)
	if err := st.AddOrder(&models.Order{UserID: user.ID, Status: models.OrderPending, TotalAmount: 200000}); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}

	res, err := h.HandleIncoming(context.Background(), incoming("Je valide ma commande"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Escalated {
		t.Error("high-value cart did not escalate")
	}
	alerts, _ := st.ListPendingAlerts()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Reason, "200000 FCFA") {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestEscalatedConversationStaysSilent(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)
	_, conv := seedConsentedConversation(t, st, flow.StateHumanHandoff)
	conv.Status = models.ConversationEscalated
	if err := st.UpdateConversation(conv); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	res, err := h.HandleIncoming(context.Background(), incoming("vous êtes là ?"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Escalated || res.Reply != "" {
		t.Errorf("result = %+v", res)
	}
	if len(msg.Messages()) != 0 {
		t.Errorf("bot replied on an escalated conversation: %+v", msg.Messages())
	}

	msgs, _ := st.ListRecentMessages(conv.ID, 10)
	if len(msgs) != 1 || msgs[0].Sender != models.SenderUser {
		t.Errorf("customer message not persisted: %+v", msgs)
	}
}

func TestDeleteRequestErasesUserData(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)
	seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("supprimer mes données"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Deleted {
		t.Error("result not marked deleted")
	}
	if len(msg.Messages()) != 1 || !strings.Contains(msg.Messages()[0].Body, "supprimées") {
		t.Errorf("confirmation not sent: %+v", msg.Messages())
	}
	if user, _ := st.GetUserByPhone(testPhone); user != nil {
		t.Error("user survived deletion request")
	}
}

func TestMenuSelectionByNumber(t *testing.T) {
	h, st, _ := newTestHandler(t, nil)
	_, conv := seedConsentedConversation(t, st, flow.StateMenu)

	res, err := h.HandleIncoming(context.Background(), incoming("1"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if res.Reply != menuBranchPrompts[flow.EventProductSearch] {
		t.Errorf("reply = %q", res.Reply)
	}
	updated, _ := st.GetOpenConversation(conv.UserID)
	if updated.CurrentState != string(flow.StateProductSearch) {
		t.Errorf("state = %q", updated.CurrentState)
	}
	if updated.Data.SelectedOption != string(flow.EventProductSearch) {
		t.Errorf("selected option = %q", updated.Data.SelectedOption)
	}
}

func TestChatUsesModelReply(t *testing.T) {
	ai := &mockAI{
		IntentFn: func(string) (models.IntentResult, error) {
			return models.IntentResult{Intent: models.IntentQuestion, Confidence: 0.8}, nil
		},
		ReplyFn: func(rc genai.ReplyContext) (string, error) {
			if rc.UserMessage == "" {
				return "", errors.New("empty user message in context")
			}
			return "La vitamine C se prend le matin.", nil
		},
	}
	h, st, msg := newTestHandler(t, ai)
	_, conv := seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("Quand prendre la vitamine C ?"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if res.Fallback {
		t.Error("model reply flagged as fallback")
	}
	if res.Intent != models.IntentQuestion {
		t.Errorf("intent = %q", res.Intent)
	}
	if len(msg.Messages()) != 1 || msg.Messages()[0].Body != "La vitamine C se prend le matin." {
		t.Errorf("sent = %+v", msg.Messages())
	}

	msgs, _ := st.ListRecentMessages(conv.ID, 10)
	if len(msgs) != 2 || msgs[1].Sender != models.SenderAssistant {
		t.Fatalf("history = %+v", msgs)
	}
	if msgs[1].Metadata["intent"] != string(models.IntentQuestion) {
		t.Errorf("assistant metadata = %v", msgs[1].Metadata)
	}
}

func TestChatFallsBackWhenModelFails(t *testing.T) {
	ai := &mockAI{
		IntentFn: func(string) (models.IntentResult, error) {
			return models.IntentResult{Intent: models.IntentQuestion, Confidence: 0.8}, nil
		},
		ReplyFn: func(genai.ReplyContext) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	h, st, msg := newTestHandler(t, ai)
	seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("Quand prendre la vitamine C ?"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Fallback {
		t.Error("fallback not flagged")
	}
	if res.Reply != fallbackReplies[models.IntentQuestion] {
		t.Errorf("reply = %q", res.Reply)
	}
	if len(msg.Messages()) != 1 {
		t.Errorf("got %d sends, want 1", len(msg.Messages()))
	}
}

func TestChatFallbackReusesClassifiedIntent(t *testing.T) {
	classifications := 0
	ai := &mockAI{
		IntentFn: func(string) (models.IntentResult, error) {
			classifications++
			return models.IntentResult{Intent: models.IntentComplaint, Confidence: 0.7}, nil
		},
		ReplyFn: func(genai.ReplyContext) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	h, st, _ := newTestHandler(t, ai)
	seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("Mon colis est abîmé"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if res.Reply != fallbackReplies[models.IntentComplaint] {
		t.Errorf("reply = %q", res.Reply)
	}
	// The intent from the first pass drives the canned reply; the classifier
	// is not consulted a second time.
	if classifications != 1 {
		t.Errorf("classifier called %d times, want 1", classifications)
	}
}

func TestEscalationBypassesConsentGate(t *testing.T) {
	h, st, msg := newTestHandler(t, nil)

	res, err := h.HandleIncoming(context.Background(), incoming("Je veux parler à un conseiller"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !res.Escalated {
		t.Error("unconsented customer asking for a human was not escalated")
	}

	// The handoff acknowledgment is the only outbound message, no consent
	// prompt first.
	sent := msg.Messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "conseillers") {
		t.Errorf("sent = %+v", sent)
	}

	user, _ := st.GetUserByPhone(testPhone)
	conv, _ := st.GetOpenConversation(user.ID)
	if conv.Status != models.ConversationEscalated || conv.CurrentState != string(flow.StateHumanHandoff) {
		t.Errorf("conversation = status %q state %q", conv.Status, conv.CurrentState)
	}
	if alerts, _ := st.ListPendingAlerts(); len(alerts) != 1 {
		t.Errorf("got %d alerts, want 1", len(alerts))
	}
}

func TestProductSearchSendsRecommendations(t *testing.T) {
	ai := &mockAI{
		IntentFn: func(string) (models.IntentResult, error) {
			return models.IntentResult{Intent: models.IntentProductSearch, Confidence: 0.9}, nil
		},
		RecommendFn: func(_ string, _ models.ProfileData, products []models.Product) (*genai.RecommendationResult, error) {
			return &genai.RecommendationResult{
				ConversationResponse: "Voici deux options pour vous :",
				Recommendations: []genai.Recommendation{
					{ProductID: products[0].ID, Score: 0.95, Reasoning: "Riche en vitamine C"},
					{ProductID: products[1].ID, Score: 0.80},
				},
			}, nil
		},
	}
	h, st, msg := newTestHandler(t, ai, WithCartBaseURL("https://shop.example/cart"))
	_, conv := seedConsentedConversation(t, st, flow.StateQAFlow)

	st.AddProduct(&models.Product{ID: "p1", Name: "Vitamine C 500", PriceCFA: 8500, ImageURL: "https://img.example/p1.jpg", Active: true})
	st.AddProduct(&models.Product{ID: "p2", Name: "Magnésium marin", PriceCFA: 12000, Active: true})

	res, err := h.HandleIncoming(context.Background(), incoming("je cherche des vitamines"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if res.Reply != "Voici deux options pour vous :" {
		t.Errorf("reply = %q", res.Reply)
	}

	sent := msg.Messages()
	// Intro, two product cards, cart link.
	if len(sent) != 4 {
		t.Fatalf("got %d sends, want 4: %+v", len(sent), sent)
	}
	if sent[1].MediaURL != "https://img.example/p1.jpg" || !strings.Contains(sent[1].Body, "8500 FCFA") {
		t.Errorf("first card = %+v", sent[1])
	}
	if !strings.Contains(sent[1].Body, "Riche en vitamine C") {
		t.Errorf("reasoning missing from card: %q", sent[1].Body)
	}
	if sent[2].MediaURL != "" || !strings.Contains(sent[2].Body, "Magnésium marin") {
		t.Errorf("second card = %+v", sent[2])
	}
	link := sent[3].Body
	if !strings.Contains(link, "https://shop.example/cart?products=p1,p2&phone="+testPhone) {
		t.Errorf("cart link = %q", link)
	}

	updated, _ := st.GetOpenConversation(conv.UserID)
	if len(updated.Data.RecommendedProducts) != 2 {
		t.Errorf("recommended products = %v", updated.Data.RecommendedProducts)
	}
}

func TestProductSearchFallsBackOnEmptyCatalog(t *testing.T) {
	ai := &mockAI{
		IntentFn: func(string) (models.IntentResult, error) {
			return models.IntentResult{Intent: models.IntentProductSearch, Confidence: 0.9}, nil
		},
		ReplyFn: func(genai.ReplyContext) (string, error) {
			return "Nous recevons de nouveaux produits bientôt.", nil
		},
	}
	h, st, msg := newTestHandler(t, ai)
	seedConsentedConversation(t, st, flow.StateQAFlow)

	res, err := h.HandleIncoming(context.Background(), incoming("je cherche des vitamines"))
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if res.Reply != "Nous recevons de nouveaux produits bientôt." {
		t.Errorf("reply = %q", res.Reply)
	}
	if len(msg.Messages()) != 1 {
		t.Errorf("got %d sends, want 1", len(msg.Messages()))
	}
}
