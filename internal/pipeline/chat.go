package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranckSowax/botpharma/internal/flow"
	"github.com/FranckSowax/botpharma/internal/genai"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/phone"
)

// fallbackReplies are the canned answers used when the model is unreachable,
// keyed by classified intent.
var fallbackReplies = map[models.Intent]string{
	models.IntentGreeting: "Bonjour ! 👋 Je suis Léa de la Parapharmacie Libreville. Comment puis-je vous aider aujourd'hui ?",
	models.IntentProductSearch: "Je rencontre un petit souci technique pour la recherche. " +
		"Pouvez-vous préciser le produit ou la marque que vous cherchez ? Je reviens vers vous très vite.",
	models.IntentQuestion: "Bonne question ! Un petit souci technique m'empêche de répondre tout de suite. " +
		"Réessayez dans un instant ou écrivez \"conseiller\" pour parler à un membre de l'équipe.",
	models.IntentOrder: "Je ne peux pas traiter votre commande pour le moment. " +
		"Écrivez \"conseiller\" et un membre de l'équipe finalisera votre commande rapidement.",
	models.IntentComplaint: "Je suis désolée pour ce désagrément. 🙏 " +
		"Écrivez \"conseiller\" pour être mis en relation immédiate avec notre équipe.",
	models.IntentPromotions: "Nos promotions évoluent chaque semaine ! Repassez dans un instant " +
		"ou demandez un conseiller pour connaître les offres du moment.",
	models.IntentOther: "Désolée, je n'ai pas bien compris. Pouvez-vous reformuler ? " +
		"Vous pouvez aussi écrire \"conseiller\" pour parler à un membre de l'équipe.",
}

// handleChat runs classification and reply generation for a message that
// passed the consent gate and the escalation rules.
func (h *Handler) handleChat(ctx context.Context, user *models.User, conv *models.Conversation, body string) (*Result, error) {
	intent := models.IntentOther
	ir, err := h.ai.ClassifyIntent(ctx, body)
	if err != nil {
		slog.Warn("Pipeline: intent classification failed, defaulting", "error", err)
	} else {
		intent = ir.Intent
	}
	slog.Debug("Pipeline: intent classified", "intent", intent, "conversation_id", conv.ID)

	// The machine owns consent and handoff; everywhere else the classified
	// intent drives the persisted state.
	state := flow.State(conv.CurrentState)
	if state != flow.StateConsent && state != flow.StateHumanHandoff {
		conv.CurrentState = flow.StateForIntent(intent)
		if err := h.store.UpdateConversation(conv); err != nil {
			slog.Error("Pipeline: failed to persist intent state", "error", err, "conversation_id", conv.ID)
		}
	}

	if intent == models.IntentProductSearch {
		if res, handled := h.recommendProducts(ctx, user, conv, body); handled {
			return res, nil
		}
	}

	reply, fallback := h.generateReply(ctx, user, conv, body, intent)
	metadata := map[string]string{"intent": string(intent)}
	if fallback {
		metadata["fallback"] = "true"
	}
	if err := h.sendAndRecord(ctx, user, conv, reply, metadata); err != nil {
		return nil, err
	}
	return &Result{Success: true, Reply: reply, Intent: intent, Fallback: fallback}, nil
}

// generateReply asks the model for an answer; when the call fails it falls
// back to the canned reply for the intent the caller already classified.
func (h *Handler) generateReply(ctx context.Context, user *models.User, conv *models.Conversation, body string, intent models.Intent) (string, bool) {
	history, err := h.store.ListRecentMessages(conv.ID, h.historyLimit)
	if err != nil {
		slog.Error("Pipeline: failed to load history", "error", err, "conversation_id", conv.ID)
	}
	chatHistory := make([]genai.ChatMessage, 0, len(history))
	for _, m := range history {
		role := "assistant"
		if m.Sender == models.SenderUser {
			role = "user"
		}
		chatHistory = append(chatHistory, genai.ChatMessage{Role: role, Content: m.Content})
	}

	reply, err := h.ai.GenerateReply(ctx, genai.ReplyContext{
		CustomerName:      user.Name,
		Profile:           user.Profile,
		ConversationState: conv.CurrentState,
		History:           chatHistory,
		UserMessage:       body,
	})
	if err != nil {
		slog.Warn("Pipeline: reply generation failed, using fallback", "error", err, "state", conv.CurrentState)
		reply, ok := fallbackReplies[intent]
		if !ok {
			reply = fallbackReplies[models.IntentOther]
		}
		return reply, true
	}
	return reply, false
}

// recommendProducts runs the catalog recommendation sub-flow. It reports
// handled=false when the catalog is empty or the model call fails, letting
// the caller fall back to a plain reply.
func (h *Handler) recommendProducts(ctx context.Context, user *models.User, conv *models.Conversation, need string) (*Result, bool) {
	products, err := h.store.ListActiveProducts(h.catalogLimit)
	if err != nil || len(products) == 0 {
		if err != nil {
			slog.Error("Pipeline: failed to load catalog", "error", err)
		}
		return nil, false
	}

	rec, err := h.ai.RecommendProducts(ctx, need, user.Profile, products)
	if err != nil || rec == nil || len(rec.Recommendations) == 0 {
		if err != nil {
			slog.Warn("Pipeline: recommendation failed", "error", err)
		}
		return nil, false
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	intro := rec.ConversationResponse
	if intro == "" {
		intro = "Voici ce que je vous recommande : ✨"
	}
	if err := h.sendAndRecord(ctx, user, conv, intro, map[string]string{"intent": string(models.IntentProductSearch)}); err != nil {
		slog.Error("Pipeline: failed to send recommendation intro", "error", err)
		return nil, false
	}

	var recommended []string
	for _, r := range rec.Recommendations {
		p, ok := byID[r.ProductID]
		if !ok {
			continue
		}
		recommended = append(recommended, p.ID)
		caption := fmt.Sprintf("%s — %d FCFA", p.Name, p.PriceCFA)
		if r.Reasoning != "" {
			caption += "\n" + r.Reasoning
		}
		if p.ImageURL != "" {
			err = h.msg.SendMediaMessage(ctx, user.PhoneNumber, caption, p.ImageURL)
		} else {
			err = h.msg.SendMessage(ctx, user.PhoneNumber, caption)
		}
		if err != nil {
			slog.Error("Pipeline: failed to send product card", "error", err, "product_id", p.ID)
			continue
		}
		if err := h.store.AddRecommendation(conv.ID, p.ID, r.Score); err != nil {
			slog.Error("Pipeline: failed to persist recommendation", "error", err, "product_id", p.ID)
		}
	}
	if len(recommended) == 0 {
		return nil, false
	}

	if h.cartBaseURL != "" {
		link := fmt.Sprintf("🛒 Commandez en un clic : %s?products=%s&phone=%s",
			h.cartBaseURL, strings.Join(recommended, ","), phone.Normalize(user.PhoneNumber))
		if err := h.msg.SendMessage(ctx, user.PhoneNumber, link); err != nil {
			slog.Error("Pipeline: failed to send cart link", "error", err)
		}
	}

	conv.Data.RecommendedProducts = recommended
	if err := h.store.UpdateConversation(conv); err != nil {
		slog.Error("Pipeline: failed to persist recommended products", "error", err, "conversation_id", conv.ID)
	}
	return &Result{Success: true, Reply: intro, Intent: models.IntentProductSearch}, true
}
