package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranckSowax/botpharma/internal/flow"
	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
)

// Button identifiers shared between the consent gate and the main menu.
const (
	ButtonConsentYes = "consent_yes"
	ButtonConsentNo  = "consent_no"
	ButtonProducts   = "option_products"
	ButtonAdvice     = "option_advice"
	ButtonPromotions = "option_promotions"
)

var consentButtons = []messaging.Button{
	{ID: ButtonConsentYes, Title: "✅ J'accepte"},
	{ID: ButtonConsentNo, Title: "❌ Non merci"},
}

var menuButtons = []messaging.Button{
	{ID: ButtonProducts, Title: "🛍️ Nos produits"},
	{ID: ButtonAdvice, Title: "💊 Conseil santé"},
	{ID: ButtonPromotions, Title: "🎁 Promotions"},
}

const consentPrompt = "Bonjour ! 👋 Je suis Léa, l'assistante virtuelle de la Parapharmacie Libreville.\n\n" +
	"Avant de commencer, j'ai besoin de votre accord pour traiter vos données " +
	"(historique de conversation et préférences) afin de mieux vous conseiller. " +
	"Vous pouvez demander leur suppression à tout moment en écrivant \"supprimer\"."

const menuPrompt = "Parfait ! 🎉 Comment puis-je vous aider aujourd'hui ?"

const consentDeniedReply = "Je comprends tout à fait. Sans votre accord je ne peux pas " +
	"conserver notre conversation. N'hésitez pas à revenir quand vous voudrez, " +
	"ou à passer directement en boutique. À bientôt ! 👋"

// affirmative matches the ways customers say yes to the consent prompt.
func affirmative(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	if lower == ButtonConsentYes {
		return true
	}
	for _, w := range []string{"oui", "j'accepte", "accepte", "d'accord", "ok", "yes"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// negative matches explicit refusals of the consent prompt.
func negative(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	if lower == ButtonConsentNo {
		return true
	}
	for _, w := range []string{"non", "refuse", "pas d'accord", "no"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// handleConsentGate drives the conversation until consent is given or denied.
// Nothing reaches the model before this gate is passed.
func (h *Handler) handleConsentGate(ctx context.Context, user *models.User, conv *models.Conversation, body string) (*Result, error) {
	machine := flow.NewMachine(flow.State(conv.CurrentState), conv.Data)

	switch machine.State() {
	case flow.StateGreeting:
		machine.Transition(flow.EventRequestConsent, models.ConversationData{})
		if err := h.persistMachine(conv, machine); err != nil {
			return nil, err
		}
		if err := h.msg.SendButtonsMessage(ctx, user.PhoneNumber, consentPrompt, consentButtons); err != nil {
			return nil, fmt.Errorf("failed to send consent prompt: %w", err)
		}
		h.recordAssistant(conv, consentPrompt)
		return &Result{Success: true, Reply: consentPrompt}, nil

	case flow.StateConsent:
		switch {
		case affirmative(body):
			machine.Transition(flow.EventConsentGiven, models.ConversationData{})
			if err := h.persistMachine(conv, machine); err != nil {
				return nil, err
			}
			if err := h.store.AddConsentLog(user.ID, true); err != nil {
				slog.Error("Pipeline: failed to record consent", "error", err, "user_id", user.ID)
			}
			if err := h.msg.SendButtonsMessage(ctx, user.PhoneNumber, menuPrompt, menuButtons); err != nil {
				return nil, fmt.Errorf("failed to send menu: %w", err)
			}
			h.recordAssistant(conv, menuPrompt)
			return &Result{Success: true, Reply: menuPrompt}, nil

		case negative(body):
			machine.Transition(flow.EventConsentDenied, models.ConversationData{})
			conv.Status = models.ConversationClosed
			if err := h.persistMachine(conv, machine); err != nil {
				return nil, err
			}
			if err := h.store.AddConsentLog(user.ID, false); err != nil {
				slog.Error("Pipeline: failed to record consent refusal", "error", err, "user_id", user.ID)
			}
			if err := h.msg.SendMessage(ctx, user.PhoneNumber, consentDeniedReply); err != nil {
				return nil, fmt.Errorf("failed to send refusal reply: %w", err)
			}
			h.recordAssistant(conv, consentDeniedReply)
			return &Result{Success: true, Reply: consentDeniedReply}, nil

		default:
			// Neither yes nor no: repeat the question.
			if err := h.msg.SendButtonsMessage(ctx, user.PhoneNumber, consentPrompt, consentButtons); err != nil {
				return nil, fmt.Errorf("failed to resend consent prompt: %w", err)
			}
			return &Result{Success: true, Reply: consentPrompt}, nil
		}

	default:
		// Legacy conversation rows can carry a later state without the
		// consent flag; treat them as consented rather than restarting.
		conv.Data.ConsentGiven = true
		if err := h.store.UpdateConversation(conv); err != nil {
			return nil, fmt.Errorf("failed to repair consent flag: %w", err)
		}
		return h.handleChat(ctx, user, conv, body)
	}
}

func (h *Handler) persistMachine(conv *models.Conversation, machine *flow.Machine) error {
	conv.CurrentState = string(machine.State())
	conv.Data = machine.Data()
	if err := h.store.UpdateConversation(conv); err != nil {
		return fmt.Errorf("failed to persist conversation state: %w", err)
	}
	return nil
}

func (h *Handler) recordAssistant(conv *models.Conversation, content string) {
	if err := h.store.AddMessage(&models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderAssistant,
		Content:        content,
		Timestamp:      time.Now(),
	}); err != nil {
		slog.Error("Pipeline: failed to persist assistant message", "error", err, "conversation_id", conv.ID)
	}
}

// parseMenuSelection maps a button reply or a typed number to a menu event
// when the conversation is sitting at the main menu.
func parseMenuSelection(state flow.State, body string) (flow.Event, bool) {
	if state != flow.StateMenu {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(body)) {
	case ButtonProducts, "1", "produits", "nos produits":
		return flow.EventProductSearch, true
	case ButtonAdvice, "2", "conseil", "conseil santé", "conseil sante":
		return flow.EventHealthAdvice, true
	case ButtonPromotions, "3", "promotions", "promos":
		return flow.EventPromotions, true
	}
	return "", false
}

var menuBranchPrompts = map[flow.Event]string{
	flow.EventProductSearch: "Très bon choix ! 🛍️ Dites-moi ce que vous recherchez : un produit précis, une marque, ou décrivez-moi simplement votre besoin.",
	flow.EventHealthAdvice:  "Je vous écoute. 💊 Décrivez-moi votre besoin ou votre préoccupation, et je vous orienterai vers les bons produits de parapharmacie.",
	flow.EventPromotions:    "Voici nos offres du moment ! 🎁 Dites-moi quelle catégorie vous intéresse et je vérifie les promotions en cours.",
}

func (h *Handler) handleMenuSelection(ctx context.Context, user *models.User, conv *models.Conversation, event flow.Event) (*Result, error) {
	machine := flow.NewMachine(flow.State(conv.CurrentState), conv.Data)
	machine.Transition(event, models.ConversationData{SelectedOption: string(event)})
	if err := h.persistMachine(conv, machine); err != nil {
		return nil, err
	}
	prompt := menuBranchPrompts[event]
	if err := h.sendAndRecord(ctx, user, conv, prompt, nil); err != nil {
		return nil, err
	}
	return &Result{Success: true, Reply: prompt}, nil
}
