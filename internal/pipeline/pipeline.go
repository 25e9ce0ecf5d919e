// Package pipeline processes incoming WhatsApp messages end to end.
//
// For each message it resolves the user, loads the open conversation, applies
// the consent gate and escalation rules, classifies intent, generates the
// reply and persists both sides of the exchange. Messages from the same user
// are serialized; messages from different users run concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FranckSowax/botpharma/internal/flow"
	"github.com/FranckSowax/botpharma/internal/genai"
	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/phone"
	"github.com/FranckSowax/botpharma/internal/store"
)

// DefaultHistoryLimit is how many prior messages are handed to the model as
// conversation context.
const DefaultHistoryLimit = 10

// Result reports what the pipeline did with one incoming message.
type Result struct {
	Success   bool
	Reply     string
	Intent    models.Intent
	Fallback  bool
	Escalated bool
	Deleted   bool
}

// Opts holds configuration options for the pipeline handler.
type Opts struct {
	Matcher      *flow.EscalationMatcher
	CartBaseURL  string
	HistoryLimit int
	CatalogLimit int
}

// Option defines a configuration option for the pipeline handler.
type Option func(*Opts)

// WithEscalationMatcher overrides the default escalation rules.
func WithEscalationMatcher(m *flow.EscalationMatcher) Option {
	return func(o *Opts) { o.Matcher = m }
}

// WithCartBaseURL sets the e-commerce cart URL used in recommendation links.
func WithCartBaseURL(url string) Option {
	return func(o *Opts) { o.CartBaseURL = url }
}

// WithHistoryLimit overrides how much history is handed to the model.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) { o.HistoryLimit = n }
}

// Handler is the incoming message pipeline.
type Handler struct {
	store        store.Store
	ai           genai.ClientInterface
	msg          messaging.Service
	matcher      *flow.EscalationMatcher
	cartBaseURL  string
	historyLimit int
	catalogLimit int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewHandler creates a pipeline handler.
func NewHandler(st store.Store, ai genai.ClientInterface, msg messaging.Service, opts ...Option) *Handler {
	cfg := Opts{HistoryLimit: DefaultHistoryLimit, CatalogLimit: 20}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Matcher == nil {
		cfg.Matcher = flow.NewEscalationMatcher()
	}
	return &Handler{
		store:        st,
		ai:           ai,
		msg:          msg,
		matcher:      cfg.Matcher,
		cartBaseURL:  cfg.CartBaseURL,
		historyLimit: cfg.HistoryLimit,
		catalogLimit: cfg.CatalogLimit,
		locks:        make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing one user's messages.
func (h *Handler) userLock(phoneNumber string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[phoneNumber]
	if !ok {
		l = &sync.Mutex{}
		h.locks[phoneNumber] = l
	}
	return l
}

// HandleIncoming processes one incoming customer message.
func (h *Handler) HandleIncoming(ctx context.Context, in models.IncomingMessage) (*Result, error) {
	normalized := phone.Normalize(in.From)
	if !phone.IsValidGabonNumber(normalized) {
		slog.Warn("Pipeline.HandleIncoming: invalid sender number", "from", in.From)
		return nil, fmt.Errorf("invalid sender number %q", in.From)
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, models.ErrEmptyMessageBody
	}

	lock := h.userLock(normalized)
	lock.Lock()
	defer lock.Unlock()

	user, err := h.store.UpsertUser(normalized, in.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	conv, err := h.store.GetOpenConversation(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		conv, err = h.store.CreateConversation(user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		slog.Info("Pipeline.HandleIncoming: conversation opened", "user_id", user.ID, "conversation_id", conv.ID)
	}

	if err := h.store.AddMessage(&models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderUser,
		Content:        body,
		Timestamp:      in.Timestamp,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist incoming message: %w", err)
	}

	// An escalated conversation belongs to the human advisor; the bot stays
	// silent until the advisor resolves it.
	if conv.Status == models.ConversationEscalated {
		slog.Debug("Pipeline.HandleIncoming: conversation escalated, staying silent", "conversation_id", conv.ID)
		return &Result{Success: true, Escalated: true}, nil
	}

	if h.matcher.IsDeleteRequest(body) {
		return h.handleDeleteRequest(ctx, user, conv)
	}

	// Escalation outranks the consent gate: a customer asking for a human
	// gets one even before answering the consent question.
	cartValue := h.pendingCartValue(user.ID)
	if h.matcher.ShouldEscalate(body, cartValue) {
		return h.escalate(ctx, user, conv, body, cartValue)
	}

	if !conv.Data.ConsentGiven {
		return h.handleConsentGate(ctx, user, conv, body)
	}

	if sel, ok := parseMenuSelection(flow.State(conv.CurrentState), body); ok {
		return h.handleMenuSelection(ctx, user, conv, sel)
	}

	return h.handleChat(ctx, user, conv, body)
}

// pendingCartValue is the amount of the user's latest order when it is still
// pending, used for the high-value escalation rule.
func (h *Handler) pendingCartValue(userID string) int64 {
	order, err := h.store.LatestOrder(userID)
	if err != nil || order == nil || order.Status != models.OrderPending {
		return 0
	}
	return order.TotalAmount
}

func (h *Handler) handleDeleteRequest(ctx context.Context, user *models.User, conv *models.Conversation) (*Result, error) {
	slog.Info("Pipeline: data deletion requested", "user_id", user.ID)
	reply := "Vos données personnelles ont été supprimées de notre système. " +
		"Merci de votre confiance. À bientôt chez Parapharmacie Libreville ! 🙏"
	if err := h.msg.SendMessage(ctx, user.PhoneNumber, reply); err != nil {
		slog.Error("Pipeline: failed to send deletion confirmation", "error", err, "user_id", user.ID)
	}
	if err := h.store.DeleteUserData(user.ID); err != nil {
		return nil, fmt.Errorf("failed to erase user data: %w", err)
	}
	return &Result{Success: true, Reply: reply, Deleted: true}, nil
}

func (h *Handler) escalate(ctx context.Context, user *models.User, conv *models.Conversation, body string, cartValue int64) (*Result, error) {
	conv.Status = models.ConversationEscalated
	conv.CurrentState = string(flow.StateHumanHandoff)
	if err := h.store.UpdateConversation(conv); err != nil {
		return nil, fmt.Errorf("failed to escalate conversation: %w", err)
	}

	reason := fmt.Sprintf("Demande client: %q", body)
	if cartValue > 0 {
		reason = fmt.Sprintf("Panier de %d FCFA: %q", cartValue, body)
	}
	if err := h.store.CreateAlert(&models.AdvisorAlert{ConversationID: conv.ID, Reason: reason}); err != nil {
		slog.Error("Pipeline: failed to create advisor alert", "error", err, "conversation_id", conv.ID)
	}
	slog.Info("Pipeline: conversation escalated to advisor", "conversation_id", conv.ID, "cart_value", cartValue)

	reply := "Je vous mets en relation avec un de nos conseillers. " +
		"Un membre de notre équipe vous répondra très rapidement. Merci de patienter quelques instants. 🙏"
	if err := h.sendAndRecord(ctx, user, conv, reply, nil); err != nil {
		return nil, err
	}
	return &Result{Success: true, Reply: reply, Escalated: true}, nil
}

// sendAndRecord delivers an assistant reply and appends it to the
// conversation history.
func (h *Handler) sendAndRecord(ctx context.Context, user *models.User, conv *models.Conversation, reply string, metadata map[string]string) error {
	if err := h.msg.SendMessage(ctx, user.PhoneNumber, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	if err := h.store.AddMessage(&models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderAssistant,
		Content:        reply,
		Metadata:       metadata,
		Timestamp:      time.Now(),
	}); err != nil {
		slog.Error("Pipeline: failed to persist assistant message", "error", err, "conversation_id", conv.ID)
	}
	return nil
}
