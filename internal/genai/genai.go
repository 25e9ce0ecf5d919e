// Package genai wraps the OpenAI API for the Léa assistant: free-text reply
// generation, intent classification and structured product recommendations.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/FranckSowax/botpharma/internal/models"
)

// ErrNotConfigured is returned when no API key is available. Callers must
// treat it as an expected failure mode distinct from a runtime error.
var ErrNotConfigured = errors.New("openai client not configured: missing API key")

// Generation constants matching the assistant's tuned behavior.
const (
	DefaultReplyModel       = openai.ChatModelGPT4o
	DefaultClassifierModel  = openai.ChatModelGPT4oMini
	DefaultTimeout          = 30 * time.Second
	replyTemperature        = 0.7
	replyMaxTokens          = 300
	replyPresencePenalty    = 0.6
	replyFrequencyPenalty   = 0.3
	classifierTemperature   = 0.3
	classifierMaxTokens     = 20
	recommendationMaxTokens = 400
)

// systemPrompt defines Léa's persona and selling rules.
const systemPrompt = `Tu es Léa, l'assistante virtuelle de la Parapharmacie Libreville au Gabon.

PERSONNALITÉ:
- Chaleureuse, professionnelle et serviable
- Tu utilises des emojis avec modération (😊, 💚, ✨)
- Tu tutoies les clients de manière amicale
- Tu es experte en produits de parapharmacie

RÈGLES:
1. Sois concise (max 3-4 lignes par message)
2. Pose UNE question à la fois
3. Recommande 2-3 produits maximum
4. Mentionne toujours le prix en FCFA
5. Si tu ne sais pas, propose de transférer à un conseiller humain
6. Ne jamais inventer des informations sur les produits

Réponds toujours en français avec un ton professionnel mais chaleureux.`

// ChatMessage is one prior turn handed to the model.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ReplyContext carries the customer and conversation context injected into
// the reply prompt.
type ReplyContext struct {
	CustomerName      string
	Profile           models.ProfileData
	ConversationState string
	History           []ChatMessage
	UserMessage       string
}

// Recommendation is one scored product suggestion.
type Recommendation struct {
	ProductID string  `json:"productId"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// RecommendationResult is the structured output of a recommendation request.
type RecommendationResult struct {
	Recommendations      []Recommendation `json:"recommendations"`
	ConversationResponse string           `json:"conversationResponse"`
}

// ClientInterface is the language-model collaborator contract consumed by the
// pipeline; tests substitute a mock.
type ClientInterface interface {
	GenerateReply(ctx context.Context, rc ReplyContext) (string, error)
	ClassifyIntent(ctx context.Context, message string) (models.IntentResult, error)
	RecommendProducts(ctx context.Context, need string, profile models.ProfileData, products []models.Product) (*RecommendationResult, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey          string
	ReplyModel      openai.ChatModel
	ClassifierModel openai.ChatModel
	Timeout         time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithReplyModel overrides the model used for reply generation.
func WithReplyModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.ReplyModel = model }
}

// WithClassifierModel overrides the model used for intent classification.
func WithClassifierModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.ClassifierModel = model }
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	api             openai.Client
	replyModel      openai.ChatModel
	classifierModel openai.ChatModel
	timeout         time.Duration
}

// NewClient creates a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is provided. Returns
// ErrNotConfigured when no key is available.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		ReplyModel:      DefaultReplyModel,
		ClassifierModel: DefaultClassifierModel,
		Timeout:         DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	slog.Debug("genai.NewClient: configuration loaded", "api_key_set", cfg.APIKey != "", "reply_model", cfg.ReplyModel, "timeout", cfg.Timeout)
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		api:             openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		replyModel:      cfg.ReplyModel,
		classifierModel: cfg.ClassifierModel,
		timeout:         cfg.Timeout,
	}, nil
}

// GenerateReply produces Léa's next free-text reply from the customer context
// and the recent conversation history.
func (c *Client) GenerateReply(ctx context.Context, rc ReplyContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(buildSystemPrompt(rc)),
	}
	for _, msg := range rc.History {
		if msg.Role == "user" {
			messages = append(messages, openai.UserMessage(msg.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(rc.UserMessage))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:            c.replyModel,
		Messages:         messages,
		Temperature:      openai.Float(replyTemperature),
		MaxTokens:        openai.Int(replyMaxTokens),
		PresencePenalty:  openai.Float(replyPresencePenalty),
		FrequencyPenalty: openai.Float(replyFrequencyPenalty),
	})
	if err != nil {
		slog.Error("genai.GenerateReply: completion failed", "error", err)
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("reply generation returned no content")
	}
	slog.Debug("genai.GenerateReply: reply generated", "length", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}

// buildSystemPrompt appends the customer context block to the base persona.
func buildSystemPrompt(rc ReplyContext) string {
	var ctxInfo []string
	if rc.CustomerName != "" {
		ctxInfo = append(ctxInfo, "Nom du client: "+rc.CustomerName)
	}
	var prefs []string
	if rc.Profile.Bio {
		prefs = append(prefs, "bio")
	}
	if rc.Profile.Vegan {
		prefs = append(prefs, "vegan")
	}
	if rc.Profile.FragranceFree {
		prefs = append(prefs, "sans parfum")
	}
	if len(prefs) > 0 {
		ctxInfo = append(ctxInfo, "Préférences: "+strings.Join(prefs, ", "))
	}
	if rc.ConversationState != "" {
		ctxInfo = append(ctxInfo, "État de la conversation: "+rc.ConversationState)
	}
	if len(ctxInfo) == 0 {
		return systemPrompt
	}
	return systemPrompt + "\n\nCONTEXTE CLIENT:\n" + strings.Join(ctxInfo, "\n")
}

// classifierPrompt is the fixed instruction for intent analysis.
const classifierPrompt = `Analyse l'intention de ce message client:
%q

Réponds uniquement avec l'une de ces intentions:
- greeting: Salutation
- product_search: Recherche de produit
- question: Question sur un produit
- order: Vouloir passer commande
- complaint: Plainte ou problème
- promotions: Demande de promotions
- other: Autre

Format de réponse: intention|confidence (ex: product_search|0.9)`

// ClassifyIntent maps a free-text message to the fixed intent vocabulary.
// On any model error the caller should fall back to IntentOther.
func (c *Client) ClassifyIntent(ctx context.Context, message string) (models.IntentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.classifierModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(classifierPrompt, message)),
		},
		Temperature: openai.Float(classifierTemperature),
		MaxTokens:   openai.Int(classifierMaxTokens),
	})
	if err != nil {
		slog.Error("genai.ClassifyIntent: completion failed", "error", err)
		return models.IntentResult{}, fmt.Errorf("intent classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.IntentResult{}, fmt.Errorf("intent classification returned no content")
	}
	result := ParseIntentResponse(resp.Choices[0].Message.Content)
	slog.Debug("genai.ClassifyIntent: intent detected", "intent", result.Intent, "confidence", result.Confidence)
	return result, nil
}

// ParseIntentResponse parses the "intention|confidence" classifier output,
// defaulting to other/0.5 for anything unparseable.
func ParseIntentResponse(raw string) models.IntentResult {
	parts := strings.SplitN(strings.TrimSpace(raw), "|", 2)
	intent := models.Intent(strings.TrimSpace(strings.ToLower(parts[0])))
	if !models.IsValidIntent(intent) {
		intent = models.IntentOther
	}
	confidence := models.DefaultIntentConfidence
	if len(parts) == 2 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}
	return models.IntentResult{Intent: intent, Confidence: confidence}
}
