package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/FranckSowax/botpharma/internal/models"
)

// MaxRecommendations caps how many products a single recommendation carries.
const MaxRecommendations = 3

// RecommendProducts asks the model for scored product suggestions matching
// the customer's stated need. The model is instructed to answer with a JSON
// object so the result can be consumed structurally.
func (c *Client) RecommendProducts(ctx context.Context, need string, profile models.ProfileData, products []models.Product) (*RecommendationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var catalog strings.Builder
	for _, p := range products {
		fmt.Fprintf(&catalog, "- id=%s %s (%d FCFA) - %s\n", p.ID, p.Name, p.PriceCFA, p.Description)
	}

	prefsJSON, _ := json.Marshal(profile)
	userPrompt := fmt.Sprintf(`Le client recherche: %q

Préférences: %s

Produits disponibles:
%s
Recommande au plus %d produits adaptés.

Réponds UNIQUEMENT avec un objet JSON de la forme:
{"recommendations":[{"productId":"...","score":0.9,"reasoning":"..."}],"conversationResponse":"..."}`,
		need, prefsJSON, catalog.String(), MaxRecommendations)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.replyModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(replyTemperature),
		MaxTokens:   openai.Int(recommendationMaxTokens),
	})
	if err != nil {
		slog.Error("genai.RecommendProducts: completion failed", "error", err)
		return nil, fmt.Errorf("recommendation generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("recommendation generation returned no content")
	}

	result, err := ParseRecommendationResponse(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("genai.RecommendProducts: unparseable model output", "error", err)
		return nil, err
	}
	slog.Debug("genai.RecommendProducts: recommendations generated", "count", len(result.Recommendations))
	return result, nil
}

// ParseRecommendationResponse extracts the JSON recommendation object from
// the raw model output, tolerating surrounding prose or code fences.
func ParseRecommendationResponse(raw string) (*RecommendationResult, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in recommendation output")
	}
	var result RecommendationResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to decode recommendation output: %w", err)
	}
	if len(result.Recommendations) > MaxRecommendations {
		result.Recommendations = result.Recommendations[:MaxRecommendations]
	}
	return &result, nil
}
