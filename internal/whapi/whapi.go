// Package whapi implements the Whapi.Cloud WhatsApp gateway client.
//
// Whapi exposes a plain HTTP API (text, image and interactive button
// messages) and delivers incoming messages through webhooks, so this client
// only covers the outbound half.
package whapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Constants for Whapi client configuration.
const (
	// DefaultBaseURL is the Whapi.Cloud gateway endpoint.
	DefaultBaseURL = "https://gate.whapi.cloud"
	// DefaultTimeout bounds each gateway request.
	DefaultTimeout = 10 * time.Second
	// MaxButtons is the gateway's cap on reply buttons per message.
	MaxButtons = 3
)

// Button is one quick-reply option attached to an interactive message.
type Button struct {
	ID    string
	Title string
}

// Opts holds configuration options for the Whapi client.
type Opts struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// Option defines a configuration option for the Whapi client.
type Option func(*Opts)

// WithAPIKey sets the Whapi bearer token.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the gateway endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Whapi.Cloud gateway.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Whapi client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Whapi NewClient options set", "APIKey_set", cfg.APIKey != "", "base_url", cfg.BaseURL)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whapi API key not set")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, http: httpClient}, nil
}

type textPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type imagePayload struct {
	To      string `json:"to"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

type interactivePayload struct {
	To     string            `json:"to"`
	Body   map[string]string `json:"body"`
	Action interactiveAction `json:"action"`
	Type   string            `json:"type"`
}

type interactiveAction struct {
	Buttons []interactiveButton `json:"buttons"`
}

type interactiveButton struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	return c.post(ctx, "/messages/text", textPayload{To: to, Body: body})
}

// SendImage sends an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, mediaURL, caption string) error {
	if mediaURL == "" {
		return fmt.Errorf("media URL cannot be empty")
	}
	return c.post(ctx, "/messages/image", imagePayload{To: to, Media: mediaURL, Caption: caption})
}

// SendButtons sends an interactive message with up to MaxButtons quick-reply
// buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) == 0 {
		return c.SendText(ctx, to, body)
	}
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	action := interactiveAction{}
	for _, b := range buttons {
		action.Buttons = append(action.Buttons, interactiveButton{Type: "quick_reply", ID: b.ID, Title: b.Title})
	}
	payload := interactivePayload{
		To:     to,
		Body:   map[string]string{"text": body},
		Action: action,
		Type:   "button",
	}
	return c.post(ctx, "/messages/interactive", payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode whapi payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build whapi request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Whapi request failed", "error", err, "path", path)
		return fmt.Errorf("whapi request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		slog.Error("Whapi request rejected", "path", path, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("whapi %s returned status %d", path, resp.StatusCode)
	}
	slog.Debug("Whapi message sent", "path", path)
	return nil
}
