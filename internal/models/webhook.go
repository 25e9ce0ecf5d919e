// Package models defines the inbound webhook payload shapes for the
// messaging gateway.
package models

import "time"

// WebhookMessage is one message object inside a gateway webhook payload.
type WebhookMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	ChatID     string `json:"chat_id,omitempty"`
	Body       string `json:"body,omitempty"`
	Text       *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	NotifyName string `json:"notify_name,omitempty"`
	FromMe     bool   `json:"from_me,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Type       string `json:"type,omitempty"`
}

// TextBody returns the message body regardless of which payload field the
// gateway used.
func (m WebhookMessage) TextBody() string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	return m.Body
}

// Sender returns the sender address regardless of payload shape.
func (m WebhookMessage) Sender() string {
	if m.From != "" {
		return m.From
	}
	return m.ChatID
}

// WebhookPayload is the envelope the messaging gateway posts to the webhook.
type WebhookPayload struct {
	Event    string           `json:"event,omitempty"`
	Messages []WebhookMessage `json:"messages"`
}

// IncomingMessage is the normalized inbound message handed to the pipeline.
type IncomingMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
