package messaging

import (
	"context"
	"log/slog"

	"github.com/FranckSowax/botpharma/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp API. Media is
// native; buttons degrade to numbered text options.
type TwilioService struct {
	client *twiliowhatsapp.Client
}

// NewTwilioService wraps a Twilio client as a Service.
func NewTwilioService(client *twiliowhatsapp.Client) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeGabonRecipient(recipient)
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("TwilioService.SendMessage invoked", "to", to, "body_length", len(body))
	return s.client.SendMessage(ctx, to, body)
}

func (s *TwilioService) SendMediaMessage(ctx context.Context, to string, body string, mediaURL string) error {
	return s.client.SendMediaMessage(ctx, to, body, mediaURL)
}

func (s *TwilioService) SendButtonsMessage(ctx context.Context, to string, body string, buttons []Button) error {
	return s.client.SendMessage(ctx, to, formatNumberedOptions(body, buttons))
}
