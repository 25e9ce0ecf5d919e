package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranckSowax/botpharma/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp
// client. The multidevice protocol has no reply buttons or captioned media in
// this wrapper, so both degrade to text.
type WhatsAppService struct {
	client whatsapp.Sender
}

// NewWhatsAppService wraps a whatsapp.Sender as a Service.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeGabonRecipient(recipient)
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhatsAppService.SendMessage invoked", "to", to, "body_length", len(body))
	return s.client.SendMessage(ctx, to, body)
}

func (s *WhatsAppService) SendMediaMessage(ctx context.Context, to string, body string, mediaURL string) error {
	return s.client.SendMessage(ctx, to, fmt.Sprintf("%s\n%s", body, mediaURL))
}

func (s *WhatsAppService) SendButtonsMessage(ctx context.Context, to string, body string, buttons []Button) error {
	return s.client.SendMessage(ctx, to, formatNumberedOptions(body, buttons))
}
