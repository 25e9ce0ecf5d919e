package messaging

import (
	"context"
	"log/slog"

	"github.com/FranckSowax/botpharma/internal/whapi"
)

// WhapiService implements Service using the Whapi.Cloud gateway. It is the
// only transport with native reply buttons.
type WhapiService struct {
	client *whapi.Client
}

// NewWhapiService wraps a Whapi client as a Service.
func NewWhapiService(client *whapi.Client) *WhapiService {
	return &WhapiService{client: client}
}

func (s *WhapiService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeGabonRecipient(recipient)
}

func (s *WhapiService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhapiService.SendMessage invoked", "to", to, "body_length", len(body))
	return s.client.SendText(ctx, to, body)
}

func (s *WhapiService) SendMediaMessage(ctx context.Context, to string, body string, mediaURL string) error {
	slog.Debug("WhapiService.SendMediaMessage invoked", "to", to, "media_url", mediaURL)
	return s.client.SendImage(ctx, to, mediaURL, body)
}

func (s *WhapiService) SendButtonsMessage(ctx context.Context, to string, body string, buttons []Button) error {
	slog.Debug("WhapiService.SendButtonsMessage invoked", "to", to, "buttons", len(buttons))
	wb := make([]whapi.Button, len(buttons))
	for i, b := range buttons {
		wb[i] = whapi.Button{ID: b.ID, Title: b.Title}
	}
	return s.client.SendButtons(ctx, to, body, wb)
}
