// Package messaging provides a pluggable WhatsApp delivery abstraction.
//
// Three transports implement the same Service interface: the Whapi.Cloud
// gateway (the default), a direct Whatsmeow connection, and Twilio. Transports
// without native button support degrade interactive menus to numbered text
// options.
package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranckSowax/botpharma/internal/phone"
)

// Button is one quick-reply option in an interactive menu.
type Button struct {
	ID    string
	Title string
}

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier into a normalized Gabonese phone number.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain text message.
	SendMessage(ctx context.Context, to string, body string) error

	// SendMediaMessage sends an image by URL with a caption.
	SendMediaMessage(ctx context.Context, to string, body string, mediaURL string) error

	// SendButtonsMessage sends an interactive menu. Transports without
	// button support render the options as a numbered list.
	SendButtonsMessage(ctx context.Context, to string, body string, buttons []Button) error
}

// canonicalizeGabonRecipient is the shared recipient validation used by every
// transport.
func canonicalizeGabonRecipient(recipient string) (string, error) {
	normalized := phone.Normalize(recipient)
	if !phone.IsValidGabonNumber(normalized) {
		return "", fmt.Errorf("recipient %q is not a valid Gabonese number", recipient)
	}
	return normalized, nil
}

// formatNumberedOptions renders buttons as a numbered list appended to the
// body, for transports that cannot send interactive messages.
func formatNumberedOptions(body string, buttons []Button) string {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, btn := range buttons {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, btn.Title))
	}
	b.WriteString("\n\nRépondez avec le numéro de votre choix.")
	return b.String()
}
