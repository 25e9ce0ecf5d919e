package messaging

import (
	"context"
	"sync"
)

// MockService is a Service test double recording every outbound message.
type MockService struct {
	mu   sync.Mutex
	Sent []MockSent
	Err  error
}

// MockSent is one recorded outbound message.
type MockSent struct {
	To       string
	Body     string
	MediaURL string
	Buttons  []Button
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeGabonRecipient(recipient)
}

func (m *MockService) SendMessage(_ context.Context, to string, body string) error {
	return m.record(MockSent{To: to, Body: body})
}

func (m *MockService) SendMediaMessage(_ context.Context, to string, body string, mediaURL string) error {
	return m.record(MockSent{To: to, Body: body, MediaURL: mediaURL})
}

func (m *MockService) SendButtonsMessage(_ context.Context, to string, body string, buttons []Button) error {
	return m.record(MockSent{To: to, Body: body, Buttons: buttons})
}

func (m *MockService) record(s MockSent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, s)
	return nil
}

// Messages returns a snapshot of the recorded messages.
func (m *MockService) Messages() []MockSent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSent, len(m.Sent))
	copy(out, m.Sent)
	return out
}
