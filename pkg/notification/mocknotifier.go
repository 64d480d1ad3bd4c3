package notification

import (
	"context"
	"log/slog"
	"sync"
)

// MockNotifier records messages instead of sending them
type MockNotifier struct {
	mu   sync.Mutex
	Sent []Message
}

func (m *MockNotifier) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Last returns the most recent message, if any.
func (m *MockNotifier) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return Message{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

// LogNotifier is used when no SMTP server is configured. It logs the
// recipient and subject only, never the body.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	slog.Warn("Email delivery not configured, message dropped", "to", msg.To, "subject", msg.Subject)
	return nil
}
