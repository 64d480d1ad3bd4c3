package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// ProviderError is a delivery failure reported by the gateway. Message is the
// provider's own text and is safe to show to the caller.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider rejected message (status %d): %s", e.StatusCode, e.Message)
}

// ProviderMessage returns the provider's text when err carries one.
func ProviderMessage(err error) (string, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message, true
	}
	return "", false
}

// OTPMessage renders the login code text.
func OTPMessage(code string) string {
	return fmt.Sprintf("Your TurbooToys login OTP is %s. Do not share this OTP with anyone.", code)
}

// LogSender writes messages to the log instead of sending them. Development only.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, phone, message string) error {
	slog.Warn("SMS not sent, log driver active", "phone", phone, "message", message)
	return nil
}
