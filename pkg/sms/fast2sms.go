package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBaseURL = "https://www.fast2sms.com/dev/bulkV2"
)

// Fast2SMSClient sends messages through the Fast2SMS bulkV2 API.
type Fast2SMSClient struct {
	APIKey     string
	BaseURL    string
	SenderID   string
	Route      string
	Language   string
	HTTPClient *http.Client
}

// NewFast2SMSClient returns a client with the quick-SMS defaults filled in.
func NewFast2SMSClient(apiKey, baseURL, senderID string, timeout time.Duration) *Fast2SMSClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if senderID == "" {
		senderID = "TXTIND"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fast2SMSClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		SenderID:   senderID,
		Route:      "v3",
		Language:   "english",
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type fast2smsRequest struct {
	Route    string `json:"route"`
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
	Language string `json:"language"`
	Numbers  string `json:"numbers"`
}

type fast2smsResponse struct {
	Return    bool            `json:"return"`
	RequestID string          `json:"request_id"`
	Message   json.RawMessage `json:"message"`
}

// message flattens the provider's message, which is a string on errors and
// a list of strings on success.
func (r fast2smsResponse) message() string {
	if len(r.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(r.Message, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// Send posts message to phone. Delivery counts as accepted only when the
// provider answers with "return": true.
func (c *Fast2SMSClient) Send(ctx context.Context, phone, message string) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}

	raw, err := json.Marshal(fast2smsRequest{
		Route:    c.Route,
		SenderID: c.SenderID,
		Message:  message,
		Language: c.Language,
		Numbers:  phone,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("sms: read response: %w", err)
	}

	var parsed fast2smsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Error("Fast2SMS returned unreadable response", "status", resp.StatusCode, "body", string(body))
		return &ProviderError{StatusCode: resp.StatusCode}
	}

	if !parsed.Return {
		slog.Error("Fast2SMS rejected message", "status", resp.StatusCode, "message", parsed.message())
		return &ProviderError{StatusCode: resp.StatusCode, Message: parsed.message()}
	}

	slog.Info("Fast2SMS accepted message", "request_id", parsed.RequestID)
	return nil
}
