package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWebhookTimeout bounds one webhook delivery.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookAuditSink posts audit entries to a chat webhook accepting a JSON
// body of the form {"content": "..."}, such as a Discord channel webhook.
type WebhookAuditSink struct {
	url    string
	client *http.Client
}

// NewWebhookAuditSink creates a webhook AuditSink.
//
// Parameters:
//   - url: The webhook URL
//   - timeout: Per-request timeout; zero means DefaultWebhookTimeout
//
// Returns:
//   - A new *WebhookAuditSink
func NewWebhookAuditSink(url string, timeout time.Duration) *WebhookAuditSink {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}

	return &WebhookAuditSink{url: url, client: &http.Client{Timeout: timeout}}
}

// Record implements AuditSink.
func (s *WebhookAuditSink) Record(ctx context.Context, entry AuditEntry) error {
	body, err := json.Marshal(map[string]string{"content": webhookContent(entry)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("audit webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit webhook: %w", err)
	}
	defer func(body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, body)
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("audit webhook: unexpected status %s", resp.Status)
	}

	return nil
}

func webhookContent(entry AuditEntry) string {
	cmd := redactCommand(entry.Command)
	if !entry.Success {
		return fmt.Sprintf("server %d: `%s` failed: %s", entry.ServerID, cmd, entry.Error)
	}

	return fmt.Sprintf("server %d: `%s` executed", entry.ServerID, cmd)
}

// MultiAuditSink records every entry in each of its sinks and returns the
// first error after trying all of them.
type MultiAuditSink []AuditSink

// Record implements AuditSink.
func (m MultiAuditSink) Record(ctx context.Context, entry AuditEntry) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(ctx, entry); err != nil && first == nil {
			first = err
		}
	}

	return first
}
