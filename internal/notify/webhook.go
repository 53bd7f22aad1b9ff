package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WebhookChannel posts messages to a delivery endpoint.
type WebhookChannel struct {
	url       string
	authToken string
	client    *http.Client
	logger    zerolog.Logger
}

// NewWebhookChannel constructs the HTTP delivery channel.
func NewWebhookChannel(url, authToken string, timeout time.Duration, logger zerolog.Logger) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookChannel{
		url:       strings.TrimRight(url, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "webhook_channel").Logger(),
	}
}

// Send posts the message. The idempotency key travels as a header so the
// receiving side can deduplicate redelivered jobs.
func (w *WebhookChannel) Send(ctx context.Context, recipient, message, idempotencyKey string) (string, error) {
	payload := map[string]string{
		"recipient": recipient,
		"message":   message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.authToken)
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	var result struct {
		DeliveryID string `json:"delivery_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.DeliveryID == "" {
		// Endpoint accepted the message but did not name a delivery id;
		// fall back to the idempotency key.
		result.DeliveryID = idempotencyKey
	}

	w.logger.Info().Str("recipient", recipient).Str("delivery_id", result.DeliveryID).Msg("notification delivered")
	return result.DeliveryID, nil
}

var _ Channel = (*WebhookChannel)(nil)
