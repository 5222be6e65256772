package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// WebhookConfig points at a Manychat-style endpoint accepting a JSON message.
type WebhookConfig struct {
	URL     string        `validate:"required,url"`
	Token   string
	Timeout time.Duration
	// Attempts counts the first try; 5xx answers and transport errors are retried.
	Attempts int
	Delay    time.Duration
}

type WebhookGateway struct {
	config WebhookConfig
	client *http.Client
	logger *slog.Logger
}

func NewWebhookGateway(logger *slog.Logger, config WebhookConfig) *WebhookGateway {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	if config.Attempts < 1 {
		config.Attempts = 1
	}

	return &WebhookGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("module", "webhook_gateway"),
	}
}

func (g *WebhookGateway) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return ErrNoRecipient
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= g.config.Attempts; attempt++ {
		if attempt > 1 {
			g.logger.InfoContext(ctx, "Retrying message delivery", "attempt", attempt, "lead_id", msg.LeadID)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.config.Delay):
			}
		}

		lastErr = g.post(ctx, payload)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			break
		}
	}

	return lastErr
}

func (g *WebhookGateway) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if g.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrGatewayServer, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, bytes.TrimSpace(body))
	}

	return nil
}

// retryable excludes 4xx answers, which would fail again.
func retryable(err error) bool {
	return !errors.Is(err, ErrGatewayRejected)
}
