// Package notify delivers pipeline outcome notifications over a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

// RequestTimeout for webhook requests
const RequestTimeout = 10 * time.Second

// Notification is the webhook payload.
type Notification struct {
	Event  string         `json:"event"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	UserID string         `json:"user_id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Service posts notifications to a configured webhook. With no URL
// configured it only logs, which keeps local development quiet.
type Service struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewService creates a notification service.
func NewService(webhookURL string, logger *slog.Logger) *Service {
	return &Service{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		logger: logger,
	}
}

// Send delivers one notification. Failures are returned, not retried;
// notifications are best-effort.
func (s *Service) Send(ctx context.Context, n *Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}

	if s.webhookURL == "" {
		s.logger.Info("notification (webhook disabled)",
			slog.String("event", n.Event),
			slog.String("body", n.Body))
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// HandleCategorizationCompleted notifies that a batch finished.
func (s *Service) HandleCategorizationCompleted(ctx context.Context, msg events.CategorizationCompleted) {
	err := s.Send(ctx, &Notification{
		Event:  "categorization_completed",
		Title:  "Transactions categorized",
		Body:   fmt.Sprintf("%d transactions categorized, %d failed", msg.Succeeded, msg.Failed),
		UserID: msg.UserID.String(),
		Data: map[string]any{
			"succeeded": msg.Succeeded,
			"failed":    msg.Failed,
		},
	})
	if err != nil {
		s.logger.Warn("failed to send categorization notification", slog.Any("error", err))
	}
}

// HandleIngestFailed notifies that an ingestion run failed outright.
func (s *Service) HandleIngestFailed(ctx context.Context, msg events.IngestFailed) {
	err := s.Send(ctx, &Notification{
		Event:  "ingest_failed",
		Title:  "Statement import failed",
		Body:   msg.Reason,
		UserID: msg.UserID.String(),
		Data: map[string]any{
			"path": msg.Path,
		},
	})
	if err != nil {
		s.logger.Warn("failed to send ingest failure notification", slog.Any("error", err))
	}
}

// HandleTransactionsReady is not notified; it is an internal hand-off.
func (s *Service) HandleTransactionsReady(context.Context, events.TransactionsReady) {}
