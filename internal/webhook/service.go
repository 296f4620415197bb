// Package webhook dispatches task notifications to a configured HTTP
// endpoint. The gateway treats it as a narrow collaborator: one payload
// shape, fire-and-forget semantics.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loomhq/loom/internal/httpx"
	"github.com/loomhq/loom/pkg/models"
)

// Service posts webhook payloads.
type Service struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewService builds a dispatcher for the given endpoint. An empty URL
// disables dispatch.
func NewService(url string, proxy *models.ProxyConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		url:    url,
		client: httpx.NewClient(proxy),
		logger: logger.With("component", "webhook"),
	}
}

// Emit posts one payload. Failures are logged, never propagated: webhook
// delivery must not affect the command that triggered it.
func (s *Service) Emit(ctx context.Context, payload models.WebhookPayload) {
	if s.url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook dispatch failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook endpoint rejected payload", "status", fmt.Sprintf("%d", resp.StatusCode))
	}
}
