package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookSurface posts notifications to a push gateway
type WebhookSurface struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookSurface(url string, logger *zap.Logger) *WebhookSurface {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookSurface{
		httpClient: client,
		url:        strings.TrimSpace(url),
		logger:     logger,
	}
}

// Available true once a gateway URL is configured
func (s *WebhookSurface) Available() bool {
	return s.url != ""
}

func (s *WebhookSurface) Display(ctx context.Context, n Notification) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(n).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to call push gateway: %w", err)
	}
	if resp.IsError() {
		s.logger.Warn("Push gateway rejected notification",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("incident_id", n.Tag.IncidentID),
		)
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode())
	}
	return nil
}

// NoopSurface degraded mode: notifications disabled
type NoopSurface struct{}

func (NoopSurface) Available() bool { return false }

func (NoopSurface) Display(context.Context, Notification) error { return nil }
