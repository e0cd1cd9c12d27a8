// Package notify fans capability health alerts out to the configured chat
// channels. Each channel has its own circuit breaker, and a bounded worker
// pool keeps a flapping capability from spawning unbounded sends.
package notify

import (
	"context"
	"fmt"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/infra/notifier"
)

// Channel is one alert destination. Implementations must be safe for
// concurrent use and handle their own rate limiting and retries.
type Channel interface {
	// Name is the lowercase identifier used in logs and metric labels.
	Name() string
	IsEnabled() bool
	Send(ctx context.Context, alert *entity.Alert) error
}

// WebhookChannel adapts a notifier.Notifier to Channel.
type WebhookChannel struct {
	name     string
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel creates the "slack" channel. It is disabled when the
// webhook URL is empty.
func NewSlackChannel(cfg notifier.Config) *WebhookChannel {
	if cfg.WebhookURL == "" {
		return &WebhookChannel{name: "slack", notifier: notifier.NewNoOpNotifier()}
	}
	return &WebhookChannel{name: "slack", notifier: notifier.NewSlackNotifier(cfg), enabled: true}
}

// NewDiscordChannel creates the "discord" channel. It is disabled when the
// webhook URL is empty.
func NewDiscordChannel(cfg notifier.Config) *WebhookChannel {
	if cfg.WebhookURL == "" {
		return &WebhookChannel{name: "discord", notifier: notifier.NewNoOpNotifier()}
	}
	return &WebhookChannel{name: "discord", notifier: notifier.NewDiscordNotifier(cfg), enabled: true}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) IsEnabled() bool { return c.enabled }

// Send delivers alert through the underlying notifier.
func (c *WebhookChannel) Send(ctx context.Context, alert *entity.Alert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if alert == nil {
		return ErrInvalidAlert
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	return c.notifier.NotifyAlert(ctx, alert)
}
