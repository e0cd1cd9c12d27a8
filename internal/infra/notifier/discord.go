package notifier

import (
	"context"
	"fmt"
	"time"

	"nexus-voice/internal/domain/entity"
)

// DiscordNotifier posts alerts to a Discord webhook.
type DiscordNotifier struct {
	hook *webhook
}

// NewDiscordNotifier creates a DiscordNotifier limited to 30 messages per
// minute with a burst of 3.
func NewDiscordNotifier(cfg Config) *DiscordNotifier {
	return &DiscordNotifier{hook: newWebhook("Discord", cfg, NewRateLimiter(0.5, 3))}
}

// DiscordWebhookPayload is a webhook message with embeds.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a Discord embed.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter is the footer of an embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096

	discordRed   = 0xED4245
	discordGreen = 0x57F287
)

func buildEmbedPayload(alert *entity.Alert) DiscordWebhookPayload {
	color := discordRed
	if alert.Healthy {
		color = discordGreen
	}
	return DiscordWebhookPayload{Embeds: []DiscordEmbed{{
		Title:       truncateText(alert.Summary(), maxTitleLength, truncationSuffix),
		Description: truncateText(alertDetails(alert), maxDescriptionLength, truncationSuffix),
		Color:       color,
		Footer:      DiscordEmbedFooter{Text: "nexus-voice"},
		Timestamp:   alert.At.UTC().Format(time.RFC3339),
	}}}
}

// NotifyAlert validates alert and posts it.
func (d *DiscordNotifier) NotifyAlert(ctx context.Context, alert *entity.Alert) error {
	if alert == nil {
		return fmt.Errorf("discord: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return d.hook.send(ctx, alert, buildEmbedPayload(alert))
}
