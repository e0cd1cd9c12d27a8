package notifier

import (
	"context"
	"fmt"
	"time"

	"nexus-voice/internal/domain/entity"
)

// SlackNotifier posts alerts to a Slack Incoming Webhook.
type SlackNotifier struct {
	hook *webhook
}

// NewSlackNotifier creates a SlackNotifier limited to one message per
// second, which is the Incoming Webhook limit.
func NewSlackNotifier(cfg Config) *SlackNotifier {
	return &SlackNotifier{hook: newWebhook("Slack", cfg, NewRateLimiter(1.0, 1))}
}

// SlackWebhookPayload is a Block Kit message.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is a Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

// SlackTextObject is a mrkdwn or plain_text object.
type SlackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
	truncationSuffix     = "..."
)

func slackEmoji(healthy bool) string {
	if healthy {
		return ":large_green_circle:"
	}
	return ":red_circle:"
}

// buildBlockKitPayload renders a section with the summary and counters and
// a context line with the observation time.
func buildBlockKitPayload(alert *entity.Alert) SlackWebhookPayload {
	fallback := truncateText("[nexus-voice] "+alert.Summary(), maxFallbackLength, truncationSuffix)

	section := fmt.Sprintf("%s *%s*", slackEmoji(alert.Healthy), alert.Summary())
	if details := alertDetails(alert); details != "" {
		section += "\n" + details
	}
	section = truncateText(section, maxSectionTextLength, truncationSuffix)

	return SlackWebhookPayload{
		Text: fallback,
		Blocks: []SlackBlock{
			{Type: "section", Text: &SlackTextObject{Type: "mrkdwn", Text: section}},
			{Type: "context", Elements: []SlackTextObject{{
				Type: "mrkdwn",
				Text: "nexus-voice • " + alert.At.UTC().Format(time.RFC3339),
			}}},
		},
	}
}

// NotifyAlert validates alert and posts it.
func (s *SlackNotifier) NotifyAlert(ctx context.Context, alert *entity.Alert) error {
	if alert == nil {
		return fmt.Errorf("slack: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return s.hook.send(ctx, alert, buildBlockKitPayload(alert))
}
