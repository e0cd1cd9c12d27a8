package notify

import (
	"log/slog"
	"time"

	"nexus-voice/internal/infra/notifier"
	"nexus-voice/internal/pkg/config"
)

// Config selects the alert channels.
type Config struct {
	SlackWebhookURL   string
	DiscordWebhookURL string

	// RequestTimeout bounds one webhook HTTP request.
	RequestTimeout time.Duration
	// SendTimeout bounds one channel send including retries.
	SendTimeout   time.Duration
	MaxConcurrent int
}

// DefaultConfig has no channels.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		SendTimeout:    30 * time.Second,
		MaxConcurrent:  4,
	}
}

// LoadConfig reads SLACK_WEBHOOK_URL, DISCORD_WEBHOOK_URL,
// NOTIFY_REQUEST_TIMEOUT, NOTIFY_SEND_TIMEOUT and NOTIFY_MAX_CONCURRENT.
// Invalid values fall back to the defaults; an invalid URL disables its
// channel.
func LoadConfig(logger *slog.Logger, metrics *config.Metrics) Config {
	cfg := DefaultConfig()
	l := config.NewLoader("notify", logger, metrics)

	cfg.SlackWebhookURL = config.Field(l, "slack_webhook_url",
		config.LoadEnvWithFallback("SLACK_WEBHOOK_URL", "", config.ValidateHTTPURL))
	cfg.DiscordWebhookURL = config.Field(l, "discord_webhook_url",
		config.LoadEnvWithFallback("DISCORD_WEBHOOK_URL", "", config.ValidateHTTPURL))
	cfg.RequestTimeout = config.Field(l, "request_timeout",
		config.LoadEnvDuration("NOTIFY_REQUEST_TIMEOUT", cfg.RequestTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Second, time.Minute)
		}))
	cfg.SendTimeout = config.Field(l, "send_timeout",
		config.LoadEnvDuration("NOTIFY_SEND_TIMEOUT", cfg.SendTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Second, 5*time.Minute)
		}))
	cfg.MaxConcurrent = config.Field(l, "max_concurrent",
		config.LoadEnvInt("NOTIFY_MAX_CONCURRENT", cfg.MaxConcurrent, func(v int) error {
			return config.ValidateIntRange(v, 1, 64)
		}))

	l.Finish()
	return cfg
}

// Enabled reports whether any channel has a webhook.
func (c Config) Enabled() bool {
	return c.SlackWebhookURL != "" || c.DiscordWebhookURL != ""
}

// Channels builds the slack and discord channels. A channel without a
// webhook is present but disabled.
func (c Config) Channels(logger *slog.Logger) []Channel {
	base := notifier.Config{Timeout: c.RequestTimeout, Logger: logger}
	slack, discord := base, base
	slack.WebhookURL = c.SlackWebhookURL
	discord.WebhookURL = c.DiscordWebhookURL
	return []Channel{NewSlackChannel(slack), NewDiscordChannel(discord)}
}
