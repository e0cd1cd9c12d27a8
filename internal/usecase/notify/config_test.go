package notify

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"nexus-voice/internal/pkg/config"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		want      Config
		fallbacks []string
	}{
		{name: "defaults", want: DefaultConfig()},
		{
			name: "both channels",
			env: map[string]string{
				"SLACK_WEBHOOK_URL":     "https://hooks.slack.com/services/T/B/x",
				"DISCORD_WEBHOOK_URL":   "https://discord.com/api/webhooks/1/y",
				"NOTIFY_SEND_TIMEOUT":   "45s",
				"NOTIFY_MAX_CONCURRENT": "8",
			},
			want: Config{
				SlackWebhookURL:   "https://hooks.slack.com/services/T/B/x",
				DiscordWebhookURL: "https://discord.com/api/webhooks/1/y",
				RequestTimeout:    10 * time.Second,
				SendTimeout:       45 * time.Second,
				MaxConcurrent:     8,
			},
		},
		{
			name: "invalid values fall back",
			env: map[string]string{
				"SLACK_WEBHOOK_URL":      "hooks.slack.com",
				"NOTIFY_REQUEST_TIMEOUT": "5m",
				"NOTIFY_MAX_CONCURRENT":  "0",
			},
			want:      DefaultConfig(),
			fallbacks: []string{"slack_webhook_url", "request_timeout", "max_concurrent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"SLACK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL", "NOTIFY_REQUEST_TIMEOUT", "NOTIFY_SEND_TIMEOUT", "NOTIFY_MAX_CONCURRENT"} {
				t.Setenv(key, tt.env[key])
			}
			m := config.NewMetrics(prometheus.NewRegistry())

			got := LoadConfig(nil, m)

			assert.Equal(t, tt.want, got)
			for _, f := range tt.fallbacks {
				assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("notify", f)), f)
			}
		})
	}
}

func TestConfig_Channels(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())

	cfg.SlackWebhookURL = "https://hooks.slack.com/services/T/B/x"
	assert.True(t, cfg.Enabled())

	channels := cfg.Channels(nil)
	assert.Len(t, channels, 2)
	assert.Equal(t, "slack", channels[0].Name())
	assert.True(t, channels[0].IsEnabled())
	assert.Equal(t, "discord", channels[1].Name())
	assert.False(t, channels[1].IsEnabled())
}
