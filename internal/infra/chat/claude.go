package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"nexus-voice/internal/resilience/retry"
)

// ClaudeProvider talks to Anthropic's Messages API.
type ClaudeProvider struct {
	client anthropic.Client
	cfg    ProviderConfig
}

// NewClaudeProvider creates a provider from cfg. The SDK's own retries are
// disabled; Service owns the retry policy.
func NewClaudeProvider(cfg ProviderConfig) *ClaudeProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	slog.Info("initialized claude chat provider", slog.String("model", cfg.Model))

	return &ClaudeProvider{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}
}

// Name implements Provider.
func (c *ClaudeProvider) Name() string { return ProviderClaude }

// Reply implements Provider.
func (c *ClaudeProvider) Reply(ctx context.Context, history []Message) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  messages,
	}
	if c.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.cfg.SystemPrompt}}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		slog.ErrorContext(ctx, "chat completion failed",
			slog.String("provider", ProviderClaude),
			slog.Duration("duration", requestDuration(start)),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("claude api error: %w", claudeStatusError(err))
	}

	var reply strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(text.Text)
		}
	}
	if reply.Len() == 0 {
		return "", errors.New("claude api returned empty response")
	}

	slog.DebugContext(ctx, "chat completion finished",
		slog.String("provider", ProviderClaude),
		slog.Duration("duration", requestDuration(start)),
		slog.Int64("output_tokens", message.Usage.OutputTokens))
	return reply.String(), nil
}

// Ping implements Provider by listing the available models.
func (c *ClaudeProvider) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("claude ping: %w", claudeStatusError(err))
	}
	return nil
}

func claudeStatusError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}, err)
	}
	return err
}
