package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"nexus-voice/internal/resilience/retry"
)

// OpenAIProvider talks to the OpenAI chat completions API or any
// compatible endpoint (DeepSeek, local gateways).
type OpenAIProvider struct {
	client *openai.Client
	cfg    ProviderConfig
}

// NewOpenAIProvider creates a provider from cfg. cfg.BaseURL replaces the
// OpenAI endpoint when set.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("initialized openai chat provider",
		slog.String("model", cfg.Model),
		slog.String("base_url", clientCfg.BaseURL))

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string { return ProviderOpenAI }

// Reply implements Provider.
func (o *OpenAIProvider) Reply(ctx context.Context, history []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.cfg.SystemPrompt,
		})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		slog.ErrorContext(ctx, "chat completion failed",
			slog.String("provider", ProviderOpenAI),
			slog.Duration("duration", requestDuration(start)),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("openai api error: %w", openAIStatusError(err))
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned empty response")
	}

	slog.DebugContext(ctx, "chat completion finished",
		slog.String("provider", ProviderOpenAI),
		slog.Duration("duration", requestDuration(start)),
		slog.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// Ping implements Provider by listing the available models.
func (o *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai ping: %w", openAIStatusError(err))
	}
	return nil
}

// openAIStatusError exposes the HTTP status of API failures as a
// retry.HTTPError so the retry policy can classify them.
func openAIStatusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}, err)
	}
	return err
}
