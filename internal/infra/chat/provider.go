// Package chat provides the conversational capability on top of hosted
// language models. Providers talk to one API each; Service adds the
// circuit breaker, retry policy and health reporting.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider generates a reply for a conversation.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Reply returns the assistant's next message for history.
	Reply(ctx context.Context, history []Message) (string, error)

	// Ping verifies the provider is reachable and the credentials are accepted.
	Ping(ctx context.Context) error
}

// Provider names accepted by ProviderConfig.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// DefaultSystemPrompt is sent with every conversation unless overridden.
const DefaultSystemPrompt = "你是一个友好的语音助手。请用简洁、口语化的中文回答，适合朗读。"

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	// Provider is "openai" (any OpenAI compatible endpoint) or "claude".
	Provider string

	APIKey string

	// BaseURL overrides the provider endpoint. Empty uses the provider default.
	BaseURL string

	Model string

	MaxTokens int

	SystemPrompt string
}

// DefaultProviderConfig returns the configuration for an OpenAI compatible
// provider without credentials.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:     ProviderOpenAI,
		Model:        "deepseek-chat",
		MaxTokens:    1024,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Validate reports every invalid field at once.
func (c ProviderConfig) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOpenAI, ProviderClaude:
	default:
		errs = append(errs, fmt.Errorf("unknown chat provider %q", c.Provider))
	}
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("chat api key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("chat model cannot be empty"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	return errors.Join(errs...)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat configuration: %w", err)
	}
	switch cfg.Provider {
	case ProviderClaude:
		return NewClaudeProvider(cfg), nil
	default:
		return NewOpenAIProvider(cfg), nil
	}
}

// lastUserContent returns the content of the most recent user message.
func lastUserContent(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// requestDuration is used for log fields only.
func requestDuration(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
