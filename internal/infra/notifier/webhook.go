package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"nexus-voice/internal/domain/entity"
)

// Config configures one webhook channel.
type Config struct {
	// WebhookURL carries the provider token. It is never logged.
	WebhookURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxAttempts defaults to 2.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt. It grows
	// linearly with the attempt number. Defaults to 5s.
	BaseDelay time.Duration

	Logger *slog.Logger
}

// webhook posts JSON payloads and classifies the answers.
type webhook struct {
	provider    string
	url         string
	client      *http.Client
	limiter     *RateLimiter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

func newWebhook(provider string, cfg Config, limiter *RateLimiter) *webhook {
	w := &webhook{
		provider:    provider,
		url:         cfg.WebhookURL,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      cfg.Logger,
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = 2
	}
	if w.baseDelay <= 0 {
		w.baseDelay = 5 * time.Second
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// retryAfterBody is the 429 body shape. Discord sends seconds as a float,
// Slack relies on the Retry-After header.
type retryAfterBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// extractRetryAfter reads retry_after from the body, then the Retry-After
// header, and falls back to 5s.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var parsed retryAfterBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// post makes one attempt.
func (w *webhook) post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		// *url.Error embeds the webhook URL and its token.
		return fmt.Errorf("execute http request: %w", unwrapURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    w.provider + " rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", w.provider, string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", w.provider, string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// postWithRetry retries server and transport failures with a linear
// backoff and sleeps through 429s. Client errors fail at once.
func (w *webhook) postWithRetry(ctx context.Context, alert *entity.Alert, payload any) error {
	requestID, _ := ctx.Value(requestIDKey).(string)
	log := w.logger.With(
		slog.String("request_id", requestID),
		slog.String("provider", w.provider),
		slog.String("capability", alert.Capability.String()))

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.post(ctx, payload)
		if err == nil {
			log.Info("alert delivered", slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			log.Warn("webhook rate limit hit, backing off",
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))
			if attempt == w.maxAttempts {
				break
			}
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			log.Error("alert failed with non-retryable error",
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < w.maxAttempts {
			delay := w.baseDelay * time.Duration(attempt)
			log.Warn("webhook request failed, retrying",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	log.Error("alert failed after all retries",
		slog.Any("error", lastErr),
		slog.Int("max_attempts", w.maxAttempts))
	return fmt.Errorf("%s notification failed after %d attempts: %w", w.provider, w.maxAttempts, lastErr)
}

// send tags ctx with a request id, waits for the rate limiter and posts.
func (w *webhook) send(ctx context.Context, alert *entity.Alert, payload any) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := w.limiter.Allow(ctx); err != nil {
		w.logger.Error("rate limiter error",
			slog.String("request_id", requestID),
			slog.String("provider", w.provider),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return w.postWithRetry(ctx, alert, payload)
}
