// Package asr provides the speech recognition capability.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nexus-voice/internal/resilience/retry"
)

// Transcript is the text recognised from one audio clip.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

// Recognizer converts audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, format string) (Transcript, error)
}

// Config configures the HTTP recognizer.
type Config struct {
	BaseURL  string
	APIKey   string
	Language string

	// Timeout bounds one HTTP exchange.
	Timeout time.Duration
}

// DefaultConfig returns the recognizer defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:  baseURL,
		Language: "zh-CN",
		Timeout:  30 * time.Second,
	}
}

// HTTPRecognizer posts raw audio to {base}/recognize and decodes a JSON
// transcript.
type HTTPRecognizer struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPRecognizer creates a recognizer. A nil client gets one with
// cfg.Timeout.
func NewHTTPRecognizer(cfg Config, client *http.Client) (*HTTPRecognizer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("asr base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPRecognizer{cfg: cfg, httpClient: client}, nil
}

// Recognize implements Recognizer.
func (r *HTTPRecognizer) Recognize(ctx context.Context, audio []byte, format string) (Transcript, error) {
	q := url.Values{}
	q.Set("language", r.cfg.Language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.BaseURL+"/recognize?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return Transcript{}, fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/"+format)
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognize request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcript{}, fmt.Errorf("recognize request: %w",
			&retry.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
	}

	var t Transcript
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	if t.Language == "" {
		t.Language = r.cfg.Language
	}
	return t, nil
}

// Ping checks the recognizer's health endpoint.
func (r *HTTPRecognizer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("asr ping: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asr ping: %w", &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status})
	}
	return nil
}
