// Package tts is the HTTP client of the external speech synthesis engine.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexus-voice/internal/resilience/retry"
	"nexus-voice/internal/usecase/synthesis"
)

// Config contains the engine endpoint settings.
type Config struct {
	// BaseURL of the engine, e.g. http://tts:5050.
	BaseURL string

	// ChunkSize is the read size for the streamed audio body.
	ChunkSize int

	// Format is the requested audio container.
	Format string

	// DialTimeout bounds connection setup and response headers. The body
	// stream is bounded by the caller's context only.
	DialTimeout time.Duration
}

// DefaultConfig returns the engine defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		ChunkSize:   1024,
		Format:      "mp3",
		DialTimeout: 10 * time.Second,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("tts base url is required"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.Format == "" {
		errs = append(errs, errors.New("audio format cannot be empty"))
	}
	return errors.Join(errs...)
}

// HTTPEngine implements synthesis.Engine over HTTP. The engine answers
// POST {base}/synthesize with a chunked audio body.
type HTTPEngine struct {
	cfg        Config
	httpClient *http.Client
}

var _ synthesis.Engine = (*HTTPEngine)(nil)

// NewHTTPEngine creates an engine client. A nil client gets a transport
// with cfg.DialTimeout as response-header timeout.
func NewHTTPEngine(cfg Config, client *http.Client) (*HTTPEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tts configuration: %w", err)
	}
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.DialTimeout
		client = &http.Client{Transport: transport}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPEngine{cfg: cfg, httpClient: client}, nil
}

type synthesizeRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// Stream implements synthesis.Engine.
func (e *HTTPEngine) Stream(ctx context.Context, text, voice string) (<-chan synthesis.Chunk, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice, Format: e.cfg.Format})
	if err != nil {
		return nil, fmt.Errorf("encode synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/"+e.cfg.Format)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesize request: %w",
			&retry.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
	}

	chunks := make(chan synthesis.Chunk)
	go e.pump(ctx, resp.Body, chunks)
	return chunks, nil
}

// pump copies the body into chunks until EOF, a read error or ctx is done.
func (e *HTTPEngine) pump(ctx context.Context, body io.ReadCloser, chunks chan<- synthesis.Chunk) {
	defer close(chunks)
	defer func() { _ = body.Close() }()

	buf := make([]byte, e.cfg.ChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case chunks <- synthesis.Chunk{Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("synthesis stream read failed", slog.Any("error", err))
			}
			select {
			case chunks <- synthesis.Chunk{Err: fmt.Errorf("read audio stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
	}
}
