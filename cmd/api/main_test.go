package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/config"
	pkgconfig "nexus-voice/internal/pkg/config"
)

func newStatelessApp(t *testing.T) (*config.AppConfig, *components) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SLACK_WEBHOOK_URL", "")
	t.Setenv("DISCORD_WEBHOOK_URL", "")
	t.Setenv("PAGINATION_DEFAULT_LIMIT", "")
	t.Setenv("PAGINATION_MAX_LIMIT", "")
	cfg := config.DefaultAppConfig()
	cfg.DiskPath = t.TempDir()

	c, err := buildApp(slog.New(slog.NewTextHandler(io.Discard, nil)), &cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	return &cfg, c
}

func TestBuildApp_Stateless(t *testing.T) {
	_, c := newStatelessApp(t)

	assert.Nil(t, c.store)
	assert.Nil(t, c.chat)
	assert.Nil(t, c.asr)
	assert.Nil(t, c.scheduler)
	assert.NotNil(t, c.pipeline)
	assert.NotNil(t, c.coordinator)
	require.NotNil(t, c.alerts)
	for _, ch := range c.alerts.ChannelHealth() {
		assert.False(t, ch.Enabled, ch.Name)
	}
}

func TestSetupRoutes(t *testing.T) {
	cfg, c := newStatelessApp(t)
	mux := setupRoutes(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, c, "test")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/tts/status", http.StatusOK},
		{http.MethodGet, "/api/tts/voices", http.StatusOK},
		{http.MethodGet, "/api/recovery/status", http.StatusOK},
		{http.MethodGet, "/api/metrics?service=chat", http.StatusOK},
		{http.MethodPost, "/api/tts/cache/clear", http.StatusOK},
		{http.MethodPost, "/api/chat", http.StatusNotFound},
		{http.MethodPost, "/api/sessions", http.StatusNotFound},
		{http.MethodPost, "/api/transcribe", http.StatusNotFound},
		{http.MethodGet, "/api/users/u1/interactions", http.StatusNotFound},
		{http.MethodGet, "/api/interactions/stats", http.StatusNotFound},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestApplyMiddleware(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://voice.example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h := applyMiddleware(logger, pkgconfig.NewMetrics(prometheus.NewRegistry()), next)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Origin", "https://voice.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://voice.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/tts", nil)
	preflight.Header.Set("Origin", "https://voice.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, preflight)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
