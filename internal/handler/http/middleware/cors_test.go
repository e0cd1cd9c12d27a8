package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"nexus-voice/internal/pkg/config"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	whitelist := DefaultCORSConfig()
	whitelist.AllowedOrigins = []string{"https://voice.example.com"}
	whitelist.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name            string
		cfg             CORSConfig
		method          string
		origin          string
		preflight       bool
		wantStatus      int
		wantAllowOrigin string
		wantCredentials string
		wantNextCalled  bool
	}{
		{name: "no origin", cfg: whitelist, method: http.MethodPost, wantStatus: 200, wantNextCalled: true},
		{name: "allowed origin", cfg: whitelist, method: http.MethodPost, origin: "https://voice.example.com",
			wantStatus: 200, wantAllowOrigin: "https://voice.example.com", wantCredentials: "true", wantNextCalled: true},
		{name: "disallowed origin", cfg: whitelist, method: http.MethodPost, origin: "https://evil.example",
			wantStatus: 200, wantNextCalled: true},
		{name: "allowed preflight", cfg: whitelist, method: http.MethodOptions, origin: "https://voice.example.com", preflight: true,
			wantStatus: http.StatusNoContent, wantAllowOrigin: "https://voice.example.com", wantCredentials: "true"},
		{name: "wildcard", cfg: DefaultCORSConfig(), method: http.MethodGet, origin: "http://192.168.1.20:8100",
			wantStatus: 200, wantAllowOrigin: "*", wantNextCalled: true},
		{name: "wildcard preflight", cfg: DefaultCORSConfig(), method: http.MethodOptions, origin: "null", preflight: true,
			wantStatus: http.StatusNoContent, wantAllowOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			handler := CORS(tt.cfg)(okHandler(&called))
			req := httptest.NewRequest(tt.method, "/api/tts", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantNextCalled, called)
			if tt.preflight {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
				assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestValidateOrigins(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "wildcard", input: "*"},
		{name: "list", input: "http://localhost:3000, https://voice.example.com"},
		{name: "empty", input: " , ", wantErr: true},
		{name: "wildcard mixed", input: "*,http://localhost:3000", wantErr: true},
		{name: "bad scheme", input: "ftp://example.com", wantErr: true},
		{name: "path", input: "https://example.com/app", wantErr: true},
		{name: "trailing slash", input: "https://example.com/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrigins(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadCORSConfig(t *testing.T) {
	t.Run("custom origins", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://voice.example.com")
		t.Setenv("CORS_MAX_AGE", "600")

		cfg := LoadCORSConfig(nil, nil)

		assert.Equal(t, []string{"http://localhost:3000", "https://voice.example.com"}, cfg.AllowedOrigins)
		assert.Equal(t, 600, cfg.MaxAge)
	})

	t.Run("invalid origins fall back to wildcard", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "javascript:alert(1)")
		t.Setenv("CORS_MAX_AGE", "")
		m := config.NewMetrics(prometheus.NewRegistry())

		cfg := LoadCORSConfig(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), m)

		assert.Equal(t, []string{Wildcard}, cfg.AllowedOrigins)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("cors", "allowed_origins")))
	})
}
