// Package middleware holds cross-origin handling for the browser and mobile
// web clients of the voice API.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"nexus-voice/internal/pkg/config"
)

// Wildcard allows every origin without credentials.
const Wildcard = "*"

// CORSConfig is the cross-origin policy.
type CORSConfig struct {
	// AllowedOrigins is an exact match list, or ["*"].
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
	Logger *slog.Logger
}

// DefaultCORSConfig allows any origin, which is what the mobile web views
// served from file:// and LAN addresses need.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{Wildcard},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         86400,
	}
}

// LoadCORSConfig reads CORS_ALLOWED_ORIGINS (comma separated or "*") and
// CORS_MAX_AGE. Invalid values keep the defaults.
func LoadCORSConfig(logger *slog.Logger, metrics *config.Metrics) CORSConfig {
	cfg := DefaultCORSConfig()
	l := config.NewLoader("cors", logger, metrics)

	origins := config.Field(l, "allowed_origins",
		config.LoadEnvWithFallback("CORS_ALLOWED_ORIGINS", Wildcard, ValidateOrigins))
	cfg.AllowedOrigins = splitList(origins)
	cfg.MaxAge = config.Field(l, "max_age",
		config.LoadEnvInt("CORS_MAX_AGE", cfg.MaxAge, func(v int) error {
			return config.ValidateIntRange(v, 0, 7*86400)
		}))

	l.Finish()
	cfg.Logger = logger
	return cfg
}

// ValidateOrigins checks a comma separated origin list. Each origin must be
// an http(s) scheme and host without path, query or trailing slash.
func ValidateOrigins(list string) error {
	origins := splitList(list)
	if len(origins) == 0 {
		return fmt.Errorf("at least one origin is required")
	}
	for _, o := range origins {
		if o == Wildcard {
			if len(origins) > 1 {
				return fmt.Errorf("wildcard origin cannot be combined with other origins")
			}
			continue
		}
		u, err := url.Parse(o)
		if err != nil {
			return fmt.Errorf("invalid origin '%s': %w", o, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin must use http or https scheme: %s", o)
		}
		if u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("origin must be scheme and host only: %s", o)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CORS applies cfg. Requests without an Origin header pass through untouched.
// Disallowed origins get no CORS headers, so the browser blocks the response.
// Allowed preflights are answered with 204 without reaching next.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	wildcard := slices.Contains(cfg.AllowedOrigins, Wildcard)
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			switch _, ok := allowed[origin]; {
			case ok:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			case wildcard:
				h.Set("Access-Control-Allow-Origin", Wildcard)
			default:
				logger.Warn("CORS: origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method))
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
