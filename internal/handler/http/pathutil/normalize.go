// Package pathutil reduces request paths to route templates for use as
// metric labels.
package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern maps a dynamic route to its template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^/api/sessions/[^/]+$`), Template: "/api/sessions/:id"},
	{Pattern: regexp.MustCompile(`^/api/sessions/[^/]+/end$`), Template: "/api/sessions/:id/end"},
	{Pattern: regexp.MustCompile(`^/api/users/[^/]+/interactions$`), Template: "/api/users/:user_id/interactions"},
}

var staticPaths = map[string]struct{}{
	"/":                       {},
	"/health":                 {},
	"/api/health":             {},
	"/health/tts":             {},
	"/live":                   {},
	"/ready":                  {},
	"/metrics":                {},
	"/api/metrics":            {},
	"/api/recovery/status":    {},
	"/api/recovery/trigger":   {},
	"/api/tts":                {},
	"/api/tts/status":         {},
	"/api/tts/voices":         {},
	"/api/tts/cache/clear":    {},
	"/api/transcribe":         {},
	"/api/chat":               {},
	"/api/sessions":           {},
	"/api/interactions/stats": {},
}

// Unmatched is the label of every path outside the route table.
const Unmatched = "/other"

// NormalizePath strips the query and trailing slash, maps dynamic routes to
// their template and folds unknown paths into Unmatched.
//
//	NormalizePath("/api/sessions/5f0c...")  // "/api/sessions/:id"
//	NormalizePath("/api/tts/")              // "/api/tts"
//	NormalizePath("/wp-login.php")          // "/other"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	if _, ok := staticPaths[path]; ok {
		return path
	}
	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}
	return Unmatched
}

// ExpectedCardinality returns the number of distinct labels NormalizePath can produce.
func ExpectedCardinality() int {
	return len(staticPaths) + len(pathPatterns) + 1
}
