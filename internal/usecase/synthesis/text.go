package synthesis

import (
	"strings"
	"unicode/utf8"
)

// normalizeText trims the input, collapses whitespace runs to a single space,
// substitutes fallback for empty input and truncates to limit runes.
func normalizeText(text, fallback string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		text = fallback
	}
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		text = string(runes[:limit])
	}
	return text
}
