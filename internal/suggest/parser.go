package suggest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minSuggestionRunes = 11
	maxSuggestionRunes = 99
)

// cleanupRule rewrites one candidate line. Rules run in the order listed in
// cleanupRules; each sees the output of the previous one.
type cleanupRule struct {
	name  string
	apply func(string) string
}

// cleanupRules strips list markup before quotes so that `- "Do you deliver?"`
// loses both.
var cleanupRules = []cleanupRule{
	{name: "bullet", apply: stripBullet},
	{name: "ordinal", apply: stripOrdinal},
	{name: "space", apply: strings.TrimSpace},
	{name: "quotes", apply: stripQuotes},
}

// ParseSuggestions splits completion text into at most limit cleaned
// suggestion lines, keeping only those of a sensible length.
func ParseSuggestions(text string, limit int) []string {
	out := make([]string, 0, limit)
	for _, line := range strings.Split(text, "\n") {
		if len(out) >= limit {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		candidate := cleanLine(line)
		n := utf8.RuneCountInString(candidate)
		if n < minSuggestionRunes || n > maxSuggestionRunes {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	for _, rule := range cleanupRules {
		line = rule.apply(line)
	}
	return line
}

// stripBullet removes one leading "-", "•" or "*" and the spaces after it.
func stripBullet(s string) string {
	for _, marker := range []string{"-", "•", "*"} {
		if rest, ok := strings.CutPrefix(s, marker); ok {
			return strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
	}
	return s
}

// stripOrdinal removes a leading "12." list number.
func stripOrdinal(s string) string {
	digits := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if digits <= 0 || s[digits] != '.' {
		return s
	}
	return strings.TrimLeftFunc(s[digits+1:], unicode.IsSpace)
}

// stripQuotes drops one leading and one trailing straight quote.
func stripQuotes(s string) string {
	if strings.HasPrefix(s, `"`) || strings.HasPrefix(s, "'") {
		s = s[1:]
	}
	if strings.HasSuffix(s, `"`) || strings.HasSuffix(s, "'") {
		s = s[:len(s)-1]
	}
	return s
}
