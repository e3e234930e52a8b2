package security

import (
	"html"
	"strings"
)

// SanitizeText trims s and escapes HTML metacharacters so the value is safe
// to store and render in any context.
func SanitizeText(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
