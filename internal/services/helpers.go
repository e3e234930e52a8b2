package services

import (
	"context"
	"strings"
	"unicode/utf8"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}

func truncateRunes(value string, limit int) string {
	if runeLen(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

func normalisePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func totalPages(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// likeEscapes quotes the LIKE wildcards with '!', which every supported
// dialect accepts in an ESCAPE clause without further quoting.
var likeEscapes = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likePattern builds a case-insensitive contains pattern in which the
// wildcards of term match literally. Use it with ESCAPE '!'.
func likePattern(term string) string {
	return "%" + likeEscapes.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
