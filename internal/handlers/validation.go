package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// formBool reports whether a checkbox was ticked. Presence counts as ticked
// unless the value is an explicit false.
func formBool(c *gin.Context, key string) bool {
	value, ok := c.GetPostForm(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "off", "no":
		return false
	default:
		return true
	}
}
