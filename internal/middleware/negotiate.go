package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// WantsJSON reports whether the client asked for a JSON reply, either as an
// XMLHttpRequest or through the Accept header.
func WantsJSON(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "application/json")
}
