// Package response renders the JSON envelopes used by the public API and the
// AJAX variants of the form endpoints.
package response

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/csahub/pkg/errors"
)

// Response is the envelope for data-bearing replies.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta describes one page of a listing.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

func NewMeta(page, perPage int, total int64) *Meta {
	meta := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return meta
}

func Success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func SuccessWithMeta(c *gin.Context, status int, data any, meta *Meta) {
	c.JSON(status, Response{Success: true, Data: data, Meta: meta})
}

// Message writes {"success": true, "message": ...} with fields merged in at the
// top level. Fields cannot override success or message.
func Message(c *gin.Context, status int, message string, fields gin.H) {
	payload := make(gin.H, len(fields)+2)
	for key, value := range fields {
		payload[key] = value
	}
	payload["success"] = true
	payload["message"] = message
	c.JSON(status, payload)
}

// Error writes {"success": false, "message": ...}. Only the visitor-safe
// message of err is rendered; anything that is not an AppError becomes a
// generic 500.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)
	c.JSON(appErr.Status(), Response{Success: false, Message: appErr.Message})
}
