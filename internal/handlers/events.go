package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/services"
	"github.com/charlesng35/csahub/pkg/response"
)

const (
	feedUpcomingLimit = 6
	feedPastLimit     = 2
)

// EventFeedHandler serves the public event listing.
type EventFeedHandler struct {
	svc *services.EventService
}

// NewEventFeedHandler constructs the handler.
func NewEventFeedHandler(svc *services.EventService) (*EventFeedHandler, error) {
	if svc == nil {
		return nil, errors.New("event feed handler: service is required")
	}
	return &EventFeedHandler{svc: svc}, nil
}

// GET /api/events
func (h *EventFeedHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	upcoming, err := h.svc.Upcoming(ctx, feedUpcomingLimit)
	if err != nil {
		logAndRespond(c, err)
		return
	}
	past, err := h.svc.Past(ctx, feedPastLimit)
	if err != nil {
		logAndRespond(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"upcoming": upcoming,
		"past":     past,
	})
}
