package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/middleware"
	"github.com/charlesng35/csahub/internal/services"
	appErrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/response"
)

// AdminEventsPath is the event management page.
const AdminEventsPath = "/admin/events"

// EventAdminHandler lists events and applies admin event commands.
type EventAdminHandler struct {
	svc  *services.EventService
	site Site
}

// NewEventAdminHandler constructs the handler.
func NewEventAdminHandler(svc *services.EventService, site Site) (*EventAdminHandler, error) {
	if svc == nil {
		return nil, errors.New("event admin handler: event service is required")
	}
	return &EventAdminHandler{svc: svc, site: site}, nil
}

// GET /admin/events?time=&search=&page=
func (h *EventAdminHandler) List(c *gin.Context) {
	page, err := h.svc.List(requestContext(c), services.EventListOptions{
		Time:   c.Query("time"),
		Search: c.Query("search"),
		Page:   parseIntQuery(c, "page", 1),
	})
	if err != nil {
		logAndRespond(c, err)
		return
	}

	if middleware.WantsJSON(c) {
		response.SuccessWithMeta(c, http.StatusOK, gin.H{
			"events": page.Events,
			"counts": page.Counts,
			"time":   page.Time,
			"search": page.Search,
		}, response.NewMeta(page.Page, page.PerPage, page.Total))
		return
	}
	render(c, h.site, http.StatusOK, "admin_events.tmpl", "Events", gin.H{
		"Page":     page,
		"ReturnTo": c.Request.URL.RequestURI(),
	})
}

// POST /admin/events
func (h *EventAdminHandler) Command(c *gin.Context) {
	var form services.EventForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, appErrors.NewBadRequest("Invalid form submission."), returnPath(c, AdminEventsPath))
		return
	}

	cmd, err := services.ParseEventCommand(c.PostForm("action"), form, h.site.location())
	if err != nil {
		fail(c, err, returnPath(c, AdminEventsPath))
		return
	}

	message, event, err := h.svc.Execute(requestContext(c), actorFromContext(c), cmd)
	if err != nil {
		fail(c, err, returnPath(c, AdminEventsPath))
		return
	}
	succeed(c, message, returnPath(c, AdminEventsPath), gin.H{
		"action": cmd.Action(),
		"event":  event,
	})
}
