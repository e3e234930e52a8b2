package services

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/charlesng35/csahub/pkg/errors"
	"github.com/charlesng35/csahub/pkg/validator"
)

const (
	maxEventTitle   = 200
	maxEventSummary = 500
	copyPrefix      = "Copy of "
)

var eventTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// EventForm is the raw admin event form.
type EventForm struct {
	ID          string `form:"event_id"`
	Title       string `form:"title"`
	Summary     string `form:"summary"`
	Description string `form:"description"`
	StartTime   string `form:"start_time"`
	EndTime     string `form:"end_time"`
	Location    string `form:"location"`
	RSVPURL     string `form:"rsvp_url"`
	MaxCapacity string `form:"max_capacity"`
}

// EventFields are validated event attributes. Times are UTC.
type EventFields struct {
	Title       string
	Summary     string
	Description *string
	StartTime   time.Time
	EndTime     *time.Time
	Location    *string
	RSVPURL     *string
	MaxCapacity *int
}

// EventCommand is an admin action on events. The set of commands is closed:
// CreateEvent, UpdateEvent, DeleteEvent and DuplicateEvent.
type EventCommand interface {
	Action() string
	isEventCommand()
}

// CreateEvent adds a new event.
type CreateEvent struct{ Fields EventFields }

// UpdateEvent replaces every attribute of an existing event.
type UpdateEvent struct {
	ID     uint
	Fields EventFields
}

// DeleteEvent removes an event.
type DeleteEvent struct{ ID uint }

// DuplicateEvent copies an event under a "Copy of" title.
type DuplicateEvent struct{ ID uint }

func (CreateEvent) Action() string    { return "create" }
func (UpdateEvent) Action() string    { return "update" }
func (DeleteEvent) Action() string    { return "delete" }
func (DuplicateEvent) Action() string { return "duplicate" }

func (CreateEvent) isEventCommand()    {}
func (UpdateEvent) isEventCommand()    {}
func (DeleteEvent) isEventCommand()    {}
func (DuplicateEvent) isEventCommand() {}

// ParseEventCommand validates form input for action. Local times without a
// zone are interpreted in loc.
func ParseEventCommand(action string, form EventForm, loc *time.Location) (EventCommand, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "create":
		fields, err := parseEventFields(form, loc)
		if err != nil {
			return nil, err
		}
		return CreateEvent{Fields: fields}, nil
	case "update":
		id, ok := parseID(form.ID)
		if !ok {
			return nil, apperrors.NewValidation("Invalid event ID.")
		}
		fields, err := parseEventFields(form, loc)
		if err != nil {
			return nil, err
		}
		return UpdateEvent{ID: id, Fields: fields}, nil
	case "delete":
		id, ok := parseID(form.ID)
		if !ok {
			return nil, apperrors.NewValidation("Invalid event ID.")
		}
		return DeleteEvent{ID: id}, nil
	case "duplicate":
		id, ok := parseID(form.ID)
		if !ok {
			return nil, apperrors.NewValidation("Invalid event ID.")
		}
		return DuplicateEvent{ID: id}, nil
	default:
		return nil, apperrors.NewValidation("Invalid action.")
	}
}

func parseEventFields(form EventForm, loc *time.Location) (EventFields, error) {
	title := strings.TrimSpace(form.Title)
	summary := strings.TrimSpace(form.Summary)
	rawStart := strings.TrimSpace(form.StartTime)
	if title == "" || summary == "" || rawStart == "" {
		return EventFields{}, apperrors.NewValidation("Title, summary, and start time are required.")
	}
	if runeLen(title) > maxEventTitle {
		return EventFields{}, apperrors.NewValidation("Title must be at most 200 characters.")
	}
	if runeLen(summary) > maxEventSummary {
		return EventFields{}, apperrors.NewValidation("Summary must be at most 500 characters.")
	}

	start, err := ParseEventTime(rawStart, loc)
	if err != nil {
		return EventFields{}, apperrors.NewValidation("Start time is not a valid date and time.")
	}

	fields := EventFields{
		Title:       title,
		Summary:     summary,
		Description: optionalString(form.Description),
		StartTime:   start,
		Location:    optionalString(form.Location),
	}

	if raw := strings.TrimSpace(form.EndTime); raw != "" {
		end, err := ParseEventTime(raw, loc)
		if err != nil {
			return EventFields{}, apperrors.NewValidation("End time is not a valid date and time.")
		}
		if !end.After(start) {
			return EventFields{}, apperrors.NewValidation("End time must be after start time.")
		}
		fields.EndTime = &end
	}

	if rsvp := optionalString(form.RSVPURL); rsvp != nil {
		if validator.Var(*rsvp, "httpurl,max=500") != nil {
			return EventFields{}, apperrors.NewValidation("RSVP URL must be a valid http or https link.")
		}
		fields.RSVPURL = rsvp
	}

	if raw := strings.TrimSpace(form.MaxCapacity); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil || capacity < 0 {
			return EventFields{}, apperrors.NewValidation("Max capacity must be a positive number.")
		}
		// Zero means no limit.
		if capacity > 0 {
			fields.MaxCapacity = &capacity
		}
	}

	return fields, nil
}

// ParseEventTime accepts HTML datetime-local values in loc, or RFC 3339.
// The result is UTC.
func ParseEventTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	var lastErr error
	for _, layout := range eventTimeLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
