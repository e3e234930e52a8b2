package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/pkg/logger"
)

// EventsPerPage is the admin list page size.
const EventsPerPage = 20

// EventListOptions filter the admin event list. Time is one of all,
// upcoming or past.
type EventListOptions struct {
	Time   string
	Search string
	Page   int
}

// EventCounts split the table around the current time.
type EventCounts struct {
	All      int64 `json:"all"`
	Upcoming int64 `json:"upcoming"`
	Past     int64 `json:"past"`
}

// EventPage is one page of the admin event list.
type EventPage struct {
	Events     []models.Event `json:"events"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
	Counts     EventCounts    `json:"counts"`
	Time       string         `json:"time"`
	Search     string         `json:"search"`
}

// EventService manages events for the admin panel and the public feed.
type EventService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// EventServiceOption customises the EventService.
type EventServiceOption func(*EventService)

// WithEventClock injects a custom time source.
func WithEventClock(clock func() time.Time) EventServiceOption {
	return func(s *EventService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewEventService constructs an EventService.
func NewEventService(db *gorm.DB, audit *AuditService, opts ...EventServiceOption) (*EventService, error) {
	if db == nil {
		return nil, errors.New("event service: db is required")
	}
	s := &EventService{
		db:    db,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.WithModule("events"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns a filtered page of events, latest start first.
func (s *EventService) List(ctx context.Context, opts EventListOptions) (*EventPage, error) {
	ctx = ensureContext(ctx)
	filter := normaliseTimeFilter(opts.Time)
	search := strings.TrimSpace(opts.Search)
	page := normalisePage(opts.Page)
	now := s.now()

	query := s.db.WithContext(ctx).Model(&models.Event{})
	switch filter {
	case "upcoming":
		query = query.Where("start_time > ?", now)
	case "past":
		query = query.Where("start_time <= ?", now)
	}
	if search != "" {
		pattern := likePattern(search)
		query = query.Where(
			"(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(summary) LIKE ? ESCAPE '!' OR LOWER(COALESCE(location, '')) LIKE ? ESCAPE '!')",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, internalError(fmt.Errorf("count events: %w", err))
	}

	var events []models.Event
	if err := query.
		Order("start_time DESC").
		Order("id DESC").
		Offset((page - 1) * EventsPerPage).
		Limit(EventsPerPage).
		Find(&events).Error; err != nil {
		return nil, internalError(fmt.Errorf("list events: %w", err))
	}

	counts, err := s.counts(ctx, now)
	if err != nil {
		return nil, internalError(err)
	}

	return &EventPage{
		Events:     events,
		Total:      total,
		Page:       page,
		PerPage:    EventsPerPage,
		TotalPages: totalPages(total, EventsPerPage),
		Counts:     counts,
		Time:       filter,
		Search:     search,
	}, nil
}

func (s *EventService) counts(ctx context.Context, now time.Time) (EventCounts, error) {
	var counts EventCounts
	base := s.db.WithContext(ctx).Model(&models.Event{})
	if err := base.Count(&counts.All).Error; err != nil {
		return counts, fmt.Errorf("count events: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("start_time > ?", now).
		Count(&counts.Upcoming).Error; err != nil {
		return counts, fmt.Errorf("count upcoming events: %w", err)
	}
	counts.Past = counts.All - counts.Upcoming
	return counts, nil
}

// Upcoming returns the next limit events, soonest first.
func (s *EventService) Upcoming(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ensureContext(ctx)).
		Where("start_time > ?", s.now()).
		Order("start_time ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, internalError(fmt.Errorf("upcoming events: %w", err))
	}
	return events, nil
}

// Past returns the most recent limit events that have started.
func (s *EventService) Past(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ensureContext(ctx)).
		Where("start_time <= ?", s.now()).
		Order("start_time DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, internalError(fmt.Errorf("past events: %w", err))
	}
	return events, nil
}

// Get loads an event by id.
func (s *EventService) Get(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ensureContext(ctx)).Take(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("load event: %w", err))
	}
	return &event, nil
}

// Execute applies cmd and returns the confirmation message with the
// affected event.
func (s *EventService) Execute(ctx context.Context, actor Actor, cmd EventCommand) (string, *models.Event, error) {
	ctx = ensureContext(ctx)
	if cmd == nil {
		return "", nil, ErrEventNotFound
	}

	message, event, err := s.execute(ctx, actor, cmd)

	result := AuditSuccess
	if err != nil {
		result = AuditFailure
	}
	var resource string
	var metadata map[string]any
	if event != nil {
		resource = resourceRef("event", event.ID)
		metadata = map[string]any{"title": event.Title}
	} else if id := eventCommandID(cmd); id != 0 {
		resource = resourceRef("event", id)
	}
	recordAudit(s.audit, ctx, actor.entry("event."+cmd.Action(), resource, result, metadata))

	if err != nil {
		return "", nil, err
	}
	s.log.Info("event command applied",
		zap.String("action", cmd.Action()),
		zap.Uint("event_id", event.ID),
		zap.String("admin", actor.Email),
	)
	return message, event, nil
}

func (s *EventService) execute(ctx context.Context, actor Actor, cmd EventCommand) (string, *models.Event, error) {
	db := s.db.WithContext(ctx)

	switch c := cmd.(type) {
	case CreateEvent:
		event := eventFromFields(c.Fields)
		if actor.AdminID != 0 {
			creator := actor.AdminID
			event.CreatedBy = &creator
		}
		if err := db.Create(&event).Error; err != nil {
			return "", nil, internalError(fmt.Errorf("create event: %w", err))
		}
		return fmt.Sprintf("Event '%s' created successfully!", event.Title), &event, nil

	case UpdateEvent:
		event, err := s.Get(ctx, c.ID)
		if err != nil {
			return "", nil, err
		}
		f := c.Fields
		if err := db.Model(event).Updates(map[string]any{
			"title":        f.Title,
			"summary":      f.Summary,
			"description":  f.Description,
			"start_time":   f.StartTime,
			"end_time":     f.EndTime,
			"location":     f.Location,
			"rsvp_url":     f.RSVPURL,
			"max_capacity": f.MaxCapacity,
		}).Error; err != nil {
			return "", nil, internalError(fmt.Errorf("update event: %w", err))
		}
		updated, err := s.Get(ctx, c.ID)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Event '%s' updated successfully!", updated.Title), updated, nil

	case DeleteEvent:
		event, err := s.Get(ctx, c.ID)
		if err != nil {
			return "", nil, err
		}
		if err := db.Delete(&models.Event{}, event.ID).Error; err != nil {
			return "", nil, internalError(fmt.Errorf("delete event: %w", err))
		}
		return fmt.Sprintf("Event '%s' deleted successfully!", event.Title), event, nil

	case DuplicateEvent:
		original, err := s.Get(ctx, c.ID)
		if err != nil {
			return "", nil, err
		}
		clone := *original
		clone.ID = 0
		clone.Title = truncateRunes(copyPrefix+original.Title, maxEventTitle)
		clone.CreatedAt = time.Time{}
		clone.UpdatedAt = time.Time{}
		clone.CreatedBy = nil
		if actor.AdminID != 0 {
			creator := actor.AdminID
			clone.CreatedBy = &creator
		}
		if err := db.Create(&clone).Error; err != nil {
			return "", nil, internalError(fmt.Errorf("duplicate event: %w", err))
		}
		return fmt.Sprintf("Event duplicated successfully! New event: '%s'", clone.Title), &clone, nil

	default:
		return "", nil, fmt.Errorf("event service: unsupported command %T", cmd)
	}
}

func eventFromFields(f EventFields) models.Event {
	return models.Event{
		Title:       f.Title,
		Summary:     f.Summary,
		Description: f.Description,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Location:    f.Location,
		RSVPURL:     f.RSVPURL,
		MaxCapacity: f.MaxCapacity,
	}
}

func eventCommandID(cmd EventCommand) uint {
	switch c := cmd.(type) {
	case UpdateEvent:
		return c.ID
	case DeleteEvent:
		return c.ID
	case DuplicateEvent:
		return c.ID
	}
	return 0
}

func normaliseTimeFilter(filter string) string {
	filter = strings.ToLower(strings.TrimSpace(filter))
	switch filter {
	case "upcoming", "past":
		return filter
	default:
		return "all"
	}
}
