package services

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
	apperrors "github.com/charlesng35/csahub/pkg/errors"
)

func newEventFixture(t *testing.T) (*gorm.DB, *EventService, *testClock) {
	t.Helper()
	db := openServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	clock := newTestClock()
	svc, err := NewEventService(db, audit, WithEventClock(clock.Now))
	require.NoError(t, err)
	return db, svc, clock
}

func seedEvent(t *testing.T, db *gorm.DB, title string, start time.Time) models.Event {
	t.Helper()
	event := models.Event{Title: title, Summary: title + " summary", StartTime: start}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func validEventForm() EventForm {
	return EventForm{
		Title:       "Lunar New Year Social",
		Summary:     "Food, games and friends.",
		Description: "Bring a friend.",
		StartTime:   "2026-05-01T18:00",
		EndTime:     "2026-05-01T20:30",
		Location:    "Student Center",
		RSVPURL:     "https://example.com/rsvp",
		MaxCapacity: "80",
	}
}

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, message, appErr.Message)
}

func TestParseEventCommandCreate(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	cmd, err := ParseEventCommand("create", validEventForm(), loc)
	require.NoError(t, err)
	create, ok := cmd.(CreateEvent)
	require.True(t, ok)

	f := create.Fields
	require.Equal(t, "Lunar New Year Social", f.Title)
	require.Equal(t, time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC), f.StartTime)
	require.NotNil(t, f.EndTime)
	require.Equal(t, time.Date(2026, 5, 2, 1, 30, 0, 0, time.UTC), *f.EndTime)
	require.Equal(t, "Student Center", *f.Location)
	require.Equal(t, 80, *f.MaxCapacity)
}

func TestParseEventCommandValidation(t *testing.T) {
	cases := []struct {
		name    string
		action  string
		mutate  func(*EventForm)
		message string
	}{
		{"unknown action", "archive", func(*EventForm) {}, "Invalid action."},
		{"missing title", "create", func(f *EventForm) { f.Title = "  " }, "Title, summary, and start time are required."},
		{"missing start", "create", func(f *EventForm) { f.StartTime = "" }, "Title, summary, and start time are required."},
		{"long title", "create", func(f *EventForm) { f.Title = strings.Repeat("x", 201) }, "Title must be at most 200 characters."},
		{"long summary", "create", func(f *EventForm) { f.Summary = strings.Repeat("x", 501) }, "Summary must be at most 500 characters."},
		{"bad start", "create", func(f *EventForm) { f.StartTime = "next friday" }, "Start time is not a valid date and time."},
		{"end before start", "create", func(f *EventForm) { f.EndTime = "2026-05-01T17:00" }, "End time must be after start time."},
		{"end equals start", "create", func(f *EventForm) { f.EndTime = f.StartTime }, "End time must be after start time."},
		{"bad rsvp scheme", "create", func(f *EventForm) { f.RSVPURL = "javascript:alert(1)" }, "RSVP URL must be a valid http or https link."},
		{"negative capacity", "create", func(f *EventForm) { f.MaxCapacity = "-5" }, "Max capacity must be a positive number."},
		{"non-numeric capacity", "create", func(f *EventForm) { f.MaxCapacity = "lots" }, "Max capacity must be a positive number."},
		{"update without id", "update", func(f *EventForm) { f.ID = "" }, "Invalid event ID."},
		{"delete with bad id", "delete", func(f *EventForm) { f.ID = "abc" }, "Invalid event ID."},
		{"duplicate with zero id", "duplicate", func(f *EventForm) { f.ID = "0" }, "Invalid event ID."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validEventForm()
			tc.mutate(&form)
			_, err := ParseEventCommand(tc.action, form, time.UTC)
			requireValidation(t, err, tc.message)
		})
	}
}

func TestParseEventCommandOptionalFields(t *testing.T) {
	form := EventForm{Title: "Meeting", Summary: "Weekly", StartTime: "2026-05-01T18:00:00Z", MaxCapacity: "0"}
	cmd, err := ParseEventCommand("create", form, nil)
	require.NoError(t, err)

	f := cmd.(CreateEvent).Fields
	require.Nil(t, f.EndTime)
	require.Nil(t, f.Location)
	require.Nil(t, f.RSVPURL)
	require.Nil(t, f.Description)
	require.Nil(t, f.MaxCapacity, "zero capacity means no limit")

	cmd, err = ParseEventCommand("DELETE", EventForm{ID: "9"}, nil)
	require.NoError(t, err)
	require.Equal(t, DeleteEvent{ID: 9}, cmd)
}

func TestParseEventTime(t *testing.T) {
	want := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-05-01T18:00", "2026-05-01T18:00:00", "2026-05-01 18:00", "2026-05-01T20:00:00+02:00"} {
		got, err := ParseEventTime(raw, time.UTC)
		require.NoError(t, err, raw)
		require.True(t, want.Equal(got), raw)
		require.Equal(t, time.UTC, got.Location())
	}
	_, err := ParseEventTime("01/05/2026", time.UTC)
	require.Error(t, err)
}

func TestEventCreateUpdateDelete(t *testing.T) {
	db, svc, _ := newEventFixture(t)

	cmd, err := ParseEventCommand("create", validEventForm(), time.UTC)
	require.NoError(t, err)
	message, event, err := svc.Execute(context.Background(), testActor, cmd)
	require.NoError(t, err)
	require.Equal(t, "Event 'Lunar New Year Social' created successfully!", message)
	require.NotNil(t, event.CreatedBy)
	require.EqualValues(t, testActor.AdminID, *event.CreatedBy)

	form := validEventForm()
	form.ID = strconv.FormatUint(uint64(event.ID), 10)
	form.Title = "Spring Social"
	form.Location = ""
	form.MaxCapacity = ""
	cmd, err = ParseEventCommand("update", form, time.UTC)
	require.NoError(t, err)
	message, updated, err := svc.Execute(context.Background(), testActor, cmd)
	require.NoError(t, err)
	require.Equal(t, "Event 'Spring Social' updated successfully!", message)
	require.Equal(t, event.ID, updated.ID)
	require.Nil(t, updated.Location, "cleared fields are stored as null")
	require.Nil(t, updated.MaxCapacity)

	message, _, err = svc.Execute(context.Background(), testActor, DeleteEvent{ID: event.ID})
	require.NoError(t, err)
	require.Equal(t, "Event 'Spring Social' deleted successfully!", message)

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	require.Zero(t, count)

	var actions []string
	require.NoError(t, db.Model(&models.AuditLog{}).Order("created_at ASC").Pluck("action", &actions).Error)
	require.ElementsMatch(t, []string{"event.create", "event.update", "event.delete"}, actions)
}

func TestEventCommandsOnMissingEvent(t *testing.T) {
	_, svc, _ := newEventFixture(t)

	for _, cmd := range []EventCommand{
		UpdateEvent{ID: 42, Fields: EventFields{Title: "x", Summary: "y", StartTime: time.Now()}},
		DeleteEvent{ID: 42},
		DuplicateEvent{ID: 42},
	} {
		_, _, err := svc.Execute(context.Background(), testActor, cmd)
		require.ErrorIs(t, err, ErrEventNotFound)
	}
}

func TestDuplicateEvent(t *testing.T) {
	db, svc, clock := newEventFixture(t)
	original := seedEvent(t, db, "Career Fair", clock.Now().Add(48*time.Hour))

	message, clone, err := svc.Execute(context.Background(), Actor{AdminID: 5, Email: "other@hccs.edu"}, DuplicateEvent{ID: original.ID})
	require.NoError(t, err)
	require.Equal(t, "Event duplicated successfully! New event: 'Copy of Career Fair'", message)
	require.NotEqual(t, original.ID, clone.ID)
	require.Equal(t, original.Summary, clone.Summary)
	require.True(t, original.StartTime.Equal(clone.StartTime))
	require.NotNil(t, clone.CreatedBy)
	require.EqualValues(t, 5, *clone.CreatedBy)

	long := seedEvent(t, db, strings.Repeat("y", 200), clock.Now())
	_, clone, err = svc.Execute(context.Background(), testActor, DuplicateEvent{ID: long.ID})
	require.NoError(t, err)
	require.Equal(t, 200, len(clone.Title))
	require.True(t, strings.HasPrefix(clone.Title, "Copy of "))
}

func TestEventListsSplitAroundNow(t *testing.T) {
	db, svc, clock := newEventFixture(t)
	now := clock.Now()
	seedEvent(t, db, "Last Month", now.Add(-30*24*time.Hour))
	seedEvent(t, db, "Yesterday", now.Add(-24*time.Hour))
	seedEvent(t, db, "Right Now", now)
	seedEvent(t, db, "Next Week", now.Add(7*24*time.Hour))
	seedEvent(t, db, "Tomorrow", now.Add(24*time.Hour))

	upcoming, err := svc.Upcoming(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Tomorrow", "Next Week"}, eventTitles(upcoming))

	past, err := svc.Past(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Right Now"}, eventTitles(past))

	page, err := svc.List(context.Background(), EventListOptions{Time: "past"})
	require.NoError(t, err)
	require.Equal(t, "past", page.Time)
	require.Equal(t, []string{"Right Now", "Yesterday", "Last Month"}, eventTitles(page.Events))
	require.Equal(t, EventCounts{All: 5, Upcoming: 2, Past: 3}, page.Counts)

	page, err = svc.List(context.Background(), EventListOptions{Time: "upcoming"})
	require.NoError(t, err)
	require.Equal(t, []string{"Next Week", "Tomorrow"}, eventTitles(page.Events))

	page, err = svc.List(context.Background(), EventListOptions{Search: "WEEK"})
	require.NoError(t, err)
	require.Equal(t, "all", page.Time)
	require.Equal(t, []string{"Next Week"}, eventTitles(page.Events))

	page, err = svc.List(context.Background(), EventListOptions{})
	require.NoError(t, err)
	require.Equal(t, "Next Week", page.Events[0].Title)
	require.Equal(t, 1, page.TotalPages)

	clock.Advance(-time.Second)
	upcoming, err = svc.Upcoming(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Right Now", "Tomorrow", "Next Week"}, eventTitles(upcoming))
}

func eventTitles(events []models.Event) []string {
	titles := make([]string, 0, len(events))
	for _, e := range events {
		titles = append(titles, e.Title)
	}
	return titles
}
