package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/handlers/testutil"
	"github.com/charlesng35/csahub/internal/models"
)

type eventCommandResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Action  string       `json:"action"`
	Event   models.Event `json:"event"`
}

func postEvent(t *testing.T, env *testutil.Env, form url.Values) eventCommandResult {
	t.Helper()
	w := env.PostFormXHR("/admin/events", form)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result eventCommandResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.True(t, result.Success)
	return result
}

func hackNightForm() url.Values {
	return url.Values{
		"action":       {"create"},
		"title":        {"Hack Night"},
		"summary":      {"Build something in an evening."},
		"description":  {"Bring a laptop."},
		"start_time":   {"2030-05-01T18:00"},
		"end_time":     {"2030-05-01T21:30"},
		"location":     {"Library Room 204"},
		"rsvp_url":     {"https://csa.example.edu/rsvp"},
		"max_capacity": {"40"},
	}
}

func TestEventAdminLifecycle(t *testing.T) {
	env, admin := loggedInEnv(t)

	created := postEvent(t, env, hackNightForm())
	require.Equal(t, "create", created.Action)
	require.Equal(t, "Event 'Hack Night' created successfully!", created.Message)
	require.NotZero(t, created.Event.ID)
	require.Equal(t, time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC), created.Event.StartTime.UTC())
	require.NotNil(t, created.Event.MaxCapacity)
	require.Equal(t, 40, *created.Event.MaxCapacity)
	require.NotNil(t, created.Event.CreatedBy)
	require.Equal(t, admin.ID, *created.Event.CreatedBy)

	id := strconv.FormatUint(uint64(created.Event.ID), 10)

	update := hackNightForm()
	update.Set("action", "update")
	update.Set("event_id", id)
	update.Set("title", "Hack Night II")
	update.Set("max_capacity", "0")
	updated := postEvent(t, env, update)
	require.Equal(t, "Event 'Hack Night II' updated successfully!", updated.Message)
	require.Nil(t, updated.Event.MaxCapacity)

	dup := postEvent(t, env, url.Values{"action": {"duplicate"}, "event_id": {id}})
	require.Equal(t, "Copy of Hack Night II", dup.Event.Title)
	require.NotEqual(t, created.Event.ID, dup.Event.ID)
	require.Equal(t, updated.Event.StartTime.UTC(), dup.Event.StartTime.UTC())

	deleted := postEvent(t, env, url.Values{"action": {"delete"}, "event_id": {id}})
	require.Equal(t, "Event 'Hack Night II' deleted successfully!", deleted.Message)

	var titles []string
	require.NoError(t, env.DB.Model(&models.Event{}).Pluck("title", &titles).Error)
	require.Equal(t, []string{"Copy of Hack Night II"}, titles)

	var actions []string
	require.NoError(t, env.DB.Model(&models.AuditLog{}).Where("action LIKE ?", "event.%").Order("id").Pluck("action", &actions).Error)
	require.Equal(t, []string{"event.create", "event.update", "event.duplicate", "event.delete"}, actions)
}

func TestEventAdminValidation(t *testing.T) {
	env, _ := loggedInEnv(t)

	tests := []struct {
		name    string
		mutate  func(url.Values)
		status  int
		message string
	}{
		{"missing title", func(f url.Values) { f.Del("title") }, http.StatusBadRequest, "Title, summary, and start time are required."},
		{"end before start", func(f url.Values) { f.Set("end_time", "2030-05-01T17:00") }, http.StatusBadRequest, "End time must be after start time."},
		{"bad rsvp", func(f url.Values) { f.Set("rsvp_url", "javascript:alert(1)") }, http.StatusBadRequest, "RSVP URL must be a valid http or https link."},
		{"negative capacity", func(f url.Values) { f.Set("max_capacity", "-3") }, http.StatusBadRequest, "Max capacity must be a positive number."},
		{"unknown action", func(f url.Values) { f.Set("action", "publish") }, http.StatusBadRequest, "Invalid action."},
		{"missing event", func(f url.Values) { f.Set("action", "update"); f.Set("event_id", "4242") }, http.StatusNotFound, "Event not found."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			form := hackNightForm()
			tc.mutate(form)
			w := env.PostFormXHR("/admin/events", form)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			resp := testutil.DecodeResponse(t, w)
			require.False(t, resp.Success)
			require.Equal(t, tc.message, resp.Message)
		})
	}

	var count int64
	require.NoError(t, env.DB.Model(&models.Event{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEventAdminListFilters(t *testing.T) {
	env, _ := loggedInEnv(t)
	now := time.Now().UTC()
	require.NoError(t, env.DB.Create(&[]models.Event{
		{Title: "Career Fair", Summary: "Meet employers", StartTime: now.Add(48 * time.Hour)},
		{Title: "Welcome Social", Summary: "Pizza", StartTime: now.Add(-48 * time.Hour)},
	}).Error)

	w := env.GetJSON("/admin/events?time=upcoming")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Events []models.Event `json:"events"`
		Counts struct {
			All      int64 `json:"all"`
			Upcoming int64 `json:"upcoming"`
			Past     int64 `json:"past"`
		} `json:"counts"`
		Time string `json:"time"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &data)
	require.Equal(t, "upcoming", data.Time)
	require.Len(t, data.Events, 1)
	require.Equal(t, "Career Fair", data.Events[0].Title)
	require.Equal(t, int64(2), data.Counts.All)
	require.Equal(t, int64(1), data.Counts.Upcoming)
	require.Equal(t, int64(1), data.Counts.Past)

	page := env.Get("/admin/events?time=past")
	require.Equal(t, http.StatusOK, page.Code)
	require.Contains(t, page.Body.String(), "Welcome Social")
	require.NotContains(t, page.Body.String(), "Career Fair")
}

func TestEventAdminBrowserCreateRedirects(t *testing.T) {
	env, _ := loggedInEnv(t)

	form := hackNightForm()
	form.Set("return_to", "/admin/events?time=upcoming")
	w := env.PostForm("/admin/events", form)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/admin/events?time=upcoming", w.Header().Get("Location"))

	page := env.Get("/admin/events?time=upcoming")
	require.Equal(t, http.StatusOK, page.Code)
	require.Contains(t, page.Body.String(), "Hack Night")
	require.Contains(t, page.Body.String(), `value="2030-05-01T18:00"`)
}
