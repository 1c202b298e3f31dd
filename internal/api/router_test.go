package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/schedule-keeper/backend/internal/api/handlers"
	"github.com/schedule-keeper/backend/internal/api/middleware"
	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

func newTestRouter(t *testing.T) (*mux.Router, *schedule.Schedule) {
	t.Helper()
	s := schedule.NewSchedule("Week", schedule.WithTimers(schedule.NewTimers()))
	t.Cleanup(s.Close)
	return NewRouterWithServices(Services{
		Schedule: s,
		Sync:     calendar.NewSyncService(s),
	}, ""), s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func createEvent(t *testing.T, h http.Handler, title string, plans ...map[string]any) handlers.EventResponse {
	t.Helper()
	rec := do(t, h, "POST", "/api/events", map[string]any{"title": title, "plans": plans})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: %d %s", title, rec.Code, rec.Body)
	}
	return decode[handlers.EventResponse](t, rec)
}

func plan(day int, start, end string) map[string]any {
	return map[string]any{"day_of_week": day, "start_time": start, "end_time": end}
}

func TestEventLifecycle(t *testing.T) {
	r, s := newTestRouter(t)

	ev := createEvent(t, r, "Standup", plan(1, "09:00", "09:15"), plan(3, "09:00", "09:15"))
	if ev.PlanCount != 2 || len(ev.ActiveDays) != 2 {
		t.Errorf("created = %+v", ev)
	}
	if !ev.Plans[0].Armed {
		t.Error("plan not armed after create")
	}

	rec := do(t, r, "GET", "/api/schedule", nil)
	summary := decode[handlers.ScheduleResponse](t, rec)
	if summary.EventCount != 1 || summary.PlanCount != 2 || summary.ArmedTimers != 2 {
		t.Errorf("summary = %+v", summary)
	}

	rec = do(t, r, "POST", "/api/events/"+ev.ID+"/plans", plan(5, "16:00", "17:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add plan: %d %s", rec.Code, rec.Body)
	}
	added := decode[handlers.PlanResponse](t, rec)

	rec = do(t, r, "GET", "/api/schedule/days/5/events", nil)
	friday := decode[[]handlers.EventResponse](t, rec)
	if len(friday) != 1 || friday[0].ID != ev.ID {
		t.Errorf("friday events = %+v", friday)
	}

	rec = do(t, r, "DELETE", "/api/events/"+ev.ID+"/plans/"+added.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete plan: %d", rec.Code)
	}
	rec = do(t, r, "GET", "/api/schedule/days/5/events", nil)
	if got := decode[[]handlers.EventResponse](t, rec); len(got) != 0 {
		t.Errorf("friday events after delete = %d", len(got))
	}

	rec = do(t, r, "PUT", "/api/events/"+ev.ID, map[string]any{"title": "Daily", "notes": []map[string]string{{"key": "room", "value": "3B"}}})
	if got := decode[handlers.EventResponse](t, rec); got.Title != "Daily" || len(got.Notes) != 1 {
		t.Errorf("updated = %+v", got)
	}

	rec = do(t, r, "DELETE", "/api/events/"+ev.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete event: %d", rec.Code)
	}
	if s.EventCount() != 0 || s.Timers().Len() != 0 {
		t.Errorf("after delete: %d events, %d timers", s.EventCount(), s.Timers().Len())
	}
}

func TestErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	ev := createEvent(t, r, "Standup", plan(1, "09:00", "09:15"))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"day out of range", "GET", "/api/schedule/days/7/events", nil, 400, middleware.ErrOutOfRange},
		{"negative day", "GET", "/api/schedule/days/-1/events", nil, 400, middleware.ErrOutOfRange},
		{"day not a number", "GET", "/api/schedule/days/mon/events", nil, 400, middleware.ErrBadRequest},
		{"plan day out of range", "GET", "/api/events/" + ev.ID + "/days/9/plans", nil, 400, middleware.ErrOutOfRange},
		{"unknown event", "GET", "/api/events/nope", nil, 404, middleware.ErrNotFound},
		{"unknown plan", "DELETE", "/api/events/" + ev.ID + "/plans/nope", nil, 404, middleware.ErrNotFound},
		{"reversed window", "POST", "/api/events/" + ev.ID + "/plans", plan(1, "10:00", "09:00"), 400, middleware.ErrValidation},
		{"bad time", "POST", "/api/events", map[string]any{"title": "x", "plans": []any{plan(1, "9am", "10:00")}}, 400, middleware.ErrValidation},
		{"missing title", "POST", "/api/events", map[string]any{}, 400, middleware.ErrValidation},
		{"bad body", "PUT", "/api/schedule", "{", 400, middleware.ErrBadRequest},
		{"negative step", "GET", "/api/schedule/frames?step=-30m", nil, 400, middleware.ErrValidation},
		{"bad step", "GET", "/api/schedule/frames?step=soon", nil, 400, middleware.ErrBadRequest},
		{"bad days", "GET", "/api/schedule/upcoming?days=40", nil, 400, middleware.ErrBadRequest},
		{"no feeds", "POST", "/api/feeds/sync", nil, 503, middleware.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if got := decode[middleware.ErrorResponse](t, rec); got.Error != tt.code {
				t.Errorf("code = %q, want %q", got.Error, tt.code)
			}
		})
	}
}

func TestFrames(t *testing.T) {
	r, _ := newTestRouter(t)
	createEvent(t, r, "A", plan(1, "09:00", "10:00"))
	createEvent(t, r, "B", plan(2, "09:30", "11:00"))

	rec := do(t, r, "GET", "/api/schedule/frames", nil)
	compact := decode[handlers.FramesResponse](t, rec)
	want := []timeframe.Window{
		{Start: timeframe.Of(9, 0, 0), End: timeframe.Of(10, 0, 0)},
		{Start: timeframe.Of(10, 0, 0), End: timeframe.Of(11, 0, 0)},
	}
	if compact.Mode != "compact" || len(compact.Frames) != len(want) {
		t.Fatalf("compact = %+v", compact)
	}
	for i := range want {
		if compact.Frames[i] != want[i] {
			t.Errorf("frame %d = %s, want %s", i, compact.Frames[i], want[i])
		}
	}

	rec = do(t, r, "GET", "/api/schedule/frames?step=45", nil)
	stepped := decode[handlers.FramesResponse](t, rec)
	if stepped.Mode != "stepped" || len(stepped.Frames) != 3 {
		t.Fatalf("stepped = %+v", stepped)
	}
	if last := stepped.Frames[2]; last.End != timeframe.Of(11, 0, 0) {
		t.Errorf("last frame = %s, want clipped to 11:00", last)
	}
}

func TestNowAndUpcoming(t *testing.T) {
	r, _ := newTestRouter(t)
	at := time.Date(2026, 10, 19, 9, 5, 0, 0, time.Local) // a Monday
	createEvent(t, r, "Standup", plan(int(at.Weekday()), "09:00", "09:15"))

	rec := do(t, r, "GET", "/api/schedule/now?at="+url.QueryEscape(at.Format(time.RFC3339)), nil)
	now := decode[handlers.NowResponse](t, rec)
	if len(now.Active) != 1 || now.Active[0].Title != "Standup" {
		t.Errorf("active = %+v", now.Active)
	}
	nextWeek := time.Date(2026, 10, 26, 9, 0, 0, 0, time.Local)
	if now.Next == nil || !now.Next.Start.Equal(nextWeek) {
		t.Errorf("next = %+v, want start %s", now.Next, nextWeek)
	}

	rec = do(t, r, "GET", "/api/schedule/upcoming?days=14", nil)
	if got := decode[[]calendar.Occurrence](t, rec); len(got) < 2 {
		t.Errorf("upcoming = %d occurrences, want at least 2", len(got))
	}
}

func TestICSExportImport(t *testing.T) {
	r, _ := newTestRouter(t)
	createEvent(t, r, "Standup", plan(1, "09:00", "09:15"))

	rec := do(t, r, "GET", "/api/schedule.ics", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	exported := rec.Body.String()
	if !strings.Contains(exported, "RRULE:FREQ=WEEKLY;BYDAY=MO") {
		t.Errorf("export missing weekly rule:\n%s", exported)
	}

	other, s := newTestRouter(t)
	rec = do(t, other, "POST", "/api/schedule.ics", exported)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body)
	}
	if s.EventCount() != 1 || s.PlanCount() != 1 {
		t.Errorf("imported %d events, %d plans", s.EventCount(), s.PlanCount())
	}

	rec = do(t, other, "POST", "/api/schedule.ics", "not a calendar")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("garbage import status = %d", rec.Code)
	}
}

func TestMutationsArePersisted(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	store := storage.NewStore(db)

	s, err := store.LoadOrSeed(ctx, nil, "Week", schedule.NewTimers())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	r := NewRouterWithServices(Services{DB: db, Store: store, Schedule: s}, "")

	ev := createEvent(t, r, "Standup", plan(1, "09:00", "09:15"))
	do(t, r, "PUT", "/api/schedule", map[string]any{"title": "Team week"})

	reloaded, err := store.LoadOrSeed(ctx, nil, "unused", schedule.NewTimers())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reloaded.Close)
	if reloaded.Title() != "Team week" {
		t.Errorf("title = %q", reloaded.Title())
	}
	if _, ok := reloaded.Event(ev.ID); !ok || reloaded.PlanCount() != 1 {
		t.Errorf("reloaded %d events, %d plans", reloaded.EventCount(), reloaded.PlanCount())
	}

	rec := do(t, r, "GET", "/api/health", nil)
	if health := decode[handlers.HealthResponse](t, rec); health.Storage != "sqlite" || !health.DBConnected {
		t.Errorf("health = %+v", health)
	}
}

func TestFirePublishesNotification(t *testing.T) {
	r, s := newTestRouter(t)
	ev := createEvent(t, r, "Standup", plan(1, "09:00", "09:15"))

	got := make(chan schedule.Notification, 1)
	sub := s.Subscribe(schedule.ObserverFunc(func(n schedule.Notification) error {
		got <- n
		return nil
	}))
	defer sub.Close()

	rec := do(t, r, "POST", "/api/events/"+ev.ID+"/plans/"+ev.Plans[0].ID+"/fire", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("fire: %d", rec.Code)
	}
	select {
	case n := <-got:
		if n.EventID != ev.ID || n.Title != "Standup" {
			t.Errorf("notification = %+v", n)
		}
	default:
		t.Fatal("no notification published")
	}
}

func TestConflicts(t *testing.T) {
	r, _ := newTestRouter(t)
	a := createEvent(t, r, "A", plan(1, "09:00", "10:00"))
	b := createEvent(t, r, "B", plan(1, "09:30", "11:00"), plan(2, "09:00", "10:00"))

	rec := do(t, r, "GET", "/api/schedule/conflicts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	conflicts := decode[[]calendar.Conflict](t, rec)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	c := conflicts[0]
	if c.EventID != a.ID || c.OtherEventID != b.ID || c.Overlap().String() != "09:30-10:00" {
		t.Errorf("conflict = %+v", c)
	}
}
