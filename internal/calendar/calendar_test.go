package calendar

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

func newSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	s := schedule.NewSchedule("Week", schedule.WithTimers(schedule.NewTimers()))
	t.Cleanup(s.Close)
	return s
}

func addPlan(t *testing.T, e *schedule.Event, day time.Weekday, start, end string) timeframe.DayPlan {
	t.Helper()
	st, err := timeframe.ParseTimeOfDay(start)
	if err != nil {
		t.Fatal(err)
	}
	en, err := timeframe.ParseTimeOfDay(end)
	if err != nil {
		t.Fatal(err)
	}
	p, err := e.AddPlan(day, st, en)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// crlf converts a readable fixture into iCalendar line endings.
func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

const feed = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup-1
DTSTAMP:20240101T000000Z
SUMMARY:Standup
DTSTART:20240102T091500
DTEND:20240102T093000
RRULE:FREQ=WEEKLY;BYDAY=TU,TH
END:VEVENT
BEGIN:VEVENT
UID:review-1
DTSTAMP:20240101T000000Z
SUMMARY:Review
DTSTART:20240105T160000
DTEND:20240105T170000
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20240101T000000Z
SUMMARY:Holiday
DTSTART;VALUE=DATE:20240105
DTEND;VALUE=DATE:20240106
END:VEVENT
END:VCALENDAR
`

func TestParseWeeklyEvents(t *testing.T) {
	defs, err := NewParser().Parse(strings.NewReader(crlf(feed)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2 (all-day skipped)", len(defs))
	}

	standup := defs[0]
	if standup.UID != "standup-1" || standup.Title != "Standup" {
		t.Errorf("unexpected definition %+v", standup)
	}
	var days []time.Weekday
	for _, p := range standup.Plans {
		days = append(days, p.Day)
		if p.Start != timeframe.Of(9, 15, 0) || p.End != timeframe.Of(9, 30, 0) {
			t.Errorf("plan window = %s, want 09:15-09:30", p.Window)
		}
		if p.ID == "" {
			t.Error("imported plan has no ID")
		}
	}
	if !slices.Equal(days, []time.Weekday{time.Tuesday, time.Thursday}) {
		t.Errorf("standup days = %v, want [Tuesday Thursday]", days)
	}

	review := defs[1]
	if len(review.Plans) != 1 || review.Plans[0].Day != time.Friday {
		t.Errorf("review plans = %v, want one Friday plan", review.Plans)
	}
}

func TestExportRoundTrip(t *testing.T) {
	s := newSchedule(t)
	gym := s.AddEvent("Gym", schedule.WithDescription("leg day"))
	gym.Notes().Append(schedule.Note{Key: "coach", Value: "Sam"})
	mon := addPlan(t, gym, time.Monday, "18:00", "19:30")
	fri := addPlan(t, gym, time.Friday, "07:00", "08:00")

	anchor := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := WriteICS(&buf, s, anchor); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"FREQ=WEEKLY;BYDAY=MO", "FREQ=WEEKLY;BYDAY=FR", "DTSTART:20240311T180000", "DTSTART:20240308T070000"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}

	defs, err := NewParser().Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	def := defs[0]
	if def.UID != gym.ID() || def.Title != "Gym" || def.Description != "leg day" {
		t.Errorf("definition = %+v", def)
	}
	if !slices.Equal(def.Notes, []schedule.Note{{Key: "coach", Value: "Sam"}}) {
		t.Errorf("notes = %v", def.Notes)
	}
	if !slices.Equal(def.Plans, []timeframe.DayPlan{mon, fri}) {
		t.Errorf("plans = %v, want %v", def.Plans, []timeframe.DayPlan{mon, fri})
	}
}

func TestWeeklyRule(t *testing.T) {
	if got := WeeklyRule(time.Sunday); got != "FREQ=WEEKLY;BYDAY=SU" {
		t.Errorf("WeeklyRule(Sunday) = %q", got)
	}
	if got := ruleDays("FREQ=DAILY", time.Wednesday); !slices.Equal(got, []time.Weekday{time.Wednesday}) {
		t.Errorf("non-weekly rule days = %v, want fallback", got)
	}
}

func TestExpand(t *testing.T) {
	s := newSchedule(t)
	gym := s.AddEvent("Gym")
	addPlan(t, gym, time.Monday, "09:00", "10:00")
	swim := s.AddEvent("Swim")
	addPlan(t, swim, time.Wednesday, "07:00", "07:45")

	from := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) // Monday
	got, err := Expand(s, ExpandConfig{
		Location:   time.UTC,
		RangeStart: from,
		RangeEnd:   from.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		title string
		start time.Time
	}{
		{"Gym", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		{"Swim", time.Date(2024, 3, 6, 7, 0, 0, 0, time.UTC)},
		{"Gym", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"Swim", time.Date(2024, 3, 13, 7, 0, 0, 0, time.UTC)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Title != w.title || !got[i].Start.Equal(w.start) {
			t.Errorf("occurrence %d = %s at %s, want %s at %s", i, got[i].Title, got[i].Start, w.title, w.start)
		}
	}
	if d := got[1].End.Sub(got[1].Start); d != 45*time.Minute {
		t.Errorf("swim duration = %s, want 45m", d)
	}

	if _, err := Expand(s, ExpandConfig{RangeStart: from, RangeEnd: from.Add(-time.Hour)}); err == nil {
		t.Error("inverted range accepted")
	}
}

func TestEvaluator(t *testing.T) {
	s := newSchedule(t)
	gym := s.AddEvent("Gym")
	plan := addPlan(t, gym, time.Monday, "09:00", "10:00")
	ev := NewEvaluatorWithLocation(time.UTC)

	monday := func(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC) }

	active := ev.ActiveAt(s, monday(9, 30))
	if len(active) != 1 || active[0].Plan.ID != plan.ID || !active[0].EndAt.Equal(monday(10, 0)) {
		t.Errorf("ActiveAt(09:30) = %+v", active)
	}
	if got := ev.ActiveAt(s, monday(10, 0)); len(got) != 0 {
		t.Errorf("plan still active at its end: %+v", got)
	}
	if !ev.IsActive(gym, monday(9, 0)) || ev.IsActive(gym, monday(8, 59)) {
		t.Error("IsActive disagrees with the plan window")
	}

	next := ev.NextStart(s, monday(8, 0))
	if next == nil || !next.Start.Equal(monday(9, 0)) {
		t.Errorf("NextStart(08:00) = %+v, want today 09:00", next)
	}
	next = ev.NextStart(s, monday(9, 0))
	if next == nil || !next.Start.Equal(monday(9, 0).AddDate(0, 0, 7)) {
		t.Errorf("NextStart(09:00) = %+v, want next Monday", next)
	}
	if ev.NextStart(newSchedule(t), monday(9, 0)) != nil {
		t.Error("empty schedule has a next start")
	}
}

func TestSyncServiceApply(t *testing.T) {
	s := newSchedule(t)
	svc := NewSyncService(s)
	const source = "https://example.com/team.ics"

	plan, _ := timeframe.NewDayPlan(time.Tuesday, timeframe.Of(9, 0, 0), timeframe.Of(9, 30, 0))
	defs := []Definition{
		{UID: "a", Title: "Standup", Plans: []timeframe.DayPlan{plan}},
		{UID: "b", Title: "Retro"},
	}

	res := svc.Apply(source, defs)
	if res.Created != 2 || s.EventCount() != 2 {
		t.Fatalf("first sync: %s, events=%d", res, s.EventCount())
	}
	a, _ := s.Event("a")
	if noteValue(a.Notes().Items(), SourceNote) != source || a.PlanCount() != 1 {
		t.Errorf("imported event notes=%v plans=%d", a.Notes().Items(), a.PlanCount())
	}

	// Same slot with a new identity is not a change.
	same, _ := timeframe.NewDayPlan(time.Tuesday, timeframe.Of(9, 0, 0), timeframe.Of(9, 30, 0))
	res = svc.Apply(source, []Definition{{UID: "a", Title: "Daily standup", Plans: []timeframe.DayPlan{same}}})
	if res.Updated != 1 || res.Removed != 1 || res.Created != 0 {
		t.Errorf("second sync: %s", res)
	}
	if _, ok := s.Event("b"); ok {
		t.Error("event missing from the feed was kept")
	}
	if a.Title() != "Daily standup" || a.Plans().Items()[0].ID != plan.ID {
		t.Errorf("update replaced unchanged plans or missed the title")
	}

	// Events from elsewhere are never removed by a feed.
	manual := s.AddEvent("Manual")
	svc.Apply(source, nil)
	if _, ok := s.Event(manual.ID()); !ok {
		t.Error("manual event removed by feed sync")
	}
}

func TestSyncFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/team.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(crlf(feed)))
	}))
	defer srv.Close()

	s := newSchedule(t)
	svc := NewSyncService(s)

	res, err := svc.SyncFeed(context.Background(), srv.URL+"/team.ics")
	if err != nil {
		t.Fatalf("SyncFeed: %v", err)
	}
	if res.EventsFound != 2 || res.Created != 2 {
		t.Errorf("result = %s", res)
	}
	if got := s.ActiveDays(); !slices.Equal(got, []time.Weekday{time.Tuesday, time.Thursday, time.Friday}) {
		t.Errorf("ActiveDays() = %v", got)
	}

	if _, err := svc.SyncFeed(context.Background(), srv.URL+"/missing.ics"); err == nil {
		t.Error("missing feed did not fail")
	}
}

func TestSchedulerFeeds(t *testing.T) {
	sched := NewScheduler(NewSyncService(newSchedule(t)), 0, nil)

	sched.ScheduleFeed(Feed{URL: "https://example.com/a.ics", IntervalMin: 15})
	sched.ScheduleFeed(Feed{URL: "https://example.com/a.ics", IntervalMin: 30})
	sched.ScheduleFeed(Feed{URL: "https://example.com/b.ics"})

	if got := len(sched.ScheduledFeeds()); got != 2 {
		t.Errorf("ScheduledFeeds() has %d entries, want 2", got)
	}
	if sched.NextRun("https://example.com/a.ics") != nil {
		t.Error("stopped scheduler reported a next run")
	}
	sched.UnscheduleFeed("https://example.com/a.ics")
	if got := sched.ScheduledFeeds(); !slices.Equal(got, []string{"https://example.com/b.ics"}) {
		t.Errorf("ScheduledFeeds() = %v", got)
	}
	if got := sched.intervalSpec(0); got != "@every 1h0m0s" {
		t.Errorf("default interval spec = %q", got)
	}
}

func TestFindConflicts(t *testing.T) {
	s := newSchedule(t)
	standup := s.AddEvent("Standup")
	review := s.AddEvent("Review")
	lunch := s.AddEvent("Lunch")

	up := addPlan(t, standup, time.Monday, "09:00", "10:00")
	addPlan(t, standup, time.Monday, "09:30", "09:50")
	rp := addPlan(t, review, time.Monday, "09:45", "11:00")
	addPlan(t, review, time.Tuesday, "09:00", "10:00")
	addPlan(t, lunch, time.Monday, "11:00", "12:00")

	conflicts := FindConflicts(s)
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %+v, want 2", conflicts)
	}

	first := conflicts[0]
	if first.Day != time.Monday || first.PlanID != up.ID || first.OtherPlanID != rp.ID {
		t.Errorf("first = %+v", first)
	}
	if got := first.Overlap().String(); got != "09:45-10:00" {
		t.Errorf("overlap = %s", got)
	}
	for _, c := range conflicts {
		if c.EventID == c.OtherEventID {
			t.Errorf("same-event conflict reported: %+v", c)
		}
		if c.OtherEventID == lunch.ID() || c.EventID == lunch.ID() {
			t.Errorf("touching windows reported as conflict: %+v", c)
		}
	}

	w := timeframe.Window{Start: timeframe.Of(10, 30, 0), End: timeframe.Of(10, 45, 0)}
	if !HasConflict(s, time.Monday, w, nil) {
		t.Error("HasConflict = false, want true")
	}
	if HasConflict(s, time.Monday, w, review) {
		t.Error("HasConflict ignoring review = true, want false")
	}
	if HasConflict(s, time.Wednesday, w, nil) {
		t.Error("HasConflict on empty day = true")
	}
}
