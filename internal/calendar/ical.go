// Package calendar connects the weekly schedule to iCalendar: it exports a
// schedule as recurring VEVENTs, imports weekly events from ICS feeds, expands
// upcoming occurrences and evaluates what is on at a given instant.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// ProductID identifies exported calendars.
const ProductID = "-//schedule-keeper//weekly schedule//EN"

const (
	propEventID = ical.ComponentProperty("X-SCHEDULE-EVENT-ID")
	propNote    = ical.ComponentProperty("X-SCHEDULE-NOTE")

	floatingLayout = "20060102T150405"
)

// byDay maps time.Weekday to the RRULE day codes.
var byDay = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeeklyRule returns the RRULE value repeating every week on day.
func WeeklyRule(day time.Weekday) string {
	return "FREQ=WEEKLY;BYDAY=" + byDay[day]
}

// Definition is a weekly event read from a calendar feed.
type Definition struct {
	UID         string
	Title       string
	Description string
	Notes       []schedule.Note
	Plans       []timeframe.DayPlan
}

// Parser parses iCal/ICS calendar feeds.
type Parser struct {
	httpClient *http.Client
	location   *time.Location
}

// NewParser creates a parser placing UTC times in the local time zone.
func NewParser() *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		location: time.Local,
	}
}

// FetchAndParse downloads and parses an iCal feed from a URL.
func (p *Parser) FetchAndParse(ctx context.Context, url string) ([]Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	return p.Parse(resp.Body)
}

// Parse reads VEVENTs and turns them into weekly definitions. Events
// exported by this package are regrouped under their original event; any
// other timed event becomes one definition with a plan on each day its
// weekly RRULE names, or on the day of its DTSTART. All-day events are
// skipped.
func (p *Parser) Parse(r io.Reader) ([]Definition, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var order []string
	defs := make(map[string]*Definition)

	for _, ve := range cal.Events() {
		uid := propertyValue(&ve.ComponentBase, ical.ComponentPropertyUniqueId)
		if uid == "" {
			continue
		}
		start, ok := p.parseDateTime(ve.GetProperty(ical.ComponentPropertyDtStart))
		if !ok {
			continue
		}
		end, ok := p.parseDateTime(ve.GetProperty(ical.ComponentPropertyDtEnd))
		if !ok {
			end = start
		}

		key, planID := uid, ""
		if eventID := propertyValue(&ve.ComponentBase, propEventID); eventID != "" {
			key = eventID
			planID, _, _ = strings.Cut(uid, "@")
		}

		def, seen := defs[key]
		if !seen {
			def = &Definition{
				UID:         key,
				Title:       unescape(propertyValue(&ve.ComponentBase, ical.ComponentPropertySummary)),
				Description: unescape(propertyValue(&ve.ComponentBase, ical.ComponentPropertyDescription)),
			}
			for _, prop := range ve.GetProperties(propNote) {
				k, v, _ := strings.Cut(prop.Value, "=")
				def.Notes = append(def.Notes, schedule.Note{Key: unescape(k), Value: unescape(v)})
			}
			defs[key] = def
			order = append(order, key)
		}

		window := clockWindow(start, end)
		for _, day := range ruleDays(propertyValue(&ve.ComponentBase, ical.ComponentPropertyRrule), start.Weekday()) {
			plan := timeframe.DayPlan{ID: planID, Day: day, Window: window}
			if plan.ID == "" || hasPlan(def.Plans, plan.ID) {
				fresh, err := timeframe.NewDayPlan(day, window.Start, window.End)
				if err != nil {
					continue
				}
				plan = fresh
			}
			def.Plans = append(def.Plans, plan)
		}
	}

	out := make([]Definition, 0, len(order))
	for _, key := range order {
		out = append(out, *defs[key])
	}
	return out, nil
}

func hasPlan(plans []timeframe.DayPlan, id string) bool {
	for _, p := range plans {
		if p.ID == id {
			return true
		}
	}
	return false
}

func propertyValue(c *ical.ComponentBase, prop ical.ComponentProperty) string {
	if p := c.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseDateTime parses DTSTART/DTEND. Date-only values report false.
func (p *Parser) parseDateTime(prop *ical.IANAProperty) (time.Time, bool) {
	if prop == nil {
		return time.Time{}, false
	}
	value := strings.TrimSpace(prop.Value)

	loc := time.Local
	if tzid, ok := prop.ICalParameters["TZID"]; ok && len(tzid) > 0 {
		if l, err := time.LoadLocation(tzid[0]); err == nil {
			loc = l
		}
	}

	if t, err := time.Parse("20060102T150405Z", value); err == nil {
		return t.In(p.location), true
	}
	if t, err := time.ParseInLocation(floatingLayout, value, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// clockWindow keeps the wall-clock times of start and end. An end on a later
// date is clipped to the last second of the start's day.
func clockWindow(start, end time.Time) timeframe.Window {
	w := timeframe.Window{Start: timeframe.FromTime(start), End: timeframe.FromTime(end)}
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if ey != sy || em != sm || ed != sd || w.End < w.Start {
		w.End = timeframe.Of(23, 59, 59)
	}
	return w
}

// ruleDays returns the days a weekly RRULE repeats on, or fallback.
func ruleDays(rule string, fallback time.Weekday) []time.Weekday {
	if rule == "" {
		return []time.Weekday{fallback}
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil || opt.Freq != rrule.WEEKLY || len(opt.Byweekday) == 0 {
		return []time.Weekday{fallback}
	}
	days := make([]time.Weekday, 0, len(opt.Byweekday))
	for _, wd := range opt.Byweekday {
		// rrule counts from Monday.
		days = append(days, time.Weekday((wd.Day()+1)%7))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Export renders every plan of the schedule as a weekly recurring VEVENT in
// floating local time. The first occurrence is the plan's day on or after
// anchor.
func Export(s *schedule.Schedule, anchor time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(s.Title())

	for _, e := range s.Events().Items() {
		notes := e.Notes().Items()
		for _, p := range e.Plans().Items() {
			first := nextDate(anchor, p.Day)

			ev := cal.AddEvent(p.ID + "@" + e.ID())
			ev.SetDtStampTime(anchor)
			ev.SetSummary(e.Title())
			if d := e.Description(); d != "" {
				ev.SetDescription(d)
			}
			ev.SetProperty(ical.ComponentPropertyDtStart, p.Start.On(first).Format(floatingLayout))
			ev.SetProperty(ical.ComponentPropertyDtEnd, p.End.On(first).Format(floatingLayout))
			ev.AddProperty(ical.ComponentPropertyRrule, WeeklyRule(p.Day))
			ev.SetProperty(propEventID, e.ID())
			for _, n := range notes {
				ev.AddProperty(propNote, n.Key+"="+n.Value)
			}
		}
	}
	return cal
}

// WriteICS serializes the exported schedule to w.
func WriteICS(w io.Writer, s *schedule.Schedule, anchor time.Time) error {
	_, err := io.WriteString(w, Export(s, anchor).Serialize())
	return err
}

// nextDate returns midnight of the first date on or after t that falls on day.
func nextDate(t time.Time, day time.Weekday) time.Time {
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day) - int(date.Weekday()) + 7) % 7
	return date.AddDate(0, 0, offset)
}

// unescape reverses iCalendar TEXT escaping.
func unescape(value string) string {
	value = strings.ReplaceAll(value, "\\n", "\n")
	value = strings.ReplaceAll(value, "\\N", "\n")
	value = strings.ReplaceAll(value, "\\,", ",")
	value = strings.ReplaceAll(value, "\\;", ";")
	value = strings.ReplaceAll(value, "\\\\", "\\")
	return value
}
