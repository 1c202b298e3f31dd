package calendar

import (
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Conflict is a pair of plans from different events whose windows overlap
// on the same day.
type Conflict struct {
	Day          time.Weekday        `json:"day_of_week"`
	EventID      string              `json:"event_id"`
	EventTitle   string              `json:"event_title"`
	PlanID       string              `json:"plan_id"`
	OtherEventID string              `json:"other_event_id"`
	OtherTitle   string              `json:"other_event_title"`
	OtherPlanID  string              `json:"other_plan_id"`
	OverlapStart timeframe.TimeOfDay `json:"overlap_start"`
	OverlapEnd   timeframe.TimeOfDay `json:"overlap_end"`
}

// Overlap returns the shared part of the conflicting windows.
func (c Conflict) Overlap() timeframe.Window {
	return timeframe.Window{Start: c.OverlapStart, End: c.OverlapEnd}
}

type dayEntry struct {
	event *schedule.Event
	plan  timeframe.DayPlan
}

// FindConflicts lists overlapping plans of different events, ordered by day
// then by event order. Plans of one event never conflict with each other.
func FindConflicts(s *schedule.Schedule) []Conflict {
	var conflicts []Conflict
	for _, day := range s.ActiveDays() {
		conflicts = append(conflicts, conflictsOn(s, day)...)
	}
	return conflicts
}

// HasConflict reports whether a new window on day would overlap a plan of
// any event other than exclude. exclude may be nil.
func HasConflict(s *schedule.Schedule, day time.Weekday, w timeframe.Window, exclude *schedule.Event) bool {
	for _, entry := range dayEntries(s, day) {
		if entry.event != exclude && entry.plan.Overlaps(w) {
			return true
		}
	}
	return false
}

func conflictsOn(s *schedule.Schedule, day time.Weekday) []Conflict {
	entries := dayEntries(s, day)

	var conflicts []Conflict
	for i, a := range entries {
		for _, b := range entries[i+1:] {
			if a.event == b.event || !a.plan.Overlaps(b.plan.Window) {
				continue
			}

			overlapStart := a.plan.Start
			if b.plan.Start.After(overlapStart) {
				overlapStart = b.plan.Start
			}
			overlapEnd := a.plan.End
			if b.plan.End.Before(overlapEnd) {
				overlapEnd = b.plan.End
			}

			conflicts = append(conflicts, Conflict{
				Day:          day,
				EventID:      a.event.ID(),
				EventTitle:   a.event.Title(),
				PlanID:       a.plan.ID,
				OtherEventID: b.event.ID(),
				OtherTitle:   b.event.Title(),
				OtherPlanID:  b.plan.ID,
				OverlapStart: overlapStart,
				OverlapEnd:   overlapEnd,
			})
		}
	}
	return conflicts
}

func dayEntries(s *schedule.Schedule, day time.Weekday) []dayEntry {
	events, err := s.EventsOn(day)
	if err != nil {
		return nil
	}
	var entries []dayEntry
	for _, ev := range events {
		plans, err := ev.PlansOn(day)
		if err != nil {
			continue
		}
		for _, p := range plans {
			entries = append(entries, dayEntry{event: ev, plan: p})
		}
	}
	return entries
}
