package calendar

import (
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Active is a plan in progress at the evaluated instant.
type Active struct {
	EventID string            `json:"event_id"`
	Title   string            `json:"title"`
	Plan    timeframe.DayPlan `json:"plan"`
	StartAt time.Time         `json:"start_at"`
	EndAt   time.Time         `json:"end_at"`
	Notes   []schedule.Note   `json:"notes,omitempty"`
}

// Evaluator evaluates which plans are in progress at a given time.
type Evaluator struct {
	location *time.Location
}

// NewEvaluator creates a new evaluator.
// Uses local time zone by default.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		location: time.Local,
	}
}

// NewEvaluatorWithLocation creates an evaluator with a specific timezone.
func NewEvaluatorWithLocation(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{location: loc}
}

// ActiveAt returns the plans whose window contains at, in event order.
func (e *Evaluator) ActiveAt(s *schedule.Schedule, at time.Time) []Active {
	local := at.In(e.location)
	day := local.Weekday()
	now := timeframe.FromTime(local)

	events, err := s.EventsOn(day)
	if err != nil {
		return nil
	}

	var active []Active
	for _, ev := range events {
		plans, err := ev.PlansOn(day)
		if err != nil {
			continue
		}
		for _, p := range plans {
			if !p.Contains(now) {
				continue
			}
			active = append(active, Active{
				EventID: ev.ID(),
				Title:   ev.Title(),
				Plan:    p,
				StartAt: p.Start.On(local),
				EndAt:   p.End.On(local),
				Notes:   ev.Notes().Items(),
			})
		}
	}
	return active
}

// ActiveNow returns the plans in progress right now.
func (e *Evaluator) ActiveNow(s *schedule.Schedule) []Active {
	return e.ActiveAt(s, time.Now())
}

// IsActive reports whether any plan of the event is in progress at at.
func (e *Evaluator) IsActive(ev *schedule.Event, at time.Time) bool {
	local := at.In(e.location)
	plans, err := ev.PlansOn(local.Weekday())
	if err != nil {
		return false
	}
	now := timeframe.FromTime(local)
	for _, p := range plans {
		if p.Contains(now) {
			return true
		}
	}
	return false
}

// NextStart returns the first plan start strictly after from, looking one
// week ahead. Returns nil when the schedule has no plans.
func (e *Evaluator) NextStart(s *schedule.Schedule, from time.Time) *Occurrence {
	localFrom := from.In(e.location)

	// Check each day for the next 8 days so today's earlier starts are
	// reached again next week.
	for dayOffset := 0; dayOffset <= 7; dayOffset++ {
		checkDate := localFrom.AddDate(0, 0, dayOffset)
		day := checkDate.Weekday()

		events, err := s.EventsOn(day)
		if err != nil {
			return nil
		}

		var next *Occurrence
		for _, ev := range events {
			plans, _ := ev.PlansOn(day)
			for _, p := range plans {
				start := p.Start.On(checkDate)
				if !start.After(from) {
					continue
				}
				if next == nil || start.Before(next.Start) {
					next = &Occurrence{
						EventID: ev.ID(),
						PlanID:  p.ID,
						Title:   ev.Title(),
						Start:   start,
						End:     start.Add(p.Duration()),
					}
				}
			}
		}
		if next != nil {
			return next
		}
	}

	return nil
}
