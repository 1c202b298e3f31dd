package calendar

import (
	"errors"
	"log"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

const defaultMaxOccurrencesPerPlan = 500

// rruleDays maps time.Weekday to rrule's weekday values.
var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Occurrence is one concrete dated instance of a plan.
type Occurrence struct {
	EventID string    `json:"event_id"`
	PlanID  string    `json:"plan_id"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// ExpandConfig controls occurrence expansion.
type ExpandConfig struct {
	// Location places the wall-clock plan times. If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd bound the occurrence starts, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerPlan caps each plan's expansion. If zero,
	// defaultMaxOccurrencesPerPlan is used.
	MaxOccurrencesPerPlan int
}

// Expand lists every occurrence of the schedule's plans starting within the
// configured range, ordered by start time.
func Expand(s *schedule.Schedule, cfg ExpandConfig) ([]Occurrence, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerPlan <= 0 {
		cfg.MaxOccurrencesPerPlan = defaultMaxOccurrencesPerPlan
	}

	var out []Occurrence
	for _, e := range s.Events().Items() {
		title := e.Title()
		for _, p := range e.Plans().Items() {
			starts, err := planStarts(p, cfg)
			if err != nil {
				log.Printf("Failed to expand plan %s of event %s: %v", p.ID, e.ID(), err)
				continue
			}
			for _, start := range starts {
				out = append(out, Occurrence{
					EventID: e.ID(),
					PlanID:  p.ID,
					Title:   title,
					Start:   start,
					End:     start.Add(p.Duration()),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// Upcoming lists the occurrences starting in the given number of days after from.
func Upcoming(s *schedule.Schedule, from time.Time, days int) ([]Occurrence, error) {
	return Expand(s, ExpandConfig{
		Location:   from.Location(),
		RangeStart: from,
		RangeEnd:   from.AddDate(0, 0, days),
	})
}

// planStarts runs a weekly rule anchored on the plan's first day in range.
func planStarts(p timeframe.DayPlan, cfg ExpandConfig) ([]time.Time, error) {
	from := cfg.RangeStart.In(cfg.Location)
	first := nextDate(from, p.Day)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleDays[p.Day]},
		Dtstart:   p.Start.On(first),
	})
	if err != nil {
		return nil, err
	}

	starts := r.Between(from, cfg.RangeEnd.In(cfg.Location), true)
	if len(starts) > cfg.MaxOccurrencesPerPlan {
		starts = starts[:cfg.MaxOccurrencesPerPlan]
	}
	return starts, nil
}
