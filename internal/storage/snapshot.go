package storage

import (
	"fmt"
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage/models"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Snapshot captures the definition of a live schedule.
func Snapshot(s *schedule.Schedule) models.ScheduleRecord {
	rec := models.ScheduleRecord{
		ID:          s.ID(),
		Title:       s.Title(),
		Description: s.Description(),
		Notes:       noteRecords(s.Notes().Items()),
		Events:      []models.EventRecord{},
	}

	for _, e := range s.Events().Items() {
		er := models.EventRecord{
			ID:          e.ID(),
			Title:       e.Title(),
			Description: e.Description(),
			Notes:       noteRecords(e.Notes().Items()),
			Plans:       []models.PlanRecord{},
		}
		for _, p := range e.Plans().Items() {
			er.Plans = append(er.Plans, models.PlanRecord{
				ID:        p.ID,
				DayOfWeek: int(p.Day),
				StartTime: p.Start.String(),
				EndTime:   p.End.String(),
			})
		}
		rec.Events = append(rec.Events, er)
	}
	return rec
}

// Restore rebuilds a live schedule from its definition, arming plan timers
// on timers. Missing IDs are generated. Nothing is built if any plan is
// invalid.
func Restore(rec models.ScheduleRecord, timers *schedule.Timers) (*schedule.Schedule, error) {
	type eventPlans struct {
		rec   models.EventRecord
		plans []timeframe.DayPlan
	}

	// Validate everything before creating events, which arm timers.
	events := make([]eventPlans, 0, len(rec.Events))
	for _, er := range rec.Events {
		plans := make([]timeframe.DayPlan, 0, len(er.Plans))
		for _, pr := range er.Plans {
			p, err := PlanFromRecord(pr)
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", er.Title, err)
			}
			plans = append(plans, p)
		}
		events = append(events, eventPlans{rec: er, plans: plans})
	}

	opts := []schedule.Option{schedule.WithDescription(rec.Description)}
	if rec.ID != "" {
		opts = append(opts, schedule.WithID(rec.ID))
	}
	if timers != nil {
		opts = append(opts, schedule.WithTimers(timers))
	}
	s := schedule.NewSchedule(rec.Title, opts...)
	s.Notes().Reset(notes(rec.Notes)...)

	built := make([]*schedule.Event, 0, len(events))
	for _, ep := range events {
		eopts := []schedule.Option{
			schedule.WithDescription(ep.rec.Description),
			schedule.WithTimers(s.Timers()),
		}
		if ep.rec.ID != "" {
			eopts = append(eopts, schedule.WithID(ep.rec.ID))
		}
		e := schedule.NewEvent(ep.rec.Title, eopts...)
		e.Notes().Reset(notes(ep.rec.Notes)...)
		e.Plans().Reset(ep.plans...)
		built = append(built, e)
	}
	s.Events().Reset(built...)

	return s, nil
}

// PlanFromRecord validates a stored plan. An empty ID gets a fresh one.
func PlanFromRecord(pr models.PlanRecord) (timeframe.DayPlan, error) {
	start, err := timeframe.ParseTimeOfDay(pr.StartTime)
	if err != nil {
		return timeframe.DayPlan{}, fmt.Errorf("start time: %w", err)
	}
	end, err := timeframe.ParseTimeOfDay(pr.EndTime)
	if err != nil {
		return timeframe.DayPlan{}, fmt.Errorf("end time: %w", err)
	}
	p, err := timeframe.NewDayPlan(time.Weekday(pr.DayOfWeek), start, end)
	if err != nil {
		return timeframe.DayPlan{}, err
	}
	if pr.ID != "" {
		p.ID = pr.ID
	}
	return p, nil
}

func noteRecords(notes []schedule.Note) []models.NoteRecord {
	if len(notes) == 0 {
		return nil
	}
	out := make([]models.NoteRecord, len(notes))
	for i, n := range notes {
		out[i] = models.NoteRecord{Key: n.Key, Value: n.Value}
	}
	return out
}

func notes(records []models.NoteRecord) []schedule.Note {
	out := make([]schedule.Note, len(records))
	for i, n := range records {
		out[i] = schedule.Note{Key: n.Key, Value: n.Value}
	}
	return out
}
