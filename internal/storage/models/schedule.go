// Package models contains the persisted shape of a schedule definition.
package models

import (
	"time"
)

// ScheduleRecord is a schedule definition: everything needed to rebuild the
// live schedule, without caches or timers. It is also the shape of the seed
// schedule in the configuration file.
type ScheduleRecord struct {
	ID          string        `json:"id" yaml:"id,omitempty"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Notes       []NoteRecord  `json:"notes,omitempty" yaml:"notes,omitempty"`
	Events      []EventRecord `json:"events" yaml:"events"`
	CreatedAt   time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"-"`
}

// EventRecord is one event and its plans, in collection order.
type EventRecord struct {
	ID          string       `json:"id" yaml:"id,omitempty"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Notes       []NoteRecord `json:"notes,omitempty" yaml:"notes,omitempty"`
	Plans       []PlanRecord `json:"plans" yaml:"plans"`
}

// PlanRecord is a day plan with its times in "15:04" or "15:04:05" form.
type PlanRecord struct {
	ID        string `json:"id" yaml:"id,omitempty"`
	DayOfWeek int    `json:"day_of_week" yaml:"day_of_week"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`
}

// NoteRecord is one key/value note.
type NoteRecord struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// PlanCount returns the number of plans across all events.
func (r *ScheduleRecord) PlanCount() int {
	n := 0
	for _, e := range r.Events {
		n += len(e.Plans)
	}
	return n
}
