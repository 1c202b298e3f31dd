package timeframe

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Window is a start/end pair within one day.
type Window struct {
	Start TimeOfDay `json:"start_time" yaml:"start_time"`
	End   TimeOfDay `json:"end_time" yaml:"end_time"`
}

// NewWindow returns a window, rejecting one that ends before it starts.
func NewWindow(start, end TimeOfDay) (Window, error) {
	if end < start {
		return Window{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow, end, start)
	}
	return Window{Start: start, End: end}, nil
}

// Duration is End minus Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t TimeOfDay) bool {
	return t >= w.Start && t < w.End
}

// Overlaps reports whether the two half-open windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// DayPlan is a window tagged with a day of the week.
//
// Plans compare by ID: two plans holding the same day and times are still
// distinct plans. Use SameSlot to compare by value.
type DayPlan struct {
	ID  string       `json:"id"`
	Day time.Weekday `json:"day_of_week"`
	Window
}

// ValidDay reports whether d is Sunday..Saturday.
func ValidDay(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}

// NewDayPlan validates its inputs and returns a plan with a fresh identity.
func NewDayPlan(day time.Weekday, start, end TimeOfDay) (DayPlan, error) {
	if !ValidDay(day) {
		return DayPlan{}, fmt.Errorf("%w: %d", ErrInvalidDay, int(day))
	}
	w, err := NewWindow(start, end)
	if err != nil {
		return DayPlan{}, err
	}
	return DayPlan{ID: uuid.NewString(), Day: day, Window: w}, nil
}

// SameSlot reports whether both plans cover the same day and times.
func (p DayPlan) SameSlot(o DayPlan) bool {
	return p.Day == o.Day && p.Window == o.Window
}

func (p DayPlan) String() string {
	return fmt.Sprintf("%s %s", p.Day, p.Window)
}
