package schedule

import (
	"slices"
	"sync"
	"time"
)

// Property names carried by the change signal.
const (
	PropTitle       = "Title"
	PropDescription = "Description"
	PropNotes       = "Notes"
	PropPlans       = "Plans"
	PropEvents      = "Events"
	PropActiveDays  = "ActiveDays"
	PropPlanCount   = "PlanCount"
	PropEventCount  = "EventCount"
)

// PlansProperty names an event's partition for day, e.g. "MondayPlans".
func PlansProperty(day time.Weekday) string {
	return day.String() + "Plans"
}

// EventsProperty names a schedule's partition for day, e.g. "MondayEvents".
func EventsProperty(day time.Weekday) string {
	return day.String() + "Events"
}

// plansPropertyDay maps "MondayPlans" back to time.Monday.
func plansPropertyDay(name string) (time.Weekday, bool) {
	for _, d := range allDays {
		if PlansProperty(d) == name {
			return d, true
		}
	}
	return 0, false
}

// PropertyListener receives the name of a property whose value changed.
type PropertyListener func(source any, property string)

// signal is a registry of property listeners. Emission happens outside the
// owner's locks so listeners may call back into the owner.
type signal struct {
	mu        sync.Mutex
	listeners map[int]PropertyListener
	order     []int
	next      int
}

func (s *signal) add(fn PropertyListener) (cancel func()) {
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[int]PropertyListener)
	}
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			if i := slices.Index(s.order, id); i >= 0 {
				s.order = slices.Delete(s.order, i, i+1)
			}
		})
	}
}

func (s *signal) emit(source any, props ...string) {
	if len(props) == 0 {
		return
	}
	s.mu.Lock()
	fns := make([]PropertyListener, 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, p := range props {
		for _, fn := range fns {
			fn(source, p)
		}
	}
}

func (s *signal) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
	s.order = nil
}
