package schedule

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

// link ties an owned event to its schedule: the property listener driving
// the invalidation cascade and the subscription forwarding notifications.
type link struct {
	event   *Event
	unwatch func()
	forward *Subscription
}

// Schedule owns an ordered collection of events. It caches one partition of
// events per day, its active days and aggregate counts, and republishes the
// notifications of every owned event.
type Schedule struct {
	id     string
	timers *Timers

	mu           sync.RWMutex
	title        string
	description  string
	notes        *Collection[Note]
	notesCancel  func()
	events       *Collection[*Event]
	eventsCancel func()
	byDay        dayCache[*Event]
	activeDays   slot[[]time.Weekday]
	eventCount   slot[int]
	planCount    slot[int]
	closed       bool

	linksMu sync.Mutex
	links   map[*Event]*link

	props         signal
	notifications *Broadcaster
}

// NewSchedule returns a schedule with no events.
func NewSchedule(title string, opts ...Option) *Schedule {
	o := buildOptions(opts)
	if o.timers == nil {
		o.timers = DefaultTimers()
	}

	s := &Schedule{
		id:            o.id,
		timers:        o.timers,
		title:         title,
		description:   o.description,
		links:         make(map[*Event]*link),
		notifications: NewBroadcaster(),
	}
	s.notes = NewCollection[Note]()
	s.notesCancel = s.notes.Observe(s.notesObserver(s.notes))
	s.events = NewCollection[*Event]()
	s.eventsCancel = s.events.Observe(s.eventsObserver(s.events))
	return s
}

// ID returns the schedule's identity.
func (s *Schedule) ID() string {
	return s.id
}

// Timers returns the job runner given to events created by AddEvent.
func (s *Schedule) Timers() *Timers {
	return s.timers
}

// Title returns the title.
func (s *Schedule) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// SetTitle changes the title.
func (s *Schedule) SetTitle(title string) {
	s.mu.Lock()
	if s.title == title {
		s.mu.Unlock()
		return
	}
	s.title = title
	s.mu.Unlock()
	s.props.emit(s, PropTitle)
}

// Description returns the description.
func (s *Schedule) Description() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.description
}

// SetDescription changes the description.
func (s *Schedule) SetDescription(description string) {
	s.mu.Lock()
	if s.description == description {
		s.mu.Unlock()
		return
	}
	s.description = description
	s.mu.Unlock()
	s.props.emit(s, PropDescription)
}

// Notes returns the live notes collection.
func (s *Schedule) Notes() *Collection[Note] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes
}

// SetNotes replaces the notes collection.
func (s *Schedule) SetNotes(notes *Collection[Note]) error {
	if notes == nil {
		return fmt.Errorf("%w: notes collection is nil", ErrInvalidArgument)
	}
	s.mu.Lock()
	if s.notes == notes {
		s.mu.Unlock()
		return nil
	}
	if s.notesCancel != nil {
		s.notesCancel()
	}
	s.notes = notes
	s.notesCancel = notes.Observe(s.notesObserver(notes))
	s.mu.Unlock()
	s.props.emit(s, PropNotes)
	return nil
}

func (s *Schedule) notesObserver(src *Collection[Note]) func(Change[Note]) {
	return func(Change[Note]) {
		s.mu.RLock()
		current := s.notes == src && !s.closed
		s.mu.RUnlock()
		if current {
			s.props.emit(s, PropNotes)
		}
	}
}

// Events returns the live event collection.
func (s *Schedule) Events() *Collection[*Event] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

// SetEvents replaces the event collection. Events of the old collection are
// unlinked before those of the new one are linked.
func (s *Schedule) SetEvents(events *Collection[*Event]) error {
	if events == nil {
		return fmt.Errorf("%w: events collection is nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.events == events {
		s.mu.Unlock()
		return nil
	}
	if s.eventsCancel != nil {
		s.eventsCancel()
	}
	s.events = events
	s.eventsCancel = events.Observe(s.eventsObserver(events))
	s.invalidateAll()
	s.mu.Unlock()

	s.relink(events)

	props := []string{PropEvents}
	for _, d := range allDays {
		props = append(props, EventsProperty(d))
	}
	props = append(props, PropActiveDays, PropEventCount, PropPlanCount)
	s.props.emit(s, props...)
	return nil
}

// AddEvent creates an event sharing the schedule's timers and appends it.
func (s *Schedule) AddEvent(title string, opts ...Option) *Event {
	e := NewEvent(title, append([]Option{WithTimers(s.timers)}, opts...)...)
	s.Events().Append(e)
	return e
}

// RemoveEvent removes the event with the given ID and closes it.
func (s *Schedule) RemoveEvent(id string) bool {
	e, ok := s.Event(id)
	if !ok {
		return false
	}
	if s.Events().Remove(e) == 0 {
		return false
	}
	e.Close()
	return true
}

// Event looks up an event by ID.
func (s *Schedule) Event(id string) (*Event, bool) {
	for _, e := range s.Events().Items() {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// EventsOn returns the events holding at least one plan on day, in
// collection order.
func (s *Schedule) EventsOn(day time.Weekday) ([]*Event, error) {
	if err := checkDay(day); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if v, ok := s.byDay.peek(day); ok {
		s.mu.RUnlock()
		return slices.Clone(v), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.byDay.get(day, s.fetchEvents)), nil
}

func (s *Schedule) fetchEvents(day time.Weekday) []*Event {
	out := []*Event{}
	for _, e := range s.events.Items() {
		if e.IsActiveOn(day) {
			out = append(out, e)
		}
	}
	return out
}

// ActiveDays returns the union of the events' active days, Sunday first.
func (s *Schedule) ActiveDays() []time.Weekday {
	s.mu.RLock()
	if v, ok := s.activeDays.peek(); ok {
		s.mu.RUnlock()
		return slices.Clone(v)
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.activeDays.get(func() []time.Weekday {
		var set daySet
		for _, e := range s.events.Items() {
			set.addAll(e.ActiveDays())
		}
		return set.list()
	}))
}

// EventCount returns the number of events.
func (s *Schedule) EventCount() int {
	s.mu.RLock()
	if v, ok := s.eventCount.peek(); ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventCount.get(s.events.Len)
}

// PlanCount returns the number of plans across all events.
func (s *Schedule) PlanCount() int {
	s.mu.RLock()
	if v, ok := s.planCount.peek(); ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planCount.get(func() int {
		n := 0
		for _, e := range s.events.Items() {
			n += e.PlanCount()
		}
		return n
	})
}

// AllPlans returns the plans of every event, in event order.
func (s *Schedule) AllPlans() []timeframe.DayPlan {
	var out []timeframe.DayPlan
	for _, e := range s.Events().Items() {
		out = append(out, e.Plans().Items()...)
	}
	return out
}

func (s *Schedule) invalidateAll() {
	s.byDay.clear()
	s.activeDays.invalidate()
	s.eventCount.invalidate()
	s.planCount.invalidate()
}

func (s *Schedule) eventsObserver(src *Collection[*Event]) func(Change[*Event]) {
	return func(ch Change[*Event]) {
		s.mu.Lock()
		stale := s.events != src || s.closed
		s.mu.Unlock()
		if stale {
			return
		}

		// Removed events are read while still linked and added events after
		// they are linked, so a plan change in between always reaches
		// onEventChanged.
		var affected daySet
		switch ch.Action {
		case ActionAdd:
			s.attach(ch.NewItems)
			for _, e := range ch.NewItems {
				affected.addAll(e.ActiveDays())
			}
		case ActionRemove:
			for _, e := range ch.OldItems {
				affected.addAll(e.ActiveDays())
			}
			s.detach(ch.OldItems, src)
		case ActionReplace:
			for _, e := range ch.OldItems {
				affected.addAll(e.ActiveDays())
			}
			s.detach(ch.OldItems, src)
			s.attach(ch.NewItems)
			for _, e := range ch.NewItems {
				affected.addAll(e.ActiveDays())
			}
		case ActionReset:
			s.relink(src)
			for _, d := range allDays {
				affected.add(d)
			}
		case ActionMove:
			for _, e := range ch.NewItems {
				affected.addAll(e.ActiveDays())
			}
		}

		s.mu.Lock()
		if s.events != src || s.closed {
			s.mu.Unlock()
			return
		}
		days := affected.list()
		for _, d := range days {
			s.byDay.invalidate(d)
		}
		counts := ch.Action != ActionMove
		if counts {
			s.activeDays.invalidate()
			s.eventCount.invalidate()
			s.planCount.invalidate()
		}
		s.mu.Unlock()

		props := make([]string, 0, len(days)+3)
		for _, d := range days {
			props = append(props, EventsProperty(d))
		}
		if counts {
			props = append(props, PropActiveDays, PropEventCount, PropPlanCount)
		}
		s.props.emit(s, props...)
	}
}

// attach links events that are not linked yet.
func (s *Schedule) attach(events []*Event) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()
	for _, e := range events {
		if e == nil {
			continue
		}
		if _, ok := s.links[e]; ok {
			continue
		}
		s.links[e] = &link{
			event:   e,
			unwatch: e.OnPropertyChanged(s.onEventChanged),
			forward: e.Subscribe(ObserverFunc(func(n Notification) error {
				s.notifications.Publish(n)
				return nil
			})),
		}
	}
}

// detach unlinks events no longer present in src.
func (s *Schedule) detach(events []*Event, src *Collection[*Event]) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()
	for _, e := range events {
		if src.Contains(e) {
			continue
		}
		s.unlinkLocked(e)
	}
}

// relink unlinks every event missing from src, then links the rest.
func (s *Schedule) relink(src *Collection[*Event]) {
	current := src.Items()
	s.linksMu.Lock()
	for e := range s.links {
		if !slices.Contains(current, e) {
			s.unlinkLocked(e)
		}
	}
	s.linksMu.Unlock()
	s.attach(current)
}

func (s *Schedule) unlinkLocked(e *Event) {
	l, ok := s.links[e]
	if !ok {
		return
	}
	l.unwatch()
	l.forward.Close()
	delete(s.links, e)
}

// onEventChanged cascades an owned event's cache invalidation into the
// schedule's caches.
func (s *Schedule) onEventChanged(_ any, property string) {
	var props []string

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if day, ok := plansPropertyDay(property); ok {
		s.byDay.invalidate(day)
		props = append(props, EventsProperty(day))
	}
	switch property {
	case PropActiveDays:
		s.activeDays.invalidate()
		props = append(props, PropActiveDays)
	case PropPlanCount:
		s.planCount.invalidate()
		props = append(props, PropPlanCount)
	}
	s.mu.Unlock()

	s.props.emit(s, props...)
}

// Linked reports whether the event is linked to this schedule.
func (s *Schedule) Linked(e *Event) bool {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()
	_, ok := s.links[e]
	return ok
}

// Subscribe registers an observer of every owned event's notifications.
func (s *Schedule) Subscribe(obs Observer) *Subscription {
	return s.notifications.Subscribe(obs)
}

// Notifications streams the schedule's notifications until ctx is done.
func (s *Schedule) Notifications(ctx context.Context, buffer int) <-chan Notification {
	return s.notifications.Channel(ctx, buffer)
}

// OnPropertyChanged registers a listener for property changes.
func (s *Schedule) OnPropertyChanged(fn PropertyListener) (cancel func()) {
	return s.props.add(fn)
}

// Close unlinks and closes every owned event and closes the schedule's
// subscriptions.
func (s *Schedule) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.eventsCancel != nil {
		s.eventsCancel()
	}
	if s.notesCancel != nil {
		s.notesCancel()
	}
	events := s.events.Items()
	s.mu.Unlock()

	s.linksMu.Lock()
	for e := range s.links {
		s.unlinkLocked(e)
	}
	s.linksMu.Unlock()

	for _, e := range events {
		e.Close()
	}
	s.notifications.Close()
	s.props.reset()
}
