package schedule

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Note is one key/value entry attached to an event or schedule.
type Note struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

var (
	defaultTimers     *Timers
	defaultTimersOnce sync.Once
)

// DefaultTimers returns a shared, started job runner used by events created
// without WithTimers.
func DefaultTimers() *Timers {
	defaultTimersOnce.Do(func() {
		defaultTimers = NewTimers()
		defaultTimers.Start()
	})
	return defaultTimers
}

type options struct {
	id          string
	description string
	timers      *Timers
}

// Option configures a new Event or Schedule.
type Option func(*options)

// WithID sets the identity instead of generating one.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithDescription sets the initial description.
func WithDescription(description string) Option {
	return func(o *options) { o.description = description }
}

// WithTimers sets the job runner that arms plan timers.
func WithTimers(t *Timers) Option {
	return func(o *options) { o.timers = t }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o
}

// Event owns an ordered collection of day plans. It caches one partition
// per day of the week plus its active days and plan count, arms a daily
// timer for each plan, and publishes a Notification when a timer fires.
type Event struct {
	id     string
	timers *Timers

	mu          sync.RWMutex
	title       string
	description string
	notes       *Collection[Note]
	notesCancel func()
	plans       *Collection[timeframe.DayPlan]
	plansCancel func()
	byDay       dayCache[timeframe.DayPlan]
	activeDays  slot[[]time.Weekday]
	planCount   slot[int]
	closed      bool

	jobsMu sync.Mutex
	jobs   map[string]cron.EntryID

	props         signal
	notifications *Broadcaster
}

// NewEvent returns an event with no plans.
func NewEvent(title string, opts ...Option) *Event {
	o := buildOptions(opts)
	if o.timers == nil {
		o.timers = DefaultTimers()
	}

	e := &Event{
		id:            o.id,
		timers:        o.timers,
		title:         title,
		description:   o.description,
		jobs:          make(map[string]cron.EntryID),
		notifications: NewBroadcaster(),
	}
	e.notes = NewCollection[Note]()
	e.notesCancel = e.notes.Observe(e.notesObserver(e.notes))
	e.plans = NewCollection[timeframe.DayPlan]()
	e.plansCancel = e.plans.Observe(e.plansObserver(e.plans))
	return e
}

// ID returns the event's identity.
func (e *Event) ID() string {
	return e.id
}

// Title returns the title.
func (e *Event) Title() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.title
}

// SetTitle changes the title.
func (e *Event) SetTitle(title string) {
	e.mu.Lock()
	if e.title == title {
		e.mu.Unlock()
		return
	}
	e.title = title
	e.mu.Unlock()
	e.props.emit(e, PropTitle)
}

// Description returns the description.
func (e *Event) Description() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.description
}

// SetDescription changes the description.
func (e *Event) SetDescription(description string) {
	e.mu.Lock()
	if e.description == description {
		e.mu.Unlock()
		return
	}
	e.description = description
	e.mu.Unlock()
	e.props.emit(e, PropDescription)
}

// Notes returns the live notes collection.
func (e *Event) Notes() *Collection[Note] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notes
}

// SetNotes replaces the notes collection.
func (e *Event) SetNotes(notes *Collection[Note]) error {
	if notes == nil {
		return fmt.Errorf("%w: notes collection is nil", ErrInvalidArgument)
	}
	e.mu.Lock()
	if e.notes == notes {
		e.mu.Unlock()
		return nil
	}
	if e.notesCancel != nil {
		e.notesCancel()
	}
	e.notes = notes
	e.notesCancel = notes.Observe(e.notesObserver(notes))
	e.mu.Unlock()
	e.props.emit(e, PropNotes)
	return nil
}

func (e *Event) notesObserver(src *Collection[Note]) func(Change[Note]) {
	return func(Change[Note]) {
		e.mu.RLock()
		current := e.notes == src && !e.closed
		e.mu.RUnlock()
		if current {
			e.props.emit(e, PropNotes)
		}
	}
}

// Plans returns the live plan collection. Mutating it updates the caches
// and timers of this event.
func (e *Event) Plans() *Collection[timeframe.DayPlan] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.plans
}

// SetPlans replaces the plan collection. The old collection is detached and
// its timers cancelled before the new one is attached and armed.
func (e *Event) SetPlans(plans *Collection[timeframe.DayPlan]) error {
	if plans == nil {
		return fmt.Errorf("%w: plans collection is nil", ErrInvalidArgument)
	}

	e.mu.Lock()
	if e.plans == plans {
		e.mu.Unlock()
		return nil
	}
	if e.plansCancel != nil {
		e.plansCancel()
	}
	e.disarmAll()
	e.plans = plans
	e.plansCancel = plans.Observe(e.plansObserver(plans))
	e.byDay.clear()
	e.activeDays.invalidate()
	e.planCount.invalidate()
	e.mu.Unlock()

	e.arm(plans.Items())

	props := []string{PropPlans}
	for _, d := range allDays {
		props = append(props, PlansProperty(d))
	}
	props = append(props, PropActiveDays, PropPlanCount)
	e.props.emit(e, props...)
	return nil
}

// AddPlan builds a plan and appends it to the collection.
func (e *Event) AddPlan(day time.Weekday, start, end timeframe.TimeOfDay) (timeframe.DayPlan, error) {
	p, err := timeframe.NewDayPlan(day, start, end)
	if err != nil {
		return timeframe.DayPlan{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	e.Plans().Append(p)
	return p, nil
}

// RemovePlan removes the plan with the given ID.
func (e *Event) RemovePlan(planID string) bool {
	p, ok := e.Plan(planID)
	if !ok {
		return false
	}
	return e.Plans().Remove(p) > 0
}

// Plan looks up a plan by ID.
func (e *Event) Plan(planID string) (timeframe.DayPlan, bool) {
	for _, p := range e.Plans().Items() {
		if p.ID == planID {
			return p, true
		}
	}
	return timeframe.DayPlan{}, false
}

// PlansOn returns the plans that fall on day, in collection order. The
// partition is computed on first use and reused until a mutation touches it.
func (e *Event) PlansOn(day time.Weekday) ([]timeframe.DayPlan, error) {
	if err := checkDay(day); err != nil {
		return nil, err
	}

	e.mu.RLock()
	if v, ok := e.byDay.peek(day); ok {
		e.mu.RUnlock()
		return slices.Clone(v), nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.byDay.get(day, e.fetchPlans)), nil
}

func (e *Event) fetchPlans(day time.Weekday) []timeframe.DayPlan {
	out := []timeframe.DayPlan{}
	for _, p := range e.plans.Items() {
		if p.Day == day {
			out = append(out, p)
		}
	}
	return out
}

// ActiveDays returns the distinct days holding at least one plan, Sunday first.
func (e *Event) ActiveDays() []time.Weekday {
	e.mu.RLock()
	if v, ok := e.activeDays.peek(); ok {
		e.mu.RUnlock()
		return slices.Clone(v)
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.activeDays.get(func() []time.Weekday {
		var set daySet
		for _, p := range e.plans.Items() {
			set.add(p.Day)
		}
		return set.list()
	}))
}

// IsActiveOn reports whether any plan falls on day.
func (e *Event) IsActiveOn(day time.Weekday) bool {
	return slices.Contains(e.ActiveDays(), day)
}

// PlanCount returns the number of plans.
func (e *Event) PlanCount() int {
	e.mu.RLock()
	if v, ok := e.planCount.peek(); ok {
		e.mu.RUnlock()
		return v
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planCount.get(e.plans.Len)
}

// plansObserver handles containment changes of src. Only the days touched
// by the change are invalidated.
func (e *Event) plansObserver(src *Collection[timeframe.DayPlan]) func(Change[timeframe.DayPlan]) {
	return func(ch Change[timeframe.DayPlan]) {
		var affected daySet
		switch ch.Action {
		case ActionAdd:
			for _, p := range ch.NewItems {
				affected.add(p.Day)
			}
		case ActionRemove:
			for _, p := range ch.OldItems {
				affected.add(p.Day)
			}
		case ActionReplace:
			for _, p := range ch.OldItems {
				affected.add(p.Day)
			}
			for _, p := range ch.NewItems {
				affected.add(p.Day)
			}
		case ActionReset:
			for _, d := range allDays {
				affected.add(d)
			}
		case ActionMove:
			// Order changed within a day; partitions keep collection order.
			for _, p := range ch.NewItems {
				affected.add(p.Day)
			}
		}

		e.mu.Lock()
		if e.plans != src || e.closed {
			e.mu.Unlock()
			return
		}
		days := affected.list()
		for _, d := range days {
			e.byDay.invalidate(d)
		}
		// Counts follow the collection even for plans without a valid day.
		aggregates := ch.Action != ActionMove
		if aggregates {
			e.activeDays.invalidate()
			e.planCount.invalidate()
		}
		e.mu.Unlock()

		switch ch.Action {
		case ActionAdd:
			e.arm(ch.NewItems)
		case ActionRemove:
			e.disarm(ch.OldItems, src)
		case ActionReplace:
			e.disarm(ch.OldItems, src)
			e.arm(ch.NewItems)
		case ActionReset:
			e.rearm(src)
		}

		props := make([]string, 0, len(days)+2)
		for _, d := range days {
			props = append(props, PlansProperty(d))
		}
		if aggregates {
			props = append(props, PropActiveDays, PropPlanCount)
		}
		e.props.emit(e, props...)
	}
}

// arm registers a daily job for each plan that has none yet.
func (e *Event) arm(plans []timeframe.DayPlan) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	for _, p := range plans {
		if _, ok := e.jobs[p.ID]; ok {
			continue
		}
		planID := p.ID
		id, err := e.timers.arm(p.Start, func() { e.Fire(planID) })
		if err != nil {
			log.Printf("Failed to arm timer for plan %s of event %s: %v", p.ID, e.id, err)
			continue
		}
		e.jobs[p.ID] = id
	}
}

// disarm cancels the jobs of plans no longer present in src.
func (e *Event) disarm(plans []timeframe.DayPlan, src *Collection[timeframe.DayPlan]) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	for _, p := range plans {
		if src.Contains(p) {
			continue
		}
		if id, ok := e.jobs[p.ID]; ok {
			e.timers.disarm(id)
			delete(e.jobs, p.ID)
		}
	}
}

// rearm cancels every job and arms one per plan currently in src.
func (e *Event) rearm(src *Collection[timeframe.DayPlan]) {
	e.jobsMu.Lock()
	for planID, id := range e.jobs {
		e.timers.disarm(id)
		delete(e.jobs, planID)
	}
	e.jobsMu.Unlock()
	e.arm(src.Items())
}

func (e *Event) disarmAll() {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	for planID, id := range e.jobs {
		e.timers.disarm(id)
		delete(e.jobs, planID)
	}
}

// Armed reports whether a timer is armed for the plan.
func (e *Event) Armed(planID string) bool {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	_, ok := e.jobs[planID]
	return ok
}

// ArmedCount returns the number of armed timers.
func (e *Event) ArmedCount() int {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	return len(e.jobs)
}

// NextRun returns when the plan's timer fires next, or nil when it is not
// armed. While the timers are stopped it is the next occurrence of the
// plan's start, which is when the job fires once they start.
func (e *Event) NextRun(planID string) *time.Time {
	e.jobsMu.Lock()
	id, ok := e.jobs[planID]
	e.jobsMu.Unlock()
	if !ok {
		return nil
	}
	if next := e.timers.NextRun(id); next != nil {
		return next
	}
	p, ok := e.Plan(planID)
	if !ok {
		return nil
	}
	now := time.Now()
	next := now.Add(NextDelay(now, p.Start)).Truncate(time.Second)
	return &next
}

// Trigger runs the plan's armed timer job now, as if it had matured.
func (e *Event) Trigger(planID string) bool {
	e.jobsMu.Lock()
	id, ok := e.jobs[planID]
	e.jobsMu.Unlock()
	if !ok {
		return false
	}
	return e.timers.Run(id)
}

// Fire publishes a notification for the plan to the event's observers. It
// reports false when the plan is not part of the event.
func (e *Event) Fire(planID string) bool {
	n, ok := e.Notification(planID, time.Now())
	if !ok {
		return false
	}
	e.notifications.Publish(n)
	return true
}

// Notification builds the snapshot published when the plan starts.
func (e *Event) Notification(planID string, at time.Time) (Notification, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Notification{}, false
	}

	var plan timeframe.DayPlan
	found := false
	for _, p := range e.plans.Items() {
		if p.ID == planID {
			plan, found = p, true
			break
		}
	}
	if !found {
		return Notification{}, false
	}

	n := Notification{
		EventID:     e.id,
		PlanID:      plan.ID,
		Title:       e.title,
		Description: e.description,
		Day:         plan.Day,
		Start:       plan.Start,
		End:         plan.End,
		FiredAt:     at,
	}
	if notes := e.notes.Items(); len(notes) > 0 {
		n.Notes = make(map[string]string, len(notes))
		for _, note := range notes {
			n.Notes[note.Key] = note.Value
		}
	}
	return n, true
}

// Subscribe registers an observer of this event's notifications.
func (e *Event) Subscribe(obs Observer) *Subscription {
	return e.notifications.Subscribe(obs)
}

// Notifications streams this event's notifications until ctx is done.
func (e *Event) Notifications(ctx context.Context, buffer int) <-chan Notification {
	return e.notifications.Channel(ctx, buffer)
}

// OnPropertyChanged registers a listener for property changes.
func (e *Event) OnPropertyChanged(fn PropertyListener) (cancel func()) {
	return e.props.add(fn)
}

// Close cancels all timers, detaches from the event's collections and
// closes its subscriptions. The event must not be used afterwards.
func (e *Event) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.plansCancel != nil {
		e.plansCancel()
	}
	if e.notesCancel != nil {
		e.notesCancel()
	}
	e.mu.Unlock()

	e.disarmAll()
	e.notifications.Close()
	e.props.reset()
}
