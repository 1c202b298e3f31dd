package schedule

import (
	"context"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Notification is a snapshot of an event taken when one of its plans
// starts. It holds no reference into the live model.
type Notification struct {
	EventID     string              `json:"event_id"`
	PlanID      string              `json:"plan_id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Day         time.Weekday        `json:"day_of_week"`
	Start       timeframe.TimeOfDay `json:"start_time"`
	End         timeframe.TimeOfDay `json:"end_time"`
	Notes       map[string]string   `json:"notes,omitempty"`
	FiredAt     time.Time           `json:"fired_at"`
}

// Duration is the length of the plan that fired.
func (n Notification) Duration() time.Duration {
	return n.End.Sub(n.Start)
}

// Window returns the plan window the notification was built from.
func (n Notification) Window() timeframe.Window {
	return timeframe.Window{Start: n.Start, End: n.End}
}

// Observer receives notifications. A returned error is logged and does not
// affect delivery to other observers.
type Observer interface {
	OnNotification(Notification) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification) error

// OnNotification calls f(n).
func (f ObserverFunc) OnNotification(n Notification) error {
	return f(n)
}

// Subscription is the handle returned by Subscribe. Closing it removes the
// observer from future dispatches.
type Subscription struct {
	id     uint64
	once   sync.Once
	done   chan struct{}
	cancel func()
}

func newSubscription(id uint64) *Subscription {
	return &Subscription{id: id, done: make(chan struct{})}
}

// ID identifies the subscription within its broadcaster.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Close unregisters the observer. It is safe to call more than once and
// does not recall a notification already being delivered.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Done is closed once the subscription has been closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type subscriber struct {
	sub *Subscription
	obs Observer
}

// Broadcaster fans notifications out to its observers.
//
// Publish works on a snapshot taken under the lock: an observer subscribed
// during a dispatch does not receive it, an observer closed during a dispatch
// is skipped, and every observer present for the whole dispatch receives it.
// Failing or panicking observers are isolated from the rest.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]subscriber
	order       []uint64
	nextID      uint64
	closed      bool

	// OnError receives observer failures. Defaults to logging.
	OnError func(*ObserverError)
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[uint64]subscriber)}
}

// Subscribe registers obs and returns its handle. Subscribing to a closed
// broadcaster returns an already-closed handle.
func (b *Broadcaster) Subscribe(obs Observer) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := newSubscription(b.nextID)
	if b.closed || obs == nil {
		sub.Close()
		return sub
	}
	if b.subscribers == nil {
		b.subscribers = make(map[uint64]subscriber)
	}
	id := sub.id
	sub.cancel = func() { b.remove(id) }
	b.subscribers[id] = subscriber{sub: sub, obs: obs}
	b.order = append(b.order, id)
	return sub
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[id]; !ok {
		return
	}
	delete(b.subscribers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish delivers n to every current observer and returns how many
// accepted it without error. It never returns an observer's failure.
func (b *Broadcaster) Publish(n Notification) int {
	b.mu.Lock()
	snapshot := make([]subscriber, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.subscribers[id])
	}
	b.mu.Unlock()

	delivered := 0
	for _, s := range snapshot {
		if s.sub.Closed() {
			continue
		}
		if err := deliver(s.obs, n); err != nil {
			b.reportError(&ObserverError{SubscriptionID: s.sub.id, Err: err})
			continue
		}
		delivered++
	}
	return delivered
}

// deliver calls the observer and turns a panic into an error.
func deliver(obs Observer, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	// Observers get their own copy of the notes.
	n.Notes = maps.Clone(n.Notes)
	return obs.OnNotification(n)
}

func (b *Broadcaster) reportError(err *ObserverError) {
	if b.OnError != nil {
		b.OnError(err)
		return
	}
	log.Printf("Notification observer failed: %v", err)
}

// Channel subscribes a buffered channel that receives notifications until
// ctx is done or the broadcaster is closed; the channel is then closed.
// Sends never block the publisher: when the buffer is full the notification
// is dropped for this channel and reported as an ObserverError wrapping
// ErrSubscriberFull.
func (b *Broadcaster) Channel(ctx context.Context, buffer int) <-chan Notification {
	ch := make(chan Notification, buffer)
	done := make(chan struct{})
	var sendMu sync.RWMutex

	sub := b.Subscribe(ObserverFunc(func(n Notification) error {
		sendMu.RLock()
		defer sendMu.RUnlock()
		select {
		case <-done:
			return nil
		default:
		}
		select {
		case ch <- n:
			return nil
		default:
			return ErrSubscriberFull
		}
	}))

	finish := func() {
		sub.Close()
		close(done)
		sendMu.Lock()
		close(ch)
		sendMu.Unlock()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done():
		}
		finish()
	}()
	return ch
}

// Close removes every subscriber. Later subscriptions are returned closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subscribers[id].sub)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
