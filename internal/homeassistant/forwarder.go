package homeassistant

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
)

// EventData is the payload fired for a plan start.
type EventData struct {
	ScheduleID string `json:"schedule_id"`
	schedule.Notification
	DurationMin int `json:"duration_min"`
}

// Forwarder queues notifications and fires them as Home Assistant events
// after a short batch window.
type Forwarder struct {
	client     *Client
	eventType  string
	scheduleID string

	// Batching keeps OnNotification off the network path
	pending     []schedule.Notification
	batchMu     sync.Mutex
	batchWindow time.Duration
	batchTimer  *time.Timer
	stopped     bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewForwarder creates a forwarder for the schedule with the given ID.
func NewForwarder(config Config, scheduleID string) *Forwarder {
	config.Normalize()
	return &Forwarder{
		client:      NewClient(config),
		eventType:   config.EventType,
		scheduleID:  scheduleID,
		batchWindow: config.BatchWindow(),
	}
}

// Client returns the underlying API client.
func (f *Forwarder) Client() *Client {
	return f.client
}

// OnNotification implements schedule.Observer. It only queues.
func (f *Forwarder) OnNotification(n schedule.Notification) error {
	f.batchMu.Lock()
	defer f.batchMu.Unlock()

	if f.stopped {
		return nil
	}
	f.pending = append(f.pending, n)

	if f.batchTimer == nil {
		f.batchTimer = time.AfterFunc(f.batchWindow, f.flushBatch)
	}
	return nil
}

// flushBatch fires all pending notifications.
func (f *Forwarder) flushBatch() {
	f.batchMu.Lock()
	batch := f.pending
	f.pending = nil
	f.batchTimer = nil
	f.batchMu.Unlock()

	ctx := context.Background()
	for _, n := range batch {
		data := EventData{
			ScheduleID:   f.scheduleID,
			Notification: n,
			DurationMin:  int(n.Duration().Minutes()),
		}
		if err := f.client.FireEvent(ctx, f.eventType, data); err != nil {
			f.failed.Add(1)
			log.Printf("Failed to forward plan start %q (%s) to Home Assistant: %v", n.Title, n.PlanID, err)
			continue
		}
		f.sent.Add(1)
	}
}

// FlushNow immediately fires all pending notifications.
func (f *Forwarder) FlushNow() {
	f.batchMu.Lock()
	if f.batchTimer != nil {
		f.batchTimer.Stop()
	}
	f.batchMu.Unlock()

	f.flushBatch()
}

// Stop flushes what is queued and ignores later notifications.
func (f *Forwarder) Stop() {
	f.batchMu.Lock()
	f.stopped = true
	f.batchMu.Unlock()

	f.FlushNow()
}

// Sent is the number of events delivered.
func (f *Forwarder) Sent() int64 {
	return f.sent.Load()
}

// Failed is the number of events Home Assistant did not accept.
func (f *Forwarder) Failed() int64 {
	return f.failed.Load()
}
