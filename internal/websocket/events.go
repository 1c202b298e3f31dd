package websocket

import (
	"log"

	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/schedule"
)

// EventBroadcaster turns schedule activity into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// Attach forwards the schedule's notifications and property changes to
// the hub until the returned function is called.
func (b *EventBroadcaster) Attach(s *schedule.Schedule) (detach func()) {
	sub := s.Subscribe(b)
	cancel := s.OnPropertyChanged(func(_ any, property string) {
		b.BroadcastScheduleChanged(s.ID(), property)
	})
	return func() {
		cancel()
		sub.Close()
	}
}

// OnNotification implements schedule.Observer.
func (b *EventBroadcaster) OnNotification(n schedule.Notification) error {
	b.BroadcastEventStarted(n)
	return nil
}

// BroadcastEventStarted sends an event.started message.
func (b *EventBroadcaster) BroadcastEventStarted(n schedule.Notification) {
	payload := EventStartedPayload{
		EventID:     n.EventID,
		PlanID:      n.PlanID,
		Title:       n.Title,
		Description: n.Description,
		DayOfWeek:   int(n.Day),
		StartTime:   n.Start.String(),
		EndTime:     n.End.String(),
		DurationSec: int64(n.Duration().Seconds()),
		Notes:       n.Notes,
		FiredAt:     n.FiredAt.UTC(),
	}

	msg := NewMessage(TypeEventStarted, payload)
	b.broadcast(msg)
}

// BroadcastScheduleChanged sends a schedule.changed message naming the
// property that changed.
func (b *EventBroadcaster) BroadcastScheduleChanged(scheduleID, property string) {
	payload := ScheduleChangedPayload{
		ScheduleID: scheduleID,
		Property:   property,
	}

	msg := NewMessage(TypeScheduleChanged, payload)
	b.broadcast(msg)
}

// BroadcastFeedSynced sends a feed.sync_completed message, or
// feed.sync_error when the sync failed.
func (b *EventBroadcaster) BroadcastFeedSynced(result *calendar.SyncResult, err error) {
	if err != nil {
		source := ""
		if result != nil {
			source = result.Source
		}
		b.BroadcastFeedSyncError(source, err)
		return
	}

	payload := FeedSyncPayload{
		Source:      result.Source,
		EventsFound: result.EventsFound,
		Created:     result.Created,
		Updated:     result.Updated,
		Removed:     result.Removed,
		SyncedAt:    result.SyncedAt,
	}

	msg := NewMessage(TypeFeedSynced, payload)
	b.broadcast(msg)
}

// BroadcastFeedSyncError sends a feed.sync_error message.
func (b *EventBroadcaster) BroadcastFeedSyncError(source string, err error) {
	payload := FeedSyncErrorPayload{
		Source:  source,
		Error:   "sync_error",
		Message: err.Error(),
	}

	msg := NewMessage(TypeFeedSyncError, payload)
	b.broadcast(msg)
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(data)
}
