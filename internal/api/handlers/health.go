// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/homeassistant"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check. Without a
// database the schedule lives in memory only and is reported healthy.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{Status: "healthy", Storage: "memory"}

		if db != nil {
			response.Storage = "sqlite"
			response.DBConnected = db.PingContext(r.Context()) == nil
			if !response.DBConnected {
				response.Status = "degraded"
			}
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	ScheduleID  string     `json:"schedule_id"`
	EventCount  int        `json:"event_count"`
	PlanCount   int        `json:"plan_count"`
	ArmedTimers int        `json:"armed_timers"`
	WSClients   int        `json:"ws_clients"`
	FeedsCount  int        `json:"feeds_count"`
	NextSyncAt  *time.Time `json:"next_sync_at,omitempty"`
	NextStartAt *time.Time `json:"next_start_at,omitempty"`

	HomeAssistant *ForwarderStatus `json:"home_assistant,omitempty"`
}

// ForwarderStatus counts plan start events sent to Home Assistant.
type ForwarderStatus struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Status returns a handler that provides system status information.
func Status(s *schedule.Schedule, hub *websocket.Hub, feeds *calendar.Scheduler, evaluator *calendar.Evaluator, forwarder *homeassistant.Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			ScheduleID:  s.ID(),
			EventCount:  s.EventCount(),
			PlanCount:   s.PlanCount(),
			ArmedTimers: s.Timers().Len(),
		}
		if hub != nil {
			response.WSClients = hub.ClientCount()
		}

		if feeds != nil {
			urls := feeds.ScheduledFeeds()
			response.FeedsCount = len(urls)
			for _, url := range urls {
				next := feeds.NextRun(url)
				if next != nil && (response.NextSyncAt == nil || next.Before(*response.NextSyncAt)) {
					response.NextSyncAt = next
				}
			}
		}

		if forwarder != nil {
			response.HomeAssistant = &ForwarderStatus{
				Sent:   forwarder.Sent(),
				Failed: forwarder.Failed(),
			}
		}

		if next := evaluator.NextStart(s, time.Now()); next != nil {
			response.NextStartAt = &next.Start
		}

		writeJSON(w, http.StatusOK, response)
	}
}
