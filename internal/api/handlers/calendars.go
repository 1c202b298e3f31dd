package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/schedule-keeper/backend/internal/api/middleware"
	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
)

// maxImportBytes bounds an uploaded ICS document.
const maxImportBytes = 1 << 20

type FeedResponse struct {
	URL        string     `json:"url"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`
}

type SyncTriggeredResponse struct {
	Triggered []string `json:"triggered"`
}

// ExportICS writes the schedule as an iCalendar document with one weekly
// recurring event per plan.
func ExportICS(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
		if err := calendar.WriteICS(w, s, time.Now()); err != nil {
			log.Printf("Failed to write ICS export: %v", err)
		}
	}
}

// ImportICS merges an uploaded iCalendar document into the schedule.
func ImportICS(s *schedule.Schedule, syncService *calendar.SyncService, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncService == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Import is not available")
			return
		}

		result, err := syncService.Import(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid calendar: "+err.Error())
			return
		}
		log.Printf("Imported calendar: %s", result)

		if !persist(w, r, store, s) {
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ListFeeds returns the scheduled feeds and their next sync.
func ListFeeds(feeds *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := []FeedResponse{}
		if feeds != nil {
			for _, url := range feeds.ScheduledFeeds() {
				response = append(response, FeedResponse{URL: url, NextSyncAt: feeds.NextRun(url)})
			}
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// SyncFeeds starts a background sync of every scheduled feed. Results are
// reported over the websocket.
func SyncFeeds(feeds *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feeds == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "No feeds are configured")
			return
		}

		urls := feeds.ScheduledFeeds()
		for _, url := range urls {
			feeds.TriggerSync(url)
		}
		writeJSON(w, http.StatusAccepted, SyncTriggeredResponse{Triggered: urls})
	}
}
