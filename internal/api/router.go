// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/schedule-keeper/backend/internal/api/handlers"
	"github.com/schedule-keeper/backend/internal/api/middleware"
	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/homeassistant"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/websocket"
)

// Services is what the handlers work with. Only Schedule is required: a
// nil DB and Store keep the schedule in memory, a nil Sync disables ICS
// import, nil Feeds disables feed sync and a nil Hub disables /api/ws.
// Forwarder is only reported in /api/status.
type Services struct {
	DB        *storage.DB
	Store     *storage.Store
	Schedule  *schedule.Schedule
	Hub       *websocket.Hub
	Sync      *calendar.SyncService
	Feeds     *calendar.Scheduler
	Evaluator *calendar.Evaluator
	Forwarder *homeassistant.Forwarder
}

// NewRouter creates and configures the HTTP router for an in-memory
// schedule without feed services.
func NewRouter(s *schedule.Schedule, hub *websocket.Hub, staticDir string) *mux.Router {
	return NewRouterWithServices(Services{Schedule: s, Hub: hub}, staticDir)
}

// NewRouterWithServices creates and configures the HTTP router with all API
// routes. Static files are served from staticDir when it is not empty.
func NewRouterWithServices(svc Services, staticDir string) *mux.Router {
	if svc.Evaluator == nil {
		svc.Evaluator = calendar.NewEvaluator()
	}
	s := svc.Schedule

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(svc.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s, svc.Hub, svc.Feeds, svc.Evaluator, svc.Forwarder)).Methods("GET")

	// WebSocket endpoint
	if svc.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(svc.Hub)).Methods("GET")
	}

	// Schedule endpoints
	api.HandleFunc("/schedule", handlers.GetSchedule(s)).Methods("GET")
	api.HandleFunc("/schedule", handlers.UpdateSchedule(s, svc.Store)).Methods("PUT")
	api.HandleFunc("/schedule/days/{day}/events", handlers.GetDayEvents(s)).Methods("GET")
	api.HandleFunc("/schedule/frames", handlers.GetFrames(s)).Methods("GET")
	api.HandleFunc("/schedule/upcoming", handlers.GetUpcoming(s)).Methods("GET")
	api.HandleFunc("/schedule/now", handlers.GetNow(s, svc.Evaluator)).Methods("GET")
	api.HandleFunc("/schedule/conflicts", handlers.GetConflicts(s)).Methods("GET")
	api.HandleFunc("/schedule.ics", handlers.ExportICS(s)).Methods("GET")
	api.HandleFunc("/schedule.ics", handlers.ImportICS(s, svc.Sync, svc.Store)).Methods("POST")

	// Event endpoints
	api.HandleFunc("/events", handlers.ListEvents(s)).Methods("GET")
	api.HandleFunc("/events", handlers.CreateEvent(s, svc.Store)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(s)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(s, svc.Store)).Methods("PUT")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(s, svc.Store)).Methods("DELETE")
	api.HandleFunc("/events/{id}/days/{day}/plans", handlers.GetEventDayPlans(s)).Methods("GET")
	api.HandleFunc("/events/{id}/plans", handlers.CreateEventPlan(s, svc.Store)).Methods("POST")
	api.HandleFunc("/events/{id}/plans/{planID}", handlers.DeleteEventPlan(s, svc.Store)).Methods("DELETE")
	api.HandleFunc("/events/{id}/plans/{planID}/fire", handlers.FireEventPlan(s)).Methods("POST")

	// Feed endpoints
	api.HandleFunc("/feeds", handlers.ListFeeds(svc.Feeds)).Methods("GET")
	api.HandleFunc("/feeds/sync", handlers.SyncFeeds(svc.Feeds)).Methods("POST")

	// Serve static frontend files
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	return r
}
