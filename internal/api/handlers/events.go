package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/schedule-keeper/backend/internal/api/middleware"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/storage/models"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Event request/response types

type CreateEventRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Notes       []schedule.Note     `json:"notes"`
	Plans       []models.PlanRecord `json:"plans"`
}

type UpdateEventRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Notes       *[]schedule.Note `json:"notes"`
}

type PlanResponse struct {
	ID        string     `json:"id"`
	DayOfWeek int        `json:"day_of_week"`
	Day       string     `json:"day"`
	StartTime string     `json:"start_time"`
	EndTime   string     `json:"end_time"`
	Armed     bool       `json:"armed"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type EventResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Notes       []schedule.Note `json:"notes"`
	Plans       []PlanResponse  `json:"plans"`
	ActiveDays  []int           `json:"active_days"`
	PlanCount   int             `json:"plan_count"`
}

func newPlanResponse(e *schedule.Event, p timeframe.DayPlan) PlanResponse {
	return PlanResponse{
		ID:        p.ID,
		DayOfWeek: int(p.Day),
		Day:       p.Day.String(),
		StartTime: p.Start.String(),
		EndTime:   p.End.String(),
		Armed:     e.Armed(p.ID),
		NextRun:   e.NextRun(p.ID),
	}
}

func newPlanResponses(e *schedule.Event, plans []timeframe.DayPlan) []PlanResponse {
	out := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, newPlanResponse(e, p))
	}
	return out
}

func newEventResponse(e *schedule.Event) EventResponse {
	return EventResponse{
		ID:          e.ID(),
		Title:       e.Title(),
		Description: e.Description(),
		Notes:       nonNilNotes(e.Notes().Items()),
		Plans:       newPlanResponses(e, e.Plans().Items()),
		ActiveDays:  dayNumbers(e.ActiveDays()),
		PlanCount:   e.PlanCount(),
	}
}

// lookupEvent resolves the {id} path variable, writing a 404 when absent.
func lookupEvent(w http.ResponseWriter, r *http.Request, s *schedule.Schedule) (*schedule.Event, bool) {
	e, ok := s.Event(mux.Vars(r)["id"])
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
		return nil, false
	}
	return e, true
}

// ListEvents returns every event in schedule order.
func ListEvents(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := s.Events().Items()
		response := make([]EventResponse, 0, len(events))
		for _, e := range events {
			response = append(response, newEventResponse(e))
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// CreateEvent adds an event with its plans. Every plan is validated before
// anything is added.
func CreateEvent(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Title == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Title is required")
			return
		}

		plans := make([]timeframe.DayPlan, 0, len(req.Plans))
		for _, pr := range req.Plans {
			pr.ID = ""
			p, err := storage.PlanFromRecord(pr)
			if err != nil {
				middleware.WriteDomainError(w, err)
				return
			}
			plans = append(plans, p)
		}

		e := s.AddEvent(req.Title, schedule.WithDescription(req.Description))
		if len(req.Notes) > 0 {
			e.Notes().Reset(req.Notes...)
		}
		e.Plans().Append(plans...)

		if !persist(w, r, store, s) {
			return
		}
		writeJSON(w, http.StatusCreated, newEventResponse(e))
	}
}

// GetEvent returns a single event.
func GetEvent(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(e))
	}
}

// UpdateEvent changes an event's title, description or notes.
func UpdateEvent(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}

		var req UpdateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Title != nil && *req.Title == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Title cannot be empty")
			return
		}

		if req.Title != nil {
			e.SetTitle(*req.Title)
		}
		if req.Description != nil {
			e.SetDescription(*req.Description)
		}
		if req.Notes != nil {
			e.Notes().Reset(*req.Notes...)
		}

		if !persist(w, r, store, s) {
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(e))
	}
}

// DeleteEvent removes an event and cancels its timers.
func DeleteEvent(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.RemoveEvent(mux.Vars(r)["id"]) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}
		if !persist(w, r, store, s) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetEventDayPlans returns an event's plans on one day.
func GetEventDayPlans(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}
		day, ok := parseDay(w, r)
		if !ok {
			return
		}

		plans, err := e.PlansOn(day)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPlanResponses(e, plans))
	}
}

// CreateEventPlan adds a plan to an event and arms its timer.
func CreateEventPlan(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}

		var req models.PlanRecord
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.ID = ""
		p, err := storage.PlanFromRecord(req)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		e.Plans().Append(p)

		if !persist(w, r, store, s) {
			return
		}
		writeJSON(w, http.StatusCreated, newPlanResponse(e, p))
	}
}

// DeleteEventPlan removes a plan and cancels its timer.
func DeleteEventPlan(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}
		if !e.RemovePlan(mux.Vars(r)["planID"]) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Plan not found")
			return
		}
		if !persist(w, r, store, s) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// FireEventPlan publishes the plan's notification now, as if its timer had
// fired.
func FireEventPlan(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookupEvent(w, r, s)
		if !ok {
			return
		}
		if !e.Fire(mux.Vars(r)["planID"]) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Plan not found")
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
