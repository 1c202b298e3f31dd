package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/schedule-keeper/backend/internal/api/middleware"
	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Schedule request/response types

type ScheduleResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Notes       []schedule.Note `json:"notes"`
	EventCount  int             `json:"event_count"`
	PlanCount   int             `json:"plan_count"`
	ActiveDays  []int           `json:"active_days"`
	ArmedTimers int             `json:"armed_timers"`
}

type UpdateScheduleRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Notes       *[]schedule.Note `json:"notes"`
}

type FramesResponse struct {
	Mode   string             `json:"mode"`
	Step   string             `json:"step,omitempty"`
	Frames []timeframe.Window `json:"frames"`
}

type NowResponse struct {
	At     time.Time            `json:"at"`
	Active []calendar.Active    `json:"active"`
	Next   *calendar.Occurrence `json:"next,omitempty"`
}

func newScheduleResponse(s *schedule.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:          s.ID(),
		Title:       s.Title(),
		Description: s.Description(),
		Notes:       nonNilNotes(s.Notes().Items()),
		EventCount:  s.EventCount(),
		PlanCount:   s.PlanCount(),
		ActiveDays:  dayNumbers(s.ActiveDays()),
		ArmedTimers: s.Timers().Len(),
	}
}

// GetSchedule returns the schedule summary.
func GetSchedule(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newScheduleResponse(s))
	}
}

// UpdateSchedule changes the schedule's title, description or notes.
func UpdateSchedule(s *schedule.Schedule, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Title != nil && *req.Title == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Title cannot be empty")
			return
		}

		if req.Title != nil {
			s.SetTitle(*req.Title)
		}
		if req.Description != nil {
			s.SetDescription(*req.Description)
		}
		if req.Notes != nil {
			s.Notes().Reset(*req.Notes...)
		}

		if !persist(w, r, store, s) {
			return
		}
		writeJSON(w, http.StatusOK, newScheduleResponse(s))
	}
}

// GetDayEvents returns the events with at least one plan on the day.
func GetDayEvents(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := parseDay(w, r)
		if !ok {
			return
		}

		events, err := s.EventsOn(day)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		response := make([]EventResponse, 0, len(events))
		for _, e := range events {
			response = append(response, newEventResponse(e))
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// GetFrames partitions the plan windows. Without a step the compact
// partition is returned. step accepts a duration ("30m") or minutes ("30").
func GetFrames(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var step time.Duration
		if raw := r.URL.Query().Get("step"); raw != "" {
			var err error
			if step, err = parseStep(raw); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid step: "+raw)
				return
			}
		}

		frames, err := s.TimeFrames(step)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}

		response := FramesResponse{Mode: "compact", Frames: frames}
		if step > 0 {
			response.Mode = "stepped"
			response.Step = step.String()
		}
		if response.Frames == nil {
			response.Frames = []timeframe.Window{}
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func parseStep(raw string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(raw); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return time.ParseDuration(raw)
}

// GetUpcoming lists dated occurrences over the next days (default 7, at
// most 31).
func GetUpcoming(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 31 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "days must be between 1 and 31")
				return
			}
			days = n
		}

		occurrences, err := calendar.Upcoming(s, time.Now(), days)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		if occurrences == nil {
			occurrences = []calendar.Occurrence{}
		}
		writeJSON(w, http.StatusOK, occurrences)
	}
}

// GetNow reports the plans in progress and the next start. An optional
// RFC 3339 "at" query replaces the current time.
func GetNow(s *schedule.Schedule, evaluator *calendar.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at := time.Now()
		if raw := r.URL.Query().Get("at"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "at must be an RFC 3339 time")
				return
			}
			at = t
		}

		active := evaluator.ActiveAt(s, at)
		if active == nil {
			active = []calendar.Active{}
		}
		writeJSON(w, http.StatusOK, NowResponse{
			At:     at,
			Active: active,
			Next:   evaluator.NextStart(s, at),
		})
	}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// persist saves the schedule after a mutation. On failure it writes the
// error response and returns false.
func persist(w http.ResponseWriter, r *http.Request, store *storage.Store, s *schedule.Schedule) bool {
	if err := store.Persist(r.Context(), s); err != nil {
		log.Printf("Failed to save schedule: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Schedule changed but could not be saved")
		return false
	}
	return true
}

// parseDay reads the {day} path variable. A non-numeric day is a bad
// request; range checking is left to the schedule.
func parseDay(w http.ResponseWriter, r *http.Request) (time.Weekday, bool) {
	raw := mux.Vars(r)["day"]
	n, err := strconv.Atoi(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Day must be a number from 0 (Sunday) to 6 (Saturday)")
		return 0, false
	}
	return time.Weekday(n), true
}

func dayNumbers(days []time.Weekday) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func nonNilNotes(notes []schedule.Note) []schedule.Note {
	if notes == nil {
		return []schedule.Note{}
	}
	return notes
}

// GetConflicts lists plans of different events that overlap on a day.
func GetConflicts(s *schedule.Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conflicts := calendar.FindConflicts(s)
		if conflicts == nil {
			conflicts = []calendar.Conflict{}
		}
		writeJSON(w, http.StatusOK, conflicts)
	}
}
