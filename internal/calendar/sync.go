package calendar

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

// SourceNote is the note key recording which feed an event was imported from.
const SourceNote = "source"

// SyncResult summarises one import into the schedule.
type SyncResult struct {
	Source      string    `json:"source"`
	EventsFound int       `json:"events_found"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Removed     int       `json:"removed"`
	SyncedAt    time.Time `json:"synced_at"`
	Error       error     `json:"-"`
}

// SyncService imports calendar definitions into a schedule.
type SyncService struct {
	schedule *schedule.Schedule
	parser   *Parser
}

// NewSyncService creates a sync service writing into s.
func NewSyncService(s *schedule.Schedule) *SyncService {
	return &SyncService{
		schedule: s,
		parser:   NewParser(),
	}
}

// SyncFeed fetches a feed and applies it. Events previously imported from
// the same URL and missing from the feed are removed.
func (s *SyncService) SyncFeed(ctx context.Context, url string) (*SyncResult, error) {
	result := &SyncResult{Source: url, SyncedAt: time.Now().UTC()}

	defs, err := s.parser.FetchAndParse(ctx, url)
	if err != nil {
		result.Error = err
		return result, err
	}

	s.apply(url, defs, result)
	return result, nil
}

// Import reads an ICS document and applies it without removing anything.
func (s *SyncService) Import(r io.Reader) (*SyncResult, error) {
	result := &SyncResult{SyncedAt: time.Now().UTC()}

	defs, err := s.parser.Parse(r)
	if err != nil {
		result.Error = err
		return result, err
	}

	s.apply("", defs, result)
	return result, nil
}

// Apply merges defs into the schedule. Events are matched by ID.
func (s *SyncService) Apply(source string, defs []Definition) *SyncResult {
	result := &SyncResult{Source: source, SyncedAt: time.Now().UTC()}
	s.apply(source, defs, result)
	return result
}

func (s *SyncService) apply(source string, defs []Definition, result *SyncResult) {
	result.EventsFound = len(defs)

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		seen[def.UID] = true
		created, updated, err := s.processDefinition(source, def)
		if err != nil {
			log.Printf("Error importing event %s: %v", def.UID, err)
			continue
		}
		if created {
			result.Created++
		} else if updated {
			result.Updated++
		}
	}

	if source != "" {
		result.Removed = s.removeMissing(source, seen)
	}
}

// processDefinition creates the event or brings an existing one in line
// with the definition.
func (s *SyncService) processDefinition(source string, def Definition) (created, updated bool, err error) {
	notes := slices.Clone(def.Notes)
	if source != "" {
		notes = append(notes, schedule.Note{Key: SourceNote, Value: source})
	}

	existing, ok := s.schedule.Event(def.UID)
	if !ok {
		e := schedule.NewEvent(def.Title,
			schedule.WithID(def.UID),
			schedule.WithDescription(def.Description),
			schedule.WithTimers(s.schedule.Timers()),
		)
		e.Notes().Reset(notes...)
		e.Plans().Reset(def.Plans...)
		s.schedule.Events().Append(e)
		return true, false, nil
	}

	if existing.Title() != def.Title {
		existing.SetTitle(def.Title)
		updated = true
	}
	if existing.Description() != def.Description {
		existing.SetDescription(def.Description)
		updated = true
	}
	if !slices.Equal(existing.Notes().Items(), notes) {
		existing.Notes().Reset(notes...)
		updated = true
	}
	if !sameSlots(existing.Plans().Items(), def.Plans) {
		existing.Plans().Reset(def.Plans...)
		updated = true
	}
	return false, updated, nil
}

// removeMissing removes events imported from source that are not in seen.
func (s *SyncService) removeMissing(source string, seen map[string]bool) int {
	removed := 0
	for _, e := range s.schedule.Events().Items() {
		if seen[e.ID()] || noteValue(e.Notes().Items(), SourceNote) != source {
			continue
		}
		if s.schedule.RemoveEvent(e.ID()) {
			removed++
		}
	}
	return removed
}

func noteValue(notes []schedule.Note, key string) string {
	for _, n := range notes {
		if n.Key == key {
			return n.Value
		}
	}
	return ""
}

// sameSlots reports whether both lists hold the same day/time slots in order.
func sameSlots(a, b []timeframe.DayPlan) bool {
	return slices.EqualFunc(a, b, timeframe.DayPlan.SameSlot)
}

// String describes the result for logs.
func (r *SyncResult) String() string {
	return fmt.Sprintf("%d events, %d created, %d updated, %d removed",
		r.EventsFound, r.Created, r.Updated, r.Removed)
}
