package storage

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage/models"
)

// Store keeps the stored definition in step with the live schedule. Saves
// are serialized so the last snapshot taken is the last one written.
type Store struct {
	repo *ScheduleRepository
	mu   sync.Mutex
}

// NewStore creates a store over db.
func NewStore(db *DB) *Store {
	return &Store{repo: NewScheduleRepository(db)}
}

// Persist saves a snapshot of s. A nil store persists nothing.
func (st *Store) Persist(ctx context.Context, s *schedule.Schedule) error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	rec := Snapshot(s)
	if err := st.repo.Save(ctx, &rec); err != nil {
		return fmt.Errorf("persisting schedule %s: %w", rec.ID, err)
	}
	return nil
}

// LoadOrSeed restores the stored schedule. When nothing is stored it
// builds one from seed, or an empty schedule titled title when seed is nil,
// and stores it.
func (st *Store) LoadOrSeed(ctx context.Context, seed *models.ScheduleRecord, title string, timers *schedule.Timers) (*schedule.Schedule, error) {
	rec, err := st.repo.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s, err := Restore(*rec, timers)
		if err != nil {
			return nil, fmt.Errorf("restoring schedule %s: %w", rec.ID, err)
		}
		log.Printf("Loaded schedule %q with %d events and %d plans", s.Title(), s.EventCount(), s.PlanCount())
		return s, nil
	}

	start := models.ScheduleRecord{Title: title}
	if seed != nil {
		start = *seed
		if start.Title == "" {
			start.Title = title
		}
	}
	s, err := Restore(start, timers)
	if err != nil {
		return nil, fmt.Errorf("building seed schedule: %w", err)
	}
	if err := st.Persist(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("Created schedule %q with %d events", s.Title(), s.EventCount())
	return s, nil
}
