package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/schedule-keeper/backend/internal/storage/models"
)

// ScheduleRepository provides data access for schedule definitions.
type ScheduleRepository struct {
	BaseRepository
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Save writes the whole definition, replacing whatever was stored under its
// ID. A record without an ID gets one.
func (r *ScheduleRepository) Save(ctx context.Context, rec *models.ScheduleRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	now := r.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	return r.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (id, title, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, rec.ID, rec.Title, rec.Description, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("upserting schedule: %w", err)
		}

		// Children are rewritten wholesale; cascades drop notes and plans.
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE schedule_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("clearing events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_notes WHERE schedule_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("clearing schedule notes: %w", err)
		}

		if err := insertNotes(ctx, tx, "schedule_notes", "schedule_id", rec.ID, rec.Notes); err != nil {
			return err
		}
		for i, e := range rec.Events {
			if err := insertEvent(ctx, tx, rec.ID, i, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEvent(ctx context.Context, q Queryable, scheduleID string, position int, e models.EventRecord) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO events (id, schedule_id, position, title, description)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, scheduleID, position, e.Title, e.Description); err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}

	if err := insertNotes(ctx, q, "event_notes", "event_id", e.ID, e.Notes); err != nil {
		return err
	}

	for i, p := range e.Plans {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO plans (event_id, position, id, day_of_week, start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, i, p.ID, p.DayOfWeek, p.StartTime, p.EndTime); err != nil {
			return fmt.Errorf("inserting plan %s: %w", p.ID, err)
		}
	}
	return nil
}

// insertNotes writes notes into one of the two note tables. table and
// owner are constants chosen by the caller.
func insertNotes(ctx context.Context, q Queryable, table, owner, ownerID string, notes []models.NoteRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, position, key, value) VALUES (?, ?, ?, ?)`, table, owner)
	for i, n := range notes {
		if _, err := q.ExecContext(ctx, query, ownerID, i, n.Key, n.Value); err != nil {
			return fmt.Errorf("inserting note %q: %w", n.Key, err)
		}
	}
	return nil
}

// GetByID loads a definition. It returns nil when the schedule does not exist.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.ScheduleRecord, error) {
	rec := &models.ScheduleRecord{}
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, title, description, created_at, updated_at
		FROM schedules WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Title, &rec.Description, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying schedule: %w", err)
	}

	if err := r.loadChildren(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetDefault loads the oldest stored schedule, or nil when there is none.
func (r *ScheduleRepository) GetDefault(ctx context.Context) (*models.ScheduleRecord, error) {
	var id string
	err := r.DB().QueryRowContext(ctx, `
		SELECT id FROM schedules ORDER BY created_at, id LIMIT 1
	`).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying default schedule: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a schedule with its events, plans and notes.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.DB().ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) loadChildren(ctx context.Context, rec *models.ScheduleRecord) error {
	notes, err := queryNotes(ctx, r.DB(), `
		SELECT key, value FROM schedule_notes WHERE schedule_id = ? ORDER BY position
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying schedule notes: %w", err)
	}
	rec.Notes = notes

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, title, description FROM events
		WHERE schedule_id = ? ORDER BY position
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	rec.Events = []models.EventRecord{}
	for rows.Next() {
		var e models.EventRecord
		if err := rows.Scan(&e.ID, &e.Title, &e.Description); err != nil {
			return fmt.Errorf("scanning event: %w", err)
		}
		rec.Events = append(rec.Events, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range rec.Events {
		e := &rec.Events[i]
		if e.Notes, err = queryNotes(ctx, r.DB(), `
			SELECT key, value FROM event_notes WHERE event_id = ? ORDER BY position
		`, e.ID); err != nil {
			return fmt.Errorf("querying notes of event %s: %w", e.ID, err)
		}
		if e.Plans, err = r.queryPlans(ctx, e.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ScheduleRepository) queryPlans(ctx context.Context, eventID string) ([]models.PlanRecord, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time FROM plans
		WHERE event_id = ? ORDER BY position
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	plans := []models.PlanRecord{}
	for rows.Next() {
		var p models.PlanRecord
		if err := rows.Scan(&p.ID, &p.DayOfWeek, &p.StartTime, &p.EndTime); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func queryNotes(ctx context.Context, q Queryable, query, ownerID string) ([]models.NoteRecord, error) {
	rows, err := q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.NoteRecord
	for rows.Next() {
		var n models.NoteRecord
		if err := rows.Scan(&n.Key, &n.Value); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
