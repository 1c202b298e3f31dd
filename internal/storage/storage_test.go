package storage

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage/models"
	"github.com/schedule-keeper/backend/internal/timeframe"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord() *models.ScheduleRecord {
	return &models.ScheduleRecord{
		ID:    "sched-1",
		Title: "Week",
		Notes: []models.NoteRecord{{Key: "owner", Value: "ops"}},
		Events: []models.EventRecord{
			{
				ID:          "ev-standup",
				Title:       "Standup",
				Description: "daily sync",
				Notes:       []models.NoteRecord{{Key: "room", Value: "3B"}},
				Plans: []models.PlanRecord{
					{ID: "p-mon", DayOfWeek: 1, StartTime: "09:00", EndTime: "09:15"},
					{ID: "p-tue", DayOfWeek: 2, StartTime: "09:00", EndTime: "09:15"},
				},
			},
			{
				ID:    "ev-review",
				Title: "Review",
				Plans: []models.PlanRecord{
					{ID: "p-fri", DayOfWeek: 5, StartTime: "16:00", EndTime: "17:30:30"},
				},
			},
		},
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	applied, err := AppliedMigrations(db)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(applied, []string{"001_initial.sql"}) {
		t.Fatalf("applied = %v", applied)
	}

	n, err := RunMigrations(db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second run applied %d migrations, want 0", n)
	}
	if got, want := db.Path(), filepath.Join(filepath.Dir(db.Path()), FileName); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestScheduleRepositorySaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(openTestDB(t))

	rec := sampleRecord()
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil")
	}
	if got.Title != "Week" || len(got.Notes) != 1 || got.Notes[0].Value != "ops" {
		t.Errorf("schedule = %+v", got)
	}
	if len(got.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(got.Events))
	}
	if got.Events[0].ID != "ev-standup" || got.Events[1].ID != "ev-review" {
		t.Errorf("event order = %s, %s", got.Events[0].ID, got.Events[1].ID)
	}
	if !slices.Equal(got.Events[0].Plans, rec.Events[0].Plans) {
		t.Errorf("plans = %+v, want %+v", got.Events[0].Plans, rec.Events[0].Plans)
	}
	if got.Events[1].Plans[0].EndTime != "17:30:30" {
		t.Errorf("end time = %q", got.Events[1].Plans[0].EndTime)
	}
	if got.PlanCount() != 3 {
		t.Errorf("PlanCount() = %d, want 3", got.PlanCount())
	}
}

func TestScheduleRepositorySaveReplacesChildren(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(openTestDB(t))

	rec := sampleRecord()
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Title = "Next week"
	rec.Notes = nil
	rec.Events = rec.Events[1:]
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Next week" || len(got.Notes) != 0 {
		t.Errorf("schedule = %+v", got)
	}
	if len(got.Events) != 1 || got.Events[0].ID != "ev-review" {
		t.Errorf("events = %+v", got.Events)
	}

	var orphans int
	if err := repo.DB().QueryRow(`SELECT COUNT(*) FROM plans WHERE event_id = 'ev-standup'`).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d plans left behind by removed event", orphans)
	}
}

func TestScheduleRepositoryMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(openTestDB(t))

	got, err := repo.GetByID(ctx, "nope")
	if err != nil || got != nil {
		t.Errorf("GetByID = %v, %v; want nil, nil", got, err)
	}
	got, err = repo.GetDefault(ctx)
	if err != nil || got != nil {
		t.Errorf("GetDefault = %v, %v; want nil, nil", got, err)
	}

	rec := sampleRecord()
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if got, err = repo.GetDefault(ctx); err != nil || got == nil || got.ID != rec.ID {
		t.Errorf("GetDefault = %v, %v", got, err)
	}

	if err := repo.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ = repo.GetByID(ctx, rec.ID); got != nil {
		t.Error("schedule still present after Delete")
	}
}

func TestSaveRejectsInvalidDay(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(openTestDB(t))

	rec := sampleRecord()
	rec.Events[0].Plans[0].DayOfWeek = 9
	if err := repo.Save(ctx, rec); err == nil {
		t.Fatal("Save accepted day 9")
	}
	if got, _ := repo.GetByID(ctx, rec.ID); got != nil {
		t.Error("failed Save left a partial schedule")
	}
}

func TestRestoreAndSnapshot(t *testing.T) {
	timers := schedule.NewTimers()
	s, err := Restore(*sampleRecord(), timers)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	t.Cleanup(s.Close)

	if s.ID() != "sched-1" || s.EventCount() != 2 || s.PlanCount() != 3 {
		t.Errorf("restored %s with %d events and %d plans", s.ID(), s.EventCount(), s.PlanCount())
	}
	if got := s.ActiveDays(); !slices.Equal(got, []time.Weekday{time.Monday, time.Tuesday, time.Friday}) {
		t.Errorf("ActiveDays() = %v", got)
	}
	if timers.Len() != 3 {
		t.Errorf("armed %d timers, want 3", timers.Len())
	}

	ev, ok := s.Event("ev-standup")
	if !ok {
		t.Fatal("event ev-standup missing")
	}
	if !ev.Armed("p-mon") {
		t.Error("plan p-mon not armed")
	}
	if ev.Notes().Len() != 1 {
		t.Errorf("event notes = %d, want 1", ev.Notes().Len())
	}

	snap := Snapshot(s)
	want := sampleRecord()
	if snap.Title != want.Title || len(snap.Events) != len(want.Events) {
		t.Fatalf("snapshot = %+v", snap)
	}
	for i := range want.Events {
		if !slices.Equal(snap.Events[i].Plans, want.Events[i].Plans) {
			t.Errorf("event %d plans = %+v, want %+v", i, snap.Events[i].Plans, want.Events[i].Plans)
		}
	}
}

func TestRestoreRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name string
		plan models.PlanRecord
		want error
	}{
		{"bad day", models.PlanRecord{DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00"}, timeframe.ErrInvalidDay},
		{"bad time", models.PlanRecord{DayOfWeek: 1, StartTime: "25:00", EndTime: "26:00"}, timeframe.ErrInvalidTime},
		{"reversed", models.PlanRecord{DayOfWeek: 1, StartTime: "10:00", EndTime: "09:00"}, timeframe.ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timers := schedule.NewTimers()
			rec := models.ScheduleRecord{
				Title:  "Week",
				Events: []models.EventRecord{{Title: "x", Plans: []models.PlanRecord{tt.plan}}},
			}
			_, err := Restore(rec, timers)
			if !errors.Is(err, tt.want) {
				t.Errorf("Restore error = %v, want %v", err, tt.want)
			}
			if timers.Len() != 0 {
				t.Errorf("%d timers armed by a failed restore", timers.Len())
			}
		})
	}
}

func TestPlanFromRecordGeneratesID(t *testing.T) {
	p, err := PlanFromRecord(models.PlanRecord{DayOfWeek: 0, StartTime: "08:00", EndTime: "08:30"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Error("empty ID")
	}
	if p.Day != time.Sunday || p.Start != timeframe.Of(8, 0, 0) {
		t.Errorf("plan = %v", p)
	}
}

func TestStoreLoadOrSeed(t *testing.T) {
	ctx := context.Background()
	st := NewStore(openTestDB(t))

	s, err := st.LoadOrSeed(ctx, sampleRecord(), "unused", schedule.NewTimers())
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if s.ID() != "sched-1" || s.EventCount() != 2 {
		t.Errorf("seeded %s with %d events", s.ID(), s.EventCount())
	}

	ev, _ := s.Event("ev-review")
	if !ev.RemovePlan("p-fri") {
		t.Fatal("RemovePlan failed")
	}
	if err := st.Persist(ctx, s); err != nil {
		t.Fatal(err)
	}
	s.Close()

	again, err := st.LoadOrSeed(ctx, nil, "unused", schedule.NewTimers())
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	t.Cleanup(again.Close)
	if again.PlanCount() != 2 {
		t.Errorf("PlanCount() = %d after reload, want 2", again.PlanCount())
	}
	if got := again.ActiveDays(); !slices.Equal(got, []time.Weekday{time.Monday, time.Tuesday}) {
		t.Errorf("ActiveDays() = %v", got)
	}
}

func TestStoreSeedsEmptySchedule(t *testing.T) {
	st := NewStore(openTestDB(t))
	s, err := st.LoadOrSeed(context.Background(), nil, "Fresh", schedule.NewTimers())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	if s.Title() != "Fresh" || s.EventCount() != 0 {
		t.Errorf("schedule %q with %d events", s.Title(), s.EventCount())
	}

	var nilStore *Store
	if err := nilStore.Persist(context.Background(), s); err != nil {
		t.Errorf("nil store Persist = %v", err)
	}
}
