package schedule

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

// Timers runs the daily plan jobs of the events that share it. Each armed
// plan is one cron entry firing every day at the plan's start time.
type Timers struct {
	cron *cron.Cron
}

// NewTimers creates a stopped job runner using the local wall clock. Extra
// cron options are applied after the defaults.
func NewTimers(opts ...cron.Option) *Timers {
	base := []cron.Option{
		cron.WithSeconds(),
		cron.WithLocation(time.Local),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))),
	}
	return &Timers{cron: cron.New(append(base, opts...)...)}
}

// Start begins firing jobs.
func (t *Timers) Start() {
	log.Println("Starting plan timers...")
	t.cron.Start()
	log.Printf("Plan timers started with %d jobs", t.Len())
}

// Stop halts firing and waits for running jobs to return.
func (t *Timers) Stop() {
	log.Println("Stopping plan timers...")
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("Plan timers stopped")
}

// Len returns the number of armed jobs.
func (t *Timers) Len() int {
	return len(t.cron.Entries())
}

// NextRun returns the next firing of a job, or nil when the runner is
// stopped or the job is unknown.
func (t *Timers) NextRun(id cron.EntryID) *time.Time {
	entry := t.cron.Entry(id)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// Run fires a job immediately on the calling goroutine. It reports false
// for an unknown job.
func (t *Timers) Run(id cron.EntryID) bool {
	entry := t.cron.Entry(id)
	if !entry.Valid() || entry.WrappedJob == nil {
		return false
	}
	entry.WrappedJob.Run()
	return true
}

func (t *Timers) arm(start timeframe.TimeOfDay, fn func()) (cron.EntryID, error) {
	id, err := t.cron.AddFunc(DailySpec(start), fn)
	if err != nil {
		return 0, fmt.Errorf("arming daily job at %s: %w", start, err)
	}
	return id, nil
}

func (t *Timers) disarm(id cron.EntryID) {
	t.cron.Remove(id)
}

// DailySpec returns the seconds-resolution cron spec firing every day at start.
func DailySpec(start timeframe.TimeOfDay) string {
	h, m, s := start.Clock()
	return fmt.Sprintf("%d %d %d * * *", s, m, h)
}

// NextDelay returns the wait from now until the next occurrence of start,
// normalised into [0, 24h).
func NextDelay(now time.Time, start timeframe.TimeOfDay) time.Duration {
	d := start.Sub(timeframe.FromTime(now)) % timeframe.Day
	if d < 0 {
		d += timeframe.Day
	}
	return d
}
