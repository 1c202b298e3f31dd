package schedule

import (
	"testing"
	"time"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

func TestDailySpec(t *testing.T) {
	tests := []struct {
		start timeframe.TimeOfDay
		want  string
	}{
		{timeframe.Midnight, "0 0 0 * * *"},
		{timeframe.Of(9, 30, 0), "0 30 9 * * *"},
		{timeframe.Of(23, 59, 15), "15 59 23 * * *"},
	}
	for _, tt := range tests {
		if got := DailySpec(tt.start); got != tt.want {
			t.Errorf("DailySpec(%s) = %q, want %q", tt.start, got, tt.want)
		}
	}
}

func TestNextDelay(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		start timeframe.TimeOfDay
		want  time.Duration
	}{
		{"later today", timeframe.Of(10, 30, 0), 30 * time.Minute},
		{"right now", timeframe.Of(10, 0, 0), 0},
		{"already passed", timeframe.Of(9, 0, 0), 23 * time.Hour},
		{"midnight", timeframe.Midnight, 14 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextDelay(now, tt.start); got != tt.want {
				t.Errorf("NextDelay() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTimersArmAndRun(t *testing.T) {
	timers := NewTimers()
	ran := 0
	id, err := timers.arm(timeframe.Of(7, 0, 0), func() { ran++ })
	if err != nil {
		t.Fatal(err)
	}
	if timers.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", timers.Len())
	}
	if timers.NextRun(id) != nil {
		t.Error("stopped runner reported a next run")
	}
	if !timers.Run(id) || ran != 1 {
		t.Errorf("Run did not execute the job, ran=%d", ran)
	}

	timers.disarm(id)
	timers.disarm(id)
	if timers.Len() != 0 || timers.Run(id) {
		t.Error("disarmed job still registered")
	}
}

func TestTimersRecoverPanickingJob(t *testing.T) {
	timers := NewTimers()
	id, err := timers.arm(timeframe.Of(7, 0, 0), func() { panic("boom") })
	if err != nil {
		t.Fatal(err)
	}
	if !timers.Run(id) {
		t.Error("Run reported no job")
	}
}
