package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.WSBuffer != DefaultWSBuffer {
		t.Errorf("cfg = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestLoadParsesFeedsAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: ":9000"
ws_buffer: 0
feeds:
  - url: http://example.com/team.ics
    interval_min: 15
seed:
  title: Team week
  events:
    - title: Standup
      notes:
        - key: room
          value: 3B
      plans:
        - day_of_week: 1
          start_time: "09:00"
          end_time: "09:15"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.WSBuffer != DefaultWSBuffer {
		t.Errorf("WSBuffer = %d, want default", cfg.WSBuffer)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].IntervalMin != 15 {
		t.Errorf("Feeds = %+v", cfg.Feeds)
	}
	if cfg.Seed == nil || len(cfg.Seed.Events) != 1 {
		t.Fatalf("Seed = %+v", cfg.Seed)
	}
	ev := cfg.Seed.Events[0]
	if ev.Notes[0].Value != "3B" || ev.Plans[0].StartTime != "09:00" || ev.Plans[0].DayOfWeek != 1 {
		t.Errorf("seed event = %+v", ev)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"feed without url", "feeds:\n  - interval_min: 5\n", "url is required"},
		{"seed day", "seed:\n  events:\n    - title: x\n      plans:\n        - day_of_week: 7\n", "outside 0..6"},
		{"bad yaml", "listen: [", "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Title = "Studio"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Studio" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SK_LISTEN", ":7000")
	t.Setenv("SK_DATA_DIR", "")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want unchanged", cfg.DataDir)
	}
}

func TestLoadHomeAssistant(t *testing.T) {
	t.Setenv("HA_URL", "")
	t.Setenv("HA_TOKEN", "")
	t.Setenv("SUPERVISOR_TOKEN", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
home_assistant:
  url: http://ha.local:8123
  token: secret
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ApplyEnv()

	ha := cfg.HomeAssistant
	if !ha.Enabled() || ha.BaseURL != "http://ha.local:8123" {
		t.Errorf("home_assistant = %+v", ha)
	}
	if ha.EventType == "" || ha.BatchWindowSec <= 0 {
		t.Errorf("defaults not applied: %+v", ha)
	}

	if DefaultConfig().HomeAssistant.Enabled() {
		t.Error("default config enabled without a token")
	}
}
