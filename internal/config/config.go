// Package config holds the server configuration file model and its
// YAML load/save behavior.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/homeassistant"
	"github.com/schedule-keeper/backend/internal/storage/models"
)

const (
	DefaultListen          = ":8099"
	DefaultDataDir         = "/data"
	DefaultStaticDir       = "./static"
	DefaultTitle           = "Weekly schedule"
	DefaultWSBuffer        = 256
	DefaultFeedIntervalMin = 60
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// StaticDir is served at / for the frontend.
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	// Title names the schedule created on first start when no seed is given.
	Title string `yaml:"title" json:"title"`

	// WSBuffer sizes the websocket broadcast and per-client queues.
	WSBuffer int `yaml:"ws_buffer" json:"ws_buffer"`

	// FeedIntervalMin is used for feeds without their own interval.
	FeedIntervalMin int `yaml:"feed_interval_min" json:"feed_interval_min"`

	// Feeds are ICS sources imported into the schedule periodically.
	Feeds []calendar.Feed `yaml:"feeds" json:"feeds"`

	// HomeAssistant receives plan start events when a token is available.
	HomeAssistant homeassistant.Config `yaml:"home_assistant" json:"home_assistant"`

	// Seed, if set, is stored as the schedule when the database has none.
	Seed *models.ScheduleRecord `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		DataDir:         DefaultDataDir,
		StaticDir:       DefaultStaticDir,
		Title:           DefaultTitle,
		WSBuffer:        DefaultWSBuffer,
		FeedIntervalMin: DefaultFeedIntervalMin,
		Feeds:           []calendar.Feed{},
		HomeAssistant: homeassistant.Config{
			BaseURL:        homeassistant.DefaultBaseURL,
			EventType:      homeassistant.DefaultEventType,
			BatchWindowSec: homeassistant.DefaultBatchWindowSec,
		},
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StaticDir == "" {
		c.StaticDir = DefaultStaticDir
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.WSBuffer <= 0 {
		c.WSBuffer = DefaultWSBuffer
	}
	if c.FeedIntervalMin <= 0 {
		c.FeedIntervalMin = DefaultFeedIntervalMin
	}
	if c.Feeds == nil {
		c.Feeds = []calendar.Feed{}
	}
	c.HomeAssistant.Normalize()
}

// ApplyEnv overrides the listen address and data directory from
// SK_LISTEN and SK_DATA_DIR, and the Home Assistant access from HA_URL,
// HA_TOKEN and SUPERVISOR_TOKEN, when set.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("SK_LISTEN", c.Listen)
	c.DataDir = getEnv("SK_DATA_DIR", c.DataDir)
	c.HomeAssistant.ApplyEnv()
}

// Validate reports feeds without a URL and seed plans that cannot be built.
func (c *Config) Validate() error {
	for i, f := range c.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feed %d: url is required", i)
		}
	}
	if c.Seed == nil {
		return nil
	}
	for _, e := range c.Seed.Events {
		if e.Title == "" {
			return errors.New("seed: event title is required")
		}
		for _, p := range e.Plans {
			if p.DayOfWeek < 0 || p.DayOfWeek > 6 {
				return fmt.Errorf("seed: event %q: day_of_week %d is outside 0..6", e.Title, p.DayOfWeek)
			}
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load loads configuration from the given YAML path.
//
// On first run the file does not exist: the default config is written with
// 0600 permissions and returned. Otherwise the file is read and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedule-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
