// Package homeassistant forwards plan start notifications to the Home
// Assistant event bus.
package homeassistant

import (
	"os"
	"time"
)

const (
	DefaultBaseURL        = "http://supervisor/core"
	DefaultEventType      = "schedule_keeper_plan_started"
	DefaultBatchWindowSec = 2
	DefaultTimeout        = 30 * time.Second
)

// Config holds the configuration for Home Assistant API access.
type Config struct {
	// BaseURL is the Home Assistant API base URL
	BaseURL string `yaml:"url" json:"url"`

	// Token is the long-lived access token for API authentication
	Token string `yaml:"token,omitempty" json:"-"`

	// SupervisorToken is the Supervisor API token (for addon mode)
	SupervisorToken string `yaml:"-" json:"-"`

	// EventType is fired for every plan start.
	EventType string `yaml:"event_type" json:"event_type"`

	// BatchWindowSec delays delivery so plans starting together go out
	// in one pass.
	BatchWindowSec int `yaml:"batch_window_sec" json:"batch_window_sec"`

	// Timeout for API requests
	Timeout time.Duration `yaml:"-" json:"-"`
}

// DefaultConfig returns the default configuration, reading from environment variables.
func DefaultConfig() Config {
	c := Config{}
	c.ApplyEnv()
	c.Normalize()
	return c
}

// ApplyEnv overrides the URL and tokens from HA_URL, HA_TOKEN and
// SUPERVISOR_TOKEN when set.
func (c *Config) ApplyEnv() {
	c.BaseURL = getEnv("HA_URL", c.BaseURL)
	c.Token = getEnv("HA_TOKEN", c.Token)
	c.SupervisorToken = getEnv("SUPERVISOR_TOKEN", c.SupervisorToken)
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.EventType == "" {
		c.EventType = DefaultEventType
	}
	if c.BatchWindowSec <= 0 {
		c.BatchWindowSec = DefaultBatchWindowSec
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsAddonMode returns true if running as a Home Assistant addon.
func (c Config) IsAddonMode() bool {
	return c.SupervisorToken != ""
}

// AuthToken returns the appropriate authentication token.
func (c Config) AuthToken() string {
	if c.IsAddonMode() {
		return c.SupervisorToken
	}
	return c.Token
}

// Enabled reports whether a token is available to talk to Home Assistant.
func (c Config) Enabled() bool {
	return c.AuthToken() != ""
}

// BatchWindow is BatchWindowSec as a duration.
func (c Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowSec) * time.Second
}
