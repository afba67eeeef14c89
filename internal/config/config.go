package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"planline/internal/interval"
)

// Fixed scheduling defaults. The working window is a single contiguous block
// shared by every owner; per-owner business hours are deliberately not modeled.
const (
	DefaultWindowStart      = "09:00"
	DefaultWindowEnd        = "18:00"
	DefaultMinPlaceMinutes  = 30
	DefaultMaxCascadeDepth  = 7
	DefaultWriteRetries     = 3
	DefaultConfigFileName   = "planline.yml"
	DefaultWorkspaceDirName = ".planline"
)

// Config models planline.yml.
type Config struct {
	Scheduling struct {
		WindowStart     string `yaml:"window_start"`
		WindowEnd       string `yaml:"window_end"`
		MinPlaceMinutes int    `yaml:"min_place_minutes"`
		MaxCascadeDepth int    `yaml:"max_cascade_depth"`
		WriteRetries    int    `yaml:"write_retries"`
	} `yaml:"scheduling"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one event delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.Scheduling.WindowStart = DefaultWindowStart
	c.Scheduling.WindowEnd = DefaultWindowEnd
	c.Scheduling.MinPlaceMinutes = DefaultMinPlaceMinutes
	c.Scheduling.MaxCascadeDepth = DefaultMaxCascadeDepth
	c.Scheduling.WriteRetries = DefaultWriteRetries
	return &c
}

// Path returns the config file location inside a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, DefaultConfigFileName)
}

// Load reads the workspace config, falling back to defaults when the file does
// not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config bytes. Unset scheduling fields take the
// defaults.
func FromYAML(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Window returns the working window as a minute interval.
func (c *Config) Window() (interval.Interval, error) {
	start, err := interval.ParseClock(c.Scheduling.WindowStart)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("scheduling.window_start: %w", err)
	}
	end, err := interval.ParseClock(c.Scheduling.WindowEnd)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("scheduling.window_end: %w", err)
	}
	return interval.New(start, end)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Scheduling.MinPlaceMinutes <= 0 {
		return fmt.Errorf("scheduling.min_place_minutes must be positive")
	}
	win, _ := c.Window()
	if c.Scheduling.MinPlaceMinutes > win.Duration() {
		return fmt.Errorf("scheduling.min_place_minutes exceeds working window")
	}
	if c.Scheduling.MaxCascadeDepth <= 0 {
		return fmt.Errorf("scheduling.max_cascade_depth must be positive")
	}
	if c.Scheduling.WriteRetries <= 0 {
		return fmt.Errorf("scheduling.write_retries must be positive")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// ToYAML serializes the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
