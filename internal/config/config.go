// Package config loads the monitor configuration from a flat JSON file.
// The schema matches the deployment's config.json so the same file drives
// both the job-manager daemon and the offline scenario player.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the monitor tuning parameters and store settings. Pointer
// fields distinguish "absent" from zero so Validate can insist on the
// required keys; the optional keys fall back through Get* accessors.
type Config struct {
	// Distance gates and RFID windows
	PickupCheckDistanceTrigger *float64 `json:"pickup_check_distance_trigger"` // metres
	PickupCheckDistanceWindow  *float64 `json:"pickup_check_distance_window"`  // metres
	PickupPostSeconds          *float64 `json:"pickup_post_seconds"`
	DropCheckDistance          *float64 `json:"drop_check_distance"` // metres
	DropPreSeconds             *float64 `json:"drop_pre_seconds"`
	RFIDWaitTimeout            *int     `json:"rfid_wait_timeout"` // seconds

	// Store settings
	ActivateQueries *bool   `json:"activate_queries"`
	DatabasePath    *string `json:"database_path"`

	// Daemon settings
	JobManagerPort *int    `json:"job_manager_port"`
	LogDir         *string `json:"log_dir,omitempty"`
	TickInterval   *string `json:"tick_interval,omitempty"` // duration string like "200ms"

	// NOE sink routing. The NOE location is where damaged or unplaceable
	// items are parked; the branch is gated because it depends on the floor
	// tooling raising cannot_place/damaged_item alerts.
	NOELocID          *int64 `json:"noe_loc_id,omitempty"`
	NOERoutingEnabled *bool  `json:"noe_routing_enabled,omitempty"`
}

// Load reads and validates a Config from a JSON file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required keys are present and sane. Missing or
// out-of-range keys abort startup with a single-line reason.
func (c *Config) Validate() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"pickup_check_distance_trigger", c.PickupCheckDistanceTrigger != nil},
		{"pickup_check_distance_window", c.PickupCheckDistanceWindow != nil},
		{"pickup_post_seconds", c.PickupPostSeconds != nil},
		{"drop_check_distance", c.DropCheckDistance != nil},
		{"drop_pre_seconds", c.DropPreSeconds != nil},
		{"rfid_wait_timeout", c.RFIDWaitTimeout != nil},
		{"activate_queries", c.ActivateQueries != nil},
		{"database_path", c.DatabasePath != nil},
		{"job_manager_port", c.JobManagerPort != nil},
	}
	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("missing required parameter: %s", r.name)
		}
	}

	if *c.PickupCheckDistanceTrigger <= 0 {
		return fmt.Errorf("pickup_check_distance_trigger must be positive, got %v", *c.PickupCheckDistanceTrigger)
	}
	if *c.PickupCheckDistanceWindow <= 0 {
		return fmt.Errorf("pickup_check_distance_window must be positive, got %v", *c.PickupCheckDistanceWindow)
	}
	if *c.DropCheckDistance <= 0 {
		return fmt.Errorf("drop_check_distance must be positive, got %v", *c.DropCheckDistance)
	}
	if *c.PickupPostSeconds < 0 || *c.DropPreSeconds < 0 {
		return fmt.Errorf("pickup_post_seconds and drop_pre_seconds must be non-negative")
	}
	if *c.RFIDWaitTimeout <= 0 {
		return fmt.Errorf("rfid_wait_timeout must be positive, got %d", *c.RFIDWaitTimeout)
	}
	if *c.JobManagerPort <= 0 || *c.JobManagerPort > 65535 {
		return fmt.Errorf("job_manager_port out of range: %d", *c.JobManagerPort)
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		if _, err := time.ParseDuration(*c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval %q: %w", *c.TickInterval, err)
		}
	}
	return nil
}

// GetPickupCheckDistanceTrigger returns the pickup distance gate in metres.
func (c *Config) GetPickupCheckDistanceTrigger() float64 { return *c.PickupCheckDistanceTrigger }

// GetPickupCheckDistanceWindow returns the radius of the pickup RFID
// back-window in metres.
func (c *Config) GetPickupCheckDistanceWindow() float64 { return *c.PickupCheckDistanceWindow }

// GetPickupPostSeconds returns the RFID tail after a pickup.
func (c *Config) GetPickupPostSeconds() float64 { return *c.PickupPostSeconds }

// GetDropCheckDistance returns the drop distance gate in metres.
func (c *Config) GetDropCheckDistance() float64 { return *c.DropCheckDistance }

// GetDropPreSeconds returns the RFID lead before a drop.
func (c *Config) GetDropPreSeconds() float64 { return *c.DropPreSeconds }

// GetRFIDWaitTimeout returns the bound on the RFID catch-up wait.
func (c *Config) GetRFIDWaitTimeout() time.Duration {
	return time.Duration(*c.RFIDWaitTimeout) * time.Second
}

// GetActivateQueries reports whether mutating writes are live. When false
// the store runs in dry-run mode: reads behave normally, writes log their
// intent and do nothing.
func (c *Config) GetActivateQueries() bool { return *c.ActivateQueries }

// GetDatabasePath returns the sqlite database path.
func (c *Config) GetDatabasePath() string { return *c.DatabasePath }

// GetJobManagerPort returns the admin endpoint port.
func (c *Config) GetJobManagerPort() int { return *c.JobManagerPort }

// GetLogDir returns the directory for worker and manager log files.
func (c *Config) GetLogDir() string {
	if c.LogDir == nil || *c.LogDir == "" {
		return "logs"
	}
	return *c.LogDir
}

// GetTickInterval returns the monitor tick period.
func (c *Config) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 200 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}

// GetNOELocID returns the "Not-OK elsewhere" sink location id.
func (c *Config) GetNOELocID() int64 {
	if c.NOELocID == nil {
		return 79
	}
	return *c.NOELocID
}

// GetNOERoutingEnabled reports whether out-of-task drops at the NOE sink may
// close tasks when a placement alert is active.
func (c *Config) GetNOERoutingEnabled() bool {
	if c.NOERoutingEnabled == nil {
		return false
	}
	return *c.NOERoutingEnabled
}
