package config

import (
	"github.com/aristath/phasing/internal/schedule"
)

// RetryConfig tunes retries and the circuit breaker around the property
// source. Durations are in milliseconds.
type RetryConfig struct {
	Disabled          bool    `json:"disabled,omitempty" yaml:"disabled,omitempty"`                       // Call the source directly
	InitialIntervalMs int     `json:"initial_interval_ms,omitempty" yaml:"initial_interval_ms,omitempty"` // First retry delay
	MaxIntervalMs     int     `json:"max_interval_ms,omitempty" yaml:"max_interval_ms,omitempty"`         // Retry delay ceiling
	MaxElapsedMs      int     `json:"max_elapsed_ms,omitempty" yaml:"max_elapsed_ms,omitempty"`           // Give up on a batch after this long
	Multiplier        float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	BreakerFailures   uint32  `json:"breaker_failures,omitempty" yaml:"breaker_failures,omitempty"`     // Consecutive failures that open the breaker
	BreakerTimeoutMs  int     `json:"breaker_timeout_ms,omitempty" yaml:"breaker_timeout_ms,omitempty"` // Open state duration
}

// BuildConfig controls task building.
type BuildConfig struct {
	BatchSize         int         `json:"batch_size" yaml:"batch_size"`                   // Element ids per property query
	Concurrency       int         `json:"concurrency" yaml:"concurrency"`                 // Batches in flight
	Timezone          string      `json:"timezone" yaml:"timezone"`                       // IANA zone for date-only values
	QuickDurationDays int         `json:"quick_duration_days" yaml:"quick_duration_days"` // Task length for single-date builds
	Retry             RetryConfig `json:"retry" yaml:"retry"`
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	Speed int `json:"speed" yaml:"speed"` // One of 1, 2, 3, 4, 8, 16
}

// SnapshotConfig selects the snapshot backend.
type SnapshotConfig struct {
	Backend     string `json:"backend" yaml:"backend"`               // "memory", "sqlite" or "disk"
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file or directory; "~" is expanded
	DefaultName string `json:"default_name" yaml:"default_name"`     // Name written after every fresh build
}

// DisplayConfig controls viewer theming.
type DisplayConfig struct {
	Colorize bool `json:"colorize" yaml:"colorize"`
}

// PhasingConfig is the top-level configuration.
type PhasingConfig struct {
	Mapping      schedule.FieldMapping `json:"mapping" yaml:"mapping"`
	Build        BuildConfig           `json:"build" yaml:"build"`
	Playback     PlaybackConfig        `json:"playback" yaml:"playback"`
	Snapshots    SnapshotConfig        `json:"snapshots" yaml:"snapshots"`
	Display      DisplayConfig         `json:"display" yaml:"display"`
	StatusColors map[string]string     `json:"status_colors" yaml:"status_colors"` // status key -> "r,g,b"
}
