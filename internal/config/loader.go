package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/snapshot"
	"github.com/aristath/phasing/internal/source"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Only the fields present in a file override lower layers.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*PhasingConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.phasing/config.json
// Project: .phasing/config.json (relative to cwd)
// A config.yaml next to either takes its place when present.
func DefaultPaths() (global, project string, err error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return pick(filepath.Join(home, ".phasing")), pick(".phasing"), nil
}

func pick(dir string) string {
	yamlPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(dir, "config.json")
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*PhasingConfig, error) {
	global, project, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(global, project)
}

// mergeConfigFile decodes a JSON or YAML file over base.
// Missing files are silently skipped.
func mergeConfigFile(base *PhasingConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, base)
	} else {
		err = json.Unmarshal(data, base)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return expanded, nil
}

// Validate checks every section and reports the first problem found.
func (c *PhasingConfig) Validate() error {
	if c.Build.BatchSize <= 0 {
		return fmt.Errorf("build.batch_size must be positive, got %d", c.Build.BatchSize)
	}
	if c.Build.Concurrency <= 0 {
		return fmt.Errorf("build.concurrency must be positive, got %d", c.Build.Concurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if !slices.Contains(playback.Speeds, c.Playback.Speed) {
		return fmt.Errorf("playback.speed must be one of %v, got %d", playback.Speeds, c.Playback.Speed)
	}
	switch c.Snapshots.Backend {
	case snapshot.BackendMemory, snapshot.BackendSQLite:
	case snapshot.BackendDisk:
		if c.Snapshots.Path == "" {
			return fmt.Errorf("snapshots.path is required for the disk backend")
		}
	default:
		return fmt.Errorf("unknown snapshots.backend %q", c.Snapshots.Backend)
	}
	if c.Snapshots.DefaultName == "" {
		return fmt.Errorf("snapshots.default_name must not be empty")
	}
	for key, value := range c.StatusColors {
		if !knownStatus(key) {
			return fmt.Errorf("status_colors: unknown status %q", key)
		}
		if _, err := ParseRGB(value); err != nil {
			return fmt.Errorf("status_colors.%s: %w", key, err)
		}
	}
	return nil
}

// Location loads the configured time zone (UTC when empty).
func (c *PhasingConfig) Location() (*time.Location, error) {
	if c.Build.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Build.Timezone)
	if err != nil {
		return nil, fmt.Errorf("build.timezone: %w", err)
	}
	return loc, nil
}

// BuilderConfig converts the build section for schedule.NewBuilder.
func (c *PhasingConfig) BuilderConfig() (schedule.BuilderConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return schedule.BuilderConfig{}, err
	}
	return schedule.BuilderConfig{
		BatchSize:   c.Build.BatchSize,
		Concurrency: c.Build.Concurrency,
		Location:    loc,
	}, nil
}

// SourceRetry converts the retry section for source.NewResilient.
func (r RetryConfig) SourceRetry() source.RetryConfig {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return source.RetryConfig{
		InitialInterval:     ms(r.InitialIntervalMs),
		MaxInterval:         ms(r.MaxIntervalMs),
		MaxElapsedTime:      ms(r.MaxElapsedMs),
		Multiplier:          r.Multiplier,
		RandomizationFactor: 0.5,
		BreakerFailures:     r.BreakerFailures,
		BreakerTimeout:      ms(r.BreakerTimeoutMs),
	}
}

// StatusColor returns the RGB color for a status, falling back to the default.
func (c *PhasingConfig) StatusColor(status schedule.TaskStatus) RGB {
	if value, ok := c.StatusColors[status.String()]; ok {
		if rgb, err := ParseRGB(value); err == nil {
			return rgb
		}
	}
	rgb, _ := ParseRGB(DefaultStatusColors[status.String()])
	return rgb
}

func knownStatus(key string) bool {
	for _, s := range schedule.Statuses {
		if s.String() == key {
			return true
		}
	}
	return false
}

// RGB is a color with 8-bit channels.
type RGB struct {
	R, G, B uint8
}

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Vector returns the channels scaled to [0,1], the form 3D viewers expect.
func (c RGB) Vector() [3]float64 {
	return [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
}

// ParseRGB parses "r,g,b" with each channel in [0,255].
func ParseRGB(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("color %q: want r,g,b", s)
	}
	var channels [3]uint8
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return RGB{}, fmt.Errorf("color %q: channel %d out of range", s, i+1)
		}
		channels[i] = uint8(n)
	}
	return RGB{R: channels[0], G: channels[1], B: channels[2]}, nil
}
