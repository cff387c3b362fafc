package config

import (
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/snapshot"
)

// DefaultStatusColors are the viewer colors per status.
var DefaultStatusColors = map[string]string{
	schedule.Finished.String():      "31,246,14",
	schedule.InProgress.String():    "235,246,14",
	schedule.Late.String():          "246,55,14",
	schedule.NotYetStarted.String(): "200,200,200",
	schedule.Advanced.String():      "14,28,246",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *PhasingConfig {
	colors := make(map[string]string, len(DefaultStatusColors))
	for k, v := range DefaultStatusColors {
		colors[k] = v
	}

	return &PhasingConfig{
		Build: BuildConfig{
			BatchSize:         schedule.DefaultBatchSize,
			Concurrency:       4,
			Timezone:          "UTC",
			QuickDurationDays: 1,
			Retry: RetryConfig{
				InitialIntervalMs: 100,
				MaxIntervalMs:     2000,
				MaxElapsedMs:      10000,
				Multiplier:        2.0,
				BreakerFailures:   5,
				BreakerTimeoutMs:  30000,
			},
		},
		Playback: PlaybackConfig{Speed: 1},
		Snapshots: SnapshotConfig{
			Backend:     snapshot.BackendMemory,
			DefaultName: "Current period",
		},
		Display:      DisplayConfig{Colorize: true},
		StatusColors: colors,
	}
}
