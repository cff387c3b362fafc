package session

import (
	"testing"
	"time"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/schedule"
)

func TestNewTheme(t *testing.T) {
	palette := config.DefaultConfig().StatusColor

	status := events.StatusEvent{
		HasRef: true,
		Elements: map[string]schedule.TaskStatus{
			"e1": schedule.Finished,
			"e2": schedule.NotYetStarted,
			"e3": schedule.Late,
		},
	}
	theme := NewTheme(status, palette)

	if theme.Clear {
		t.Fatal("theme should not clear")
	}
	if len(theme.Hidden) != 1 || theme.Hidden[0] != "e2" {
		t.Errorf("hidden = %v", theme.Hidden)
	}
	if len(theme.Isolate) != 2 || theme.Isolate[0] != "e1" || theme.Isolate[1] != "e3" {
		t.Errorf("isolate = %v", theme.Isolate)
	}
	if theme.Colors["e1"] != (config.RGB{R: 31, G: 246, B: 14}) {
		t.Errorf("finished color = %+v", theme.Colors["e1"])
	}
	if _, ok := theme.Colors["e2"]; ok {
		t.Error("hidden element was colored")
	}
}

func TestNewThemeClears(t *testing.T) {
	theme := NewTheme(events.StatusEvent{HasRef: true, Elements: map[string]schedule.TaskStatus{}}, config.DefaultConfig().StatusColor)
	if !theme.Clear || len(theme.Colors) != 0 {
		t.Errorf("theme = %+v", theme)
	}
}

func TestWeekLabel(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "Week 1 2024"},
		{time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), "Week 24 2024"},
		{time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), "Week 53 2020"},
	}
	for _, tt := range tests {
		if got := WeekLabel(tt.at); got != tt.want {
			t.Errorf("WeekLabel(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
