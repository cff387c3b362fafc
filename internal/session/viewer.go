package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/schedule"
)

// Palette maps a status to its display color.
type Palette func(schedule.TaskStatus) config.RGB

// Theme is what a viewer applies for one status update.
type Theme struct {
	Colors  map[string]config.RGB // Element id -> color, visible elements only
	Hidden  []string              // Elements hidden at this reference
	Isolate []string              // Visible elements, sorted
	Clear   bool                  // Reset all theming
}

// NewTheme derives viewer theming from a status event. Elements of tasks that
// have not started are hidden while a reference is active.
func NewTheme(status events.StatusEvent, palette Palette) Theme {
	theme := Theme{Colors: map[string]config.RGB{}}
	if len(status.Elements) == 0 {
		theme.Clear = true
		return theme
	}

	for id, st := range status.Elements {
		if status.HasRef && st == schedule.NotYetStarted {
			theme.Hidden = append(theme.Hidden, id)
			continue
		}
		theme.Colors[id] = palette(st)
		theme.Isolate = append(theme.Isolate, id)
	}
	sort.Strings(theme.Hidden)
	sort.Strings(theme.Isolate)
	return theme
}

// WeekLabel names a snapshot after the ISO week containing t.
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("Week %d %d", week, year)
}
