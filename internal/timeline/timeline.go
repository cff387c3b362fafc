package timeline

import (
	"time"

	"github.com/aristath/phasing/internal/schedule"
)

// Bounds is a closed calendar interval.
type Bounds struct {
	Min time.Time
	Max time.Time
}

// BoundsOf returns the smallest interval covering every task start and end.
// ok is false when tasks is empty.
func BoundsOf(tasks []*schedule.Task) (Bounds, bool) {
	if len(tasks) == 0 {
		return Bounds{}, false
	}

	b := Bounds{Min: tasks[0].Start, Max: tasks[0].Start}
	for _, task := range tasks {
		for _, t := range []time.Time{task.Start, task.End} {
			if t.Before(b.Min) {
				b.Min = t
			}
			if t.After(b.Max) {
				b.Max = t
			}
		}
	}
	return b, true
}

// Span returns Max - Min.
func (b Bounds) Span() time.Duration {
	return b.Max.Sub(b.Min)
}

// Degenerate reports whether the interval has no positive length.
func (b Bounds) Degenerate() bool {
	return b.Span() <= 0
}

// Contains reports whether t lies within [Min, Max].
func (b Bounds) Contains(t time.Time) bool {
	return !t.Before(b.Min) && !t.After(b.Max)
}

// Clamp forces t into [Min, Max].
func (b Bounds) Clamp(t time.Time) time.Time {
	if t.Before(b.Min) {
		return b.Min
	}
	if t.After(b.Max) {
		return b.Max
	}
	return t
}

// Timeline maps instants within Bounds linearly onto [0, Width].
type Timeline struct {
	Bounds Bounds
	Width  float64
}

// New creates a Timeline of the given width over bounds.
func New(bounds Bounds, width float64) Timeline {
	return Timeline{Bounds: bounds, Width: width}
}

// Degenerate reports whether coordinates are meaningless. Callers should
// disable scrubbing and range selection while it is true.
func (tl Timeline) Degenerate() bool {
	return tl.Bounds.Degenerate() || tl.Width <= 0
}

// ToCoordinate returns the position of t. Instants outside the bounds map
// outside [0, Width]. A degenerate timeline maps everything to 0.
func (tl Timeline) ToCoordinate(t time.Time) float64 {
	if tl.Degenerate() {
		return 0
	}
	offset := float64(t.Sub(tl.Bounds.Min))
	return offset / float64(tl.Bounds.Span()) * tl.Width
}

// FromCoordinate returns the instant at position x, rounded to the nearest
// millisecond. A degenerate timeline returns the lower bound.
func (tl Timeline) FromCoordinate(x float64) time.Time {
	if tl.Degenerate() {
		return tl.Bounds.Min
	}
	offset := time.Duration(x / tl.Width * float64(tl.Bounds.Span()))
	return tl.Bounds.Min.Add(offset).Round(time.Millisecond)
}
