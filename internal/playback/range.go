package playback

import "time"

// Selector turns a pointer drag on the timeline into a range selection.
// Dragging scrubs the clock; a release less than one step away from the
// anchor counts as a click and leaves the range untouched. Drag positions are
// clamped to the full bounds, so a new selection may extend past the current
// range.
type Selector struct {
	clock    *Clock
	anchor   time.Time
	dragging bool
}

// NewSelector creates a selector driving clock.
func NewSelector(clock *Clock) *Selector {
	return &Selector{clock: clock}
}

// Dragging reports whether a selection is in progress.
func (s *Selector) Dragging() bool {
	return s.dragging
}

// Begin starts a selection at t and scrubs the clock there. It returns false
// when the clock is degenerate.
func (s *Selector) Begin(t time.Time) bool {
	if s.clock.Degenerate() {
		return false
	}
	s.anchor = s.clock.bounds.Clamp(t)
	s.dragging = true
	s.clock.Seek(t)
	return true
}

// Move tracks the live end of the selection and scrubs the clock to it.
// The returned range is the highlight to draw.
func (s *Selector) Move(t time.Time) (Range, bool) {
	if !s.dragging {
		return Range{}, false
	}
	t = s.clock.bounds.Clamp(t)
	s.clock.Seek(t)
	return NewRange(s.anchor, t), true
}

// Release ends the selection at t. ok is true only when a range was applied.
func (s *Selector) Release(t time.Time) (Range, bool) {
	if !s.dragging {
		return Range{}, false
	}
	s.dragging = false

	r := NewRange(s.anchor, s.clock.bounds.Clamp(t))
	if r.Span() < StepSize {
		return Range{}, false
	}
	if err := s.clock.SetRange(r.Start, r.End); err != nil {
		return Range{}, false
	}
	return r, true
}

// Cancel abandons an in-progress selection.
func (s *Selector) Cancel() {
	s.dragging = false
}

// Clear abandons any selection in progress and removes the active range.
// It reports whether a range was removed.
func (s *Selector) Clear() bool {
	s.Cancel()
	return s.clock.ClearRange()
}
