package session

import (
	"time"

	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/timeline"
)

// Frame returns the last playback state the session applied.
func (s *Session) Frame() playback.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Play starts playback from the current reference.
func (s *Session) Play() error {
	return s.apply(s.runner.Play())
}

// Pause stops playback.
func (s *Session) Pause() {
	s.applyFrame(s.runner.Pause())
}

// Toggle plays a stopped clock and pauses a running one.
func (s *Session) Toggle() error {
	return s.apply(s.runner.Toggle())
}

// SetSpeed changes the playback speed multiplier.
func (s *Session) SetSpeed(m int) error {
	return s.apply(s.runner.SetSpeed(m))
}

// Seek moves the reference to t, clamped into the active bounds.
func (s *Session) Seek(t time.Time) error {
	return s.apply(s.runner.Seek(t))
}

// Step moves the reference by n playback steps, backwards when n is negative.
func (s *Session) Step(n int) error {
	frame := s.Frame()
	if !frame.HasRef {
		return playback.ErrDegenerateTimeline
	}
	return s.Seek(frame.Reference.Add(time.Duration(n) * playback.StepSize))
}

// SeekAt moves the reference to coordinate x of a ruler width units wide that
// spans the full task bounds.
func (s *Session) SeekAt(x, width float64) error {
	t, err := s.InstantAt(x, width)
	if err != nil {
		return err
	}
	return s.Seek(t)
}

// InstantAt maps ruler coordinate x back to an instant.
func (s *Session) InstantAt(x, width float64) (time.Time, error) {
	tl, err := s.Timeline(width)
	if err != nil {
		return time.Time{}, err
	}
	return tl.FromCoordinate(x), nil
}

// Timeline returns the ruler mapping over the full task bounds.
func (s *Session) Timeline(width float64) (timeline.Timeline, error) {
	s.mu.Lock()
	bounds, ok := timeline.BoundsOf(s.tasks)
	s.mu.Unlock()

	tl := timeline.New(bounds, width)
	if !ok || tl.Degenerate() {
		return tl, playback.ErrDegenerateTimeline
	}
	return tl, nil
}

// SetRange restricts playback to the interval between a and b.
func (s *Session) SetRange(a, b time.Time) error {
	return s.apply(s.runner.SetRange(a, b))
}

// ClearRange restores playback over the full bounds.
func (s *Session) ClearRange() {
	s.applyFrame(s.runner.ClearRange())
}

// BeginRange starts a range drag at t and scrubs there.
func (s *Session) BeginRange(t time.Time) error {
	frame, ok := s.runner.BeginRange(t)
	if !ok {
		return playback.ErrDegenerateTimeline
	}
	s.applyFrame(frame)
	return nil
}

// MoveRange extends a drag in progress to t and returns the highlighted span.
func (s *Session) MoveRange(t time.Time) (playback.Range, bool) {
	highlight, frame, ok := s.runner.MoveRange(t)
	if !ok {
		return playback.Range{}, false
	}
	s.applyFrame(frame)
	return highlight, true
}

// ReleaseRange ends a drag at t. It returns false when the drag was shorter
// than one step and was discarded.
func (s *Session) ReleaseRange(t time.Time) bool {
	frame, ok := s.runner.ReleaseRange(t)
	s.applyFrame(frame)
	return ok
}

// CancelRange abandons a drag in progress.
func (s *Session) CancelRange() {
	s.runner.CancelRange()
}

// Dragging reports whether a range drag is in progress.
func (s *Session) Dragging() bool {
	return s.runner.Dragging()
}

func (s *Session) apply(frame playback.Frame, err error) error {
	if err != nil {
		return err
	}
	s.applyFrame(frame)
	return nil
}

func (s *Session) applyFrame(frame playback.Frame) {
	s.mu.Lock()
	out := s.applyFrameLocked(frame, false)
	s.mu.Unlock()
	s.flush(out)
}

// handleFrame receives ticks from the runner goroutine.
func (s *Session) handleFrame(frame playback.Frame) {
	s.applyFrame(frame)
}

// applyFrameLocked records frame unless a newer one was already applied, and
// queues a status recomputation when the reference moved or force is set.
func (s *Session) applyFrameLocked(frame playback.Frame, force bool) []pending {
	if frame.Seq < s.frame.Seq {
		return nil
	}
	moved := frame.HasRef != s.frame.HasRef || !frame.Reference.Equal(s.frame.Reference)
	if frame.Seq == s.frame.Seq && !moved && !force {
		return nil
	}
	s.frame = frame

	out := []pending{{events.TopicPlayback, events.PlaybackEvent{Frame: frame, Timestamp: time.Now()}}}
	if moved || force {
		out = append(out, pending{events.TopicStatus, s.statusLocked()})
	}
	return out
}
