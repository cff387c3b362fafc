package playback

import (
	"sync"
	"time"

	"github.com/aristath/phasing/internal/timeline"
)

// Ticker delivers ticks until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ *time.Ticker }

func (t realTicker) Chan() <-chan time.Time { return t.C }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Frame is a copy of the clock state after a transition. Seq increases with
// every transition so consumers can drop frames that arrive late.
type Frame struct {
	Seq       uint64
	Reference time.Time
	HasRef    bool
	State     State
	Speed     int
	Range     Range
	HasRange  bool
	Bounds    timeline.Bounds // Active bounds
	Enabled   bool            // False when the timeline is degenerate
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	OnChange  func(Frame)   // Called from the tick goroutine, never with locks held
	NewTicker TickerFactory // Optional factory for testing (default time.NewTicker)
}

// Runner owns a Clock and schedules its ticks. At most one tick loop exists at
// a time: every stop or reschedule bumps a generation counter so a loop that
// lost the race exits without applying its tick.
//
// Synchronous methods return the resulting Frame instead of invoking
// OnChange, so callers may hold their own locks while calling them.
type Runner struct {
	cfg RunnerConfig

	mu       sync.Mutex
	clock    *Clock
	selector *Selector
	gen      uint64
	seq      uint64
	stop     chan struct{}
	closed   bool
}

// NewRunner creates a runner over a fresh stopped clock.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.NewTicker == nil {
		cfg.NewTicker = newRealTicker
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(Frame) {}
	}
	clock := NewClock()
	return &Runner{
		cfg:      cfg,
		clock:    clock,
		selector: NewSelector(clock),
	}
}

// Frame returns the current state without recording a transition.
func (r *Runner) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Play starts playback.
func (r *Runner) Play() (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.clock.Degenerate() {
		return r.snapshotLocked(), ErrDegenerateTimeline
	}
	if r.clock.Start() {
		r.scheduleLocked()
	}
	return r.frameLocked(), nil
}

// Pause stops playback. Pausing a stopped clock is a no-op.
func (r *Runner) Pause() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock.Stop()
	r.cancelLocked()
	return r.frameLocked()
}

// Toggle plays a stopped clock and pauses a running one.
func (r *Runner) Toggle() (Frame, error) {
	r.mu.Lock()
	running := r.clock.State() == Running
	r.mu.Unlock()

	if running {
		return r.Pause(), nil
	}
	return r.Play()
}

// SetSpeed changes the speed, rescheduling a running loop at the new interval.
func (r *Runner) SetSpeed(m int) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed, err := r.clock.SetSpeed(m)
	if err != nil {
		return r.snapshotLocked(), err
	}
	if changed && r.clock.State() == Running {
		r.cancelLocked()
		r.scheduleLocked()
	}
	return r.frameLocked(), nil
}

// Seek scrubs the reference, clamped into the active bounds.
func (r *Runner) Seek(t time.Time) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clock.Seek(t); !ok {
		return r.snapshotLocked(), ErrDegenerateTimeline
	}
	return r.frameLocked(), nil
}

// SetBounds replaces the full timeline bounds and drops any range.
func (r *Runner) SetBounds(b timeline.Bounds, ok bool) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selector.Cancel()
	r.clock.SetBounds(b, ok)
	r.syncLocked()
	return r.frameLocked()
}

// ResizeBounds replaces the full timeline bounds after the task set was
// edited. Unlike SetBounds it keeps the range and any drag in progress.
func (r *Runner) ResizeBounds(b timeline.Bounds, ok bool) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ok {
		r.selector.Cancel()
	}
	r.clock.ResizeBounds(b, ok)
	r.syncLocked()
	return r.frameLocked()
}

// SetRange restricts playback to the given interval.
func (r *Runner) SetRange(a, b time.Time) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.clock.SetRange(a, b); err != nil {
		return r.snapshotLocked(), err
	}
	r.syncLocked()
	return r.frameLocked(), nil
}

// ClearRange restores the full bounds.
func (r *Runner) ClearRange() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selector.Clear()
	r.syncLocked()
	return r.frameLocked()
}

// BeginRange starts a timeline drag at t.
func (r *Runner) BeginRange(t time.Time) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.selector.Begin(t) {
		return r.snapshotLocked(), false
	}
	return r.frameLocked(), true
}

// MoveRange updates a drag in progress and returns the live highlight.
func (r *Runner) MoveRange(t time.Time) (Range, Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	highlight, ok := r.selector.Move(t)
	if !ok {
		return Range{}, r.snapshotLocked(), false
	}
	return highlight, r.frameLocked(), true
}

// ReleaseRange finishes a drag. ok is false when the drag was too short to
// count as a range.
func (r *Runner) ReleaseRange(t time.Time) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.selector.Release(t)
	if ok {
		r.syncLocked()
	}
	return r.frameLocked(), ok
}

// CancelRange abandons a drag in progress.
func (r *Runner) CancelRange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selector.Cancel()
}

// Dragging reports whether a range drag is in progress.
func (r *Runner) Dragging() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selector.Dragging()
}

// Close stops the tick loop. It does not wait for an OnChange call in flight.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock.Stop()
	r.cancelLocked()
	r.closed = true
}

func (r *Runner) scheduleLocked() {
	r.gen++
	stop := make(chan struct{})
	r.stop = stop
	go r.loop(r.gen, r.cfg.NewTicker(r.clock.Interval()), stop)
}

func (r *Runner) cancelLocked() {
	r.gen++
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// syncLocked ends the loop when a bounds change stopped the clock.
func (r *Runner) syncLocked() {
	if r.clock.State() == Stopped && r.stop != nil {
		r.cancelLocked()
	}
}

func (r *Runner) loop(gen uint64, ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		changed := r.clock.Tick()
		finished := r.clock.State() == Stopped
		var frame Frame
		if changed || finished {
			frame = r.frameLocked()
		}
		if finished {
			r.cancelLocked()
		}
		r.mu.Unlock()

		if changed || finished {
			r.cfg.OnChange(frame)
		}
		if finished {
			return
		}
	}
}

func (r *Runner) frameLocked() Frame {
	r.seq++
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() Frame {
	ref, hasRef := r.clock.Reference()
	rng, hasRange := r.clock.Range()
	bounds, _ := r.clock.ActiveBounds()
	return Frame{
		Seq:       r.seq,
		Reference: ref,
		HasRef:    hasRef,
		State:     r.clock.State(),
		Speed:     r.clock.Speed(),
		Range:     rng,
		HasRange:  hasRange,
		Bounds:    bounds,
		Enabled:   !r.clock.Degenerate(),
	}
}
