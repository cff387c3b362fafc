package playback

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aristath/phasing/internal/timeline"
)

// StepSize is how far the reference instant advances per tick.
const StepSize = 24 * time.Hour

// MinTickInterval is the fastest tick cadence regardless of speed.
const MinTickInterval = 50 * time.Millisecond

// Speeds lists the accepted speed multipliers.
var Speeds = []int{1, 2, 3, 4, 8, 16}

var (
	ErrInvalidSpeed       = errors.New("invalid playback speed")
	ErrRangeTooShort      = errors.New("range shorter than one step")
	ErrDegenerateTimeline = errors.New("timeline has no usable span")
)

// State is the playback state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// TickInterval returns the tick cadence for a speed multiplier.
func TickInterval(speed int) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return max(time.Second/time.Duration(speed), MinTickInterval)
}

// Range is a playback sub-interval selected on the timeline.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange normalizes two instants into a Range with Start <= End.
func NewRange(a, b time.Time) Range {
	if b.Before(a) {
		a, b = b, a
	}
	return Range{Start: a, End: b}
}

// Span returns End - Start.
func (r Range) Span() time.Duration {
	return r.End.Sub(r.Start)
}

// Bounds converts the range to timeline bounds.
func (r Range) Bounds() timeline.Bounds {
	return timeline.Bounds{Min: r.Start, Max: r.End}
}

// Clock is the playback state machine. Every method is a synchronous
// transition; scheduling ticks is the job of a Runner. Clock is not safe for
// concurrent use.
type Clock struct {
	bounds    timeline.Bounds
	hasBounds bool
	rng       *Range

	ref    time.Time
	hasRef bool
	state  State
	speed  int
}

// NewClock returns a stopped clock at speed 1 with no bounds.
func NewClock() *Clock {
	return &Clock{speed: 1}
}

// SetBounds replaces the full timeline bounds and drops any range selection.
// ok false means no bounds exist (no tasks).
func (c *Clock) SetBounds(b timeline.Bounds, ok bool) {
	c.bounds = b
	c.hasBounds = ok
	c.rng = nil
	c.boundsChanged()
}

// ResizeBounds replaces the full timeline bounds but keeps the range
// selection, clamping or resetting the reference as needed. The range is
// dropped only when no bounds remain.
func (c *Clock) ResizeBounds(b timeline.Bounds, ok bool) {
	c.bounds = b
	c.hasBounds = ok
	if !ok {
		c.rng = nil
	}
	c.boundsChanged()
}

// Bounds returns the full timeline bounds.
func (c *Clock) Bounds() (timeline.Bounds, bool) {
	return c.bounds, c.hasBounds
}

// ActiveBounds returns the range selection if one is set, else the full bounds.
func (c *Clock) ActiveBounds() (timeline.Bounds, bool) {
	if !c.hasBounds {
		return timeline.Bounds{}, false
	}
	if c.rng != nil {
		return c.rng.Bounds(), true
	}
	return c.bounds, true
}

// Degenerate reports whether playback, seeking and range selection are disabled.
func (c *Clock) Degenerate() bool {
	b, ok := c.ActiveBounds()
	return !ok || b.Degenerate()
}

// Reference returns the current reference instant, if any.
func (c *Clock) Reference() (time.Time, bool) {
	return c.ref, c.hasRef
}

// State returns Running or Stopped.
func (c *Clock) State() State {
	return c.state
}

// Speed returns the current multiplier.
func (c *Clock) Speed() int {
	return c.speed
}

// Interval returns the tick cadence for the current speed.
func (c *Clock) Interval() time.Duration {
	return TickInterval(c.speed)
}

// Start moves a stopped clock to Running. The reference defaults to the
// active lower bound. It returns false when already running or degenerate.
func (c *Clock) Start() bool {
	if c.state == Running || c.Degenerate() {
		return false
	}
	b, _ := c.ActiveBounds()
	if !c.hasRef || !b.Contains(c.ref) {
		c.ref = b.Min
		c.hasRef = true
	}
	c.state = Running
	return true
}

// Stop moves the clock to Stopped. It returns false if it was not running.
func (c *Clock) Stop() bool {
	if c.state == Stopped {
		return false
	}
	c.state = Stopped
	return true
}

// Tick advances the reference by one step. Without a range selection the
// clock stops once it reaches the upper bound; with one it wraps from past the
// upper bound to the lower bound. It reports whether the reference changed.
func (c *Clock) Tick() bool {
	if c.state != Running || !c.hasRef {
		return false
	}
	b, _ := c.ActiveBounds()
	prev := c.ref
	next := c.ref.Add(StepSize)

	switch {
	case c.rng != nil && next.After(b.Max):
		next = b.Min
	case c.rng == nil && !next.Before(b.Max):
		next = b.Max
		c.state = Stopped
	}

	c.ref = next
	return !next.Equal(prev)
}

// SetSpeed changes the multiplier. changed is false when m equals the
// current speed. The reference instant is never touched.
func (c *Clock) SetSpeed(m int) (bool, error) {
	if !slices.Contains(Speeds, m) {
		return false, fmt.Errorf("%w: %d", ErrInvalidSpeed, m)
	}
	if m == c.speed {
		return false, nil
	}
	c.speed = m
	return true, nil
}

// Seek moves the reference to t clamped into the active bounds. It is legal
// while running. ok is false when the clock is degenerate.
func (c *Clock) Seek(t time.Time) (time.Time, bool) {
	if c.Degenerate() {
		return time.Time{}, false
	}
	b, _ := c.ActiveBounds()
	c.ref = b.Clamp(t)
	c.hasRef = true
	return c.ref, true
}

// SetRange restricts playback to [min(a,b), max(a,b)].
func (c *Clock) SetRange(a, b time.Time) error {
	if !c.hasBounds {
		return ErrDegenerateTimeline
	}
	r := NewRange(a, b)
	if r.Span() < StepSize {
		return fmt.Errorf("%w: %s", ErrRangeTooShort, r.Span())
	}
	c.rng = &r
	c.boundsChanged()
	return nil
}

// ClearRange restores the full bounds. It reports whether a range was set.
func (c *Clock) ClearRange() bool {
	if c.rng == nil {
		return false
	}
	c.rng = nil
	c.boundsChanged()
	return true
}

// Range returns the active range selection, if any.
func (c *Clock) Range() (Range, bool) {
	if c.rng == nil {
		return Range{}, false
	}
	return *c.rng, true
}

// boundsChanged moves a missing or out-of-bounds reference to the active
// lower bound and stops the clock only when the new bounds are degenerate.
func (c *Clock) boundsChanged() {
	if c.Degenerate() {
		c.state = Stopped
		c.ref = time.Time{}
		c.hasRef = false
		return
	}
	b, _ := c.ActiveBounds()
	if !c.hasRef || !b.Contains(c.ref) {
		c.ref = b.Min
		c.hasRef = true
	}
}
