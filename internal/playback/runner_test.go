package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/phasing/internal/timeline"
)

// manualTicker fires only when the test says so.
type manualTicker struct {
	interval time.Duration
	ch       chan time.Time
	stopped  chan struct{}
	once     sync.Once
}

func (m *manualTicker) Chan() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() { m.once.Do(func() { close(m.stopped) }) }

func (m *manualTicker) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

type tickerRecorder struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (r *tickerRecorder) factory(d time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	tk := &manualTicker{interval: d, ch: make(chan time.Time), stopped: make(chan struct{})}
	r.tickers = append(r.tickers, tk)
	return tk
}

func (r *tickerRecorder) last(t *testing.T) *manualTicker {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tickers) == 0 {
		t.Fatal("no ticker was created")
	}
	return r.tickers[len(r.tickers)-1]
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

func newTestRunner(t *testing.T) (*Runner, *tickerRecorder, chan Frame) {
	t.Helper()
	rec := &tickerRecorder{}
	frames := make(chan Frame, 16)
	r := NewRunner(RunnerConfig{
		OnChange:  func(f Frame) { frames <- f },
		NewTicker: rec.factory,
	})
	t.Cleanup(r.Close)
	return r, rec, frames
}

func waitFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return Frame{}
}

func waitStopped(t *testing.T, tk *manualTicker) {
	t.Helper()
	select {
	case <-tk.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker was never stopped")
	}
}

func TestRunner_PlaysToEnd(t *testing.T) {
	r, rec, frames := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(10)}, true)
	if _, err := r.Seek(day(8)); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	f, err := r.Play()
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if f.State != Running {
		t.Fatalf("state = %v, want running", f.State)
	}
	tk := rec.last(t)
	if tk.interval != time.Second {
		t.Errorf("interval = %v, want 1s", tk.interval)
	}

	tk.ch <- time.Now()
	f = waitFrame(t, frames)
	if !f.Reference.Equal(day(9)) || f.State != Running {
		t.Errorf("frame = %+v, want day9 running", f)
	}

	tk.ch <- time.Now()
	f = waitFrame(t, frames)
	if !f.Reference.Equal(day(10)) || f.State != Stopped {
		t.Errorf("frame = %+v, want day10 stopped", f)
	}
	waitStopped(t, tk)

	if r.Frame().State != Stopped {
		t.Error("runner should report stopped")
	}
}

func TestRunner_SpeedChangeReschedules(t *testing.T) {
	r, rec, frames := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(30)}, true)
	r.Play()
	first := rec.last(t)

	f, err := r.SetSpeed(2)
	if err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if f.Speed != 2 || f.State != Running {
		t.Errorf("frame = %+v", f)
	}
	waitStopped(t, first)

	if rec.count() != 2 {
		t.Fatalf("tickers created = %d, want 2", rec.count())
	}
	second := rec.last(t)
	if second.interval != 500*time.Millisecond {
		t.Errorf("new interval = %v", second.interval)
	}
	if second.isStopped() {
		t.Error("replacement ticker should be live")
	}

	second.ch <- time.Now()
	if got := waitFrame(t, frames); !got.Reference.Equal(day(1)) {
		t.Errorf("reference = %v, want day1 (speed change must keep position)", got.Reference)
	}

	if _, err := r.SetSpeed(5); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("SetSpeed(5) err = %v", err)
	}
	if _, err := r.SetSpeed(2); err != nil || rec.count() != 2 {
		t.Errorf("same speed should not reschedule (tickers %d, err %v)", rec.count(), err)
	}
}

func TestRunner_PauseStopsLoop(t *testing.T) {
	r, rec, frames := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(30)}, true)
	r.Play()
	tk := rec.last(t)

	f := r.Pause()
	if f.State != Stopped {
		t.Errorf("state = %v", f.State)
	}
	waitStopped(t, tk)

	select {
	case f := <-frames:
		t.Errorf("unexpected frame after pause: %+v", f)
	default:
	}

	again := r.Pause()
	if again.State != Stopped || !again.Reference.Equal(day(0)) {
		t.Errorf("second pause = %+v", again)
	}
}

func TestRunner_Toggle(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if _, err := r.Toggle(); !errors.Is(err, ErrDegenerateTimeline) {
		t.Errorf("Toggle without bounds err = %v", err)
	}

	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(5)}, true)
	f, err := r.Toggle()
	if err != nil || f.State != Running {
		t.Fatalf("first toggle = %+v, %v", f, err)
	}
	f, err = r.Toggle()
	if err != nil || f.State != Stopped {
		t.Fatalf("second toggle = %+v, %v", f, err)
	}
}

func TestRunner_DegenerateBoundsStopPlayback(t *testing.T) {
	r, rec, _ := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(30)}, true)
	r.Play()
	tk := rec.last(t)

	f := r.SetBounds(timeline.Bounds{Min: day(4), Max: day(4)}, true)
	if f.State != Stopped || f.Enabled || f.HasRef {
		t.Errorf("frame = %+v, want stopped, disabled, no reference", f)
	}
	waitStopped(t, tk)
}

func TestRunner_RangeDragAndSeq(t *testing.T) {
	r, _, _ := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(30)}, true)

	begin, ok := r.BeginRange(day(10))
	if !ok || !begin.Reference.Equal(day(10)) {
		t.Fatalf("BeginRange = %+v, %v", begin, ok)
	}
	if !r.Dragging() {
		t.Error("drag should be in progress")
	}
	highlight, moved, ok := r.MoveRange(day(14))
	if !ok || !highlight.End.Equal(day(14)) || moved.Seq <= begin.Seq {
		t.Errorf("MoveRange = %+v, %+v, %v", highlight, moved, ok)
	}

	f, ok := r.ReleaseRange(day(15))
	if !ok || !f.HasRange {
		t.Fatalf("ReleaseRange = %+v, %v", f, ok)
	}
	if !f.Bounds.Min.Equal(day(10)) || !f.Bounds.Max.Equal(day(15)) {
		t.Errorf("active bounds = %+v", f.Bounds)
	}

	cleared := r.ClearRange()
	if cleared.HasRange || !cleared.Bounds.Max.Equal(day(30)) {
		t.Errorf("ClearRange = %+v", cleared)
	}
	if cleared.Seq <= f.Seq {
		t.Error("sequence numbers should increase")
	}
}

func TestRunner_StaleTickIgnored(t *testing.T) {
	r, rec, frames := newTestRunner(t)
	r.SetBounds(timeline.Bounds{Min: day(0), Max: day(30)}, true)
	r.Play()
	old := rec.last(t)
	r.Pause()
	waitStopped(t, old)
	r.Play()

	// The first loop is gone; nobody reads its channel any more.
	select {
	case old.ch <- time.Now():
		t.Fatal("stale loop still receiving ticks")
	case <-time.After(20 * time.Millisecond):
	}

	rec.last(t).ch <- time.Now()
	if got := waitFrame(t, frames); !got.Reference.Equal(day(1)) {
		t.Errorf("reference = %v, want day1", got.Reference)
	}
}
