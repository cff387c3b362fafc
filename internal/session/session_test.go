package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/snapshot"
	"github.com/aristath/phasing/internal/source"
)

var testMapping = schedule.FieldMapping{
	ID:           "Mark",
	Name:         "Name",
	StartDate:    "Start",
	EndDate:      "Finish",
	Progress:     "% Complete",
	Dependencies: "Predecessors",
}

func date(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

func element(id, mark, start, finish, progress, preds string) source.Element {
	return source.Element{ID: id, Properties: []source.Property{
		{Name: "Name", Value: "Element " + mark},
		{Name: "Mark", Value: mark},
		{Name: "Start", Value: start},
		{Name: "Finish", Value: finish},
		{Name: "% Complete", Value: progress},
		{Name: "Predecessors", Value: preds},
	}}
}

func testTable() *source.Table {
	return source.NewTable([]source.Element{
		element("e1", "A", "2024-01-01", "2024-01-05", "100", ""),
		element("e2", "A", "2023-06-01", "2023-06-02", "0", ""),
		element("e3", "B", "2024-01-03", "2024-01-10", "0", "A"),
	})
}

// sessionTicker fires only when the test sends on ch.
type sessionTicker struct {
	ch   chan time.Time
	once sync.Once
	done chan struct{}
}

func (t *sessionTicker) Chan() <-chan time.Time { return t.ch }
func (t *sessionTicker) Stop()                  { t.once.Do(func() { close(t.done) }) }

type tickers struct {
	mu  sync.Mutex
	all []*sessionTicker
}

func (ts *tickers) factory(time.Duration) playback.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tk := &sessionTicker{ch: make(chan time.Time), done: make(chan struct{})}
	ts.all = append(ts.all, tk)
	return tk
}

func (ts *tickers) fire(t *testing.T) {
	t.Helper()
	ts.mu.Lock()
	tk := ts.all[len(ts.all)-1]
	ts.mu.Unlock()
	select {
	case tk.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("tick loop did not accept a tick")
	}
}

type fixture struct {
	session *Session
	store   snapshot.Store
	bus     *events.EventBus
	ticks   *tickers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := testTable()
	f := &fixture{
		store: snapshot.NewMemoryStore(),
		bus:   events.NewEventBus(),
		ticks: &tickers{},
	}
	f.session = New(Config{
		Source:    table,
		Universe:  table,
		Store:     f.store,
		Bus:       f.bus,
		Mapping:   testMapping,
		NewTicker: f.ticks.factory,
	})
	t.Cleanup(func() {
		f.session.Close()
		f.bus.Close()
		f.store.Close()
	})
	return f
}

func (f *fixture) build(t *testing.T) {
	t.Helper()
	result, err := f.session.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Reason != schedule.ReasonOK {
		t.Fatalf("build reason = %v", result.Reason)
	}
}

// waitStatus reads status events until match accepts one.
func waitStatus(t *testing.T, ch <-chan events.Event, match func(events.StatusEvent) bool) events.StatusEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case e := <-ch:
			if st, ok := e.(events.StatusEvent); ok && match(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timeout waiting for status event")
		}
	}
}

func TestBuildPublishesAndAutosaves(t *testing.T) {
	f := newFixture(t)
	tasksCh := f.bus.Subscribe(16, events.TopicTasks)
	statusCh := f.bus.Subscribe(16, events.TopicStatus)

	f.build(t)

	tasks := f.session.Tasks()
	if len(tasks) != 2 || tasks[0].ID != "A" || tasks[1].ID != "B" {
		t.Fatalf("tasks = %v", tasks)
	}
	if got := f.session.Associations()["A"]; len(got) != 2 || got[0] != "e1" || got[1] != "e2" {
		t.Errorf("A elements = %v", got)
	}

	frame := f.session.Frame()
	if !frame.HasRef || !frame.Reference.Equal(date(time.January, 1, 0)) {
		t.Errorf("reference = %v, want lower bound", frame.Reference)
	}

	names, err := f.store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != DefaultSnapshotName {
		t.Errorf("snapshots = %v", names)
	}

	var sawBuild, sawReplace bool
	for i := 0; i < 2; i++ {
		select {
		case e := <-tasksCh:
			switch ev := e.(type) {
			case events.BuildEvent:
				sawBuild = ev.Tasks == 2 && ev.Scanned == 3
			case events.TasksReplacedEvent:
				sawReplace = ev.Origin == "build" && ev.Count == 2
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for task events")
		}
	}
	if !sawBuild || !sawReplace {
		t.Errorf("build event %v, replace event %v", sawBuild, sawReplace)
	}

	st := waitStatus(t, statusCh, func(events.StatusEvent) bool { return true })
	if len(st.Elements) != 3 || st.Elements["e3"] != schedule.NotYetStarted {
		t.Errorf("element statuses = %v", st.Elements)
	}
}

func TestBuildKeepsLiveSetOnFailure(t *testing.T) {
	f := newFixture(t)
	f.build(t)

	f.session.SetMapping(schedule.FieldMapping{ID: "Mark"})
	if missing := f.session.RequiredFieldsMissing(); len(missing) != 2 {
		t.Fatalf("missing = %v", missing)
	}

	result, err := f.session.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Reason != schedule.ReasonIncompleteMapping {
		t.Fatalf("reason = %v", result.Reason)
	}
	if !errors.Is(result.Err(), schedule.ErrIncompleteMapping) {
		t.Errorf("Err() = %v", result.Err())
	}
	if len(f.session.Tasks()) != 2 {
		t.Error("incomplete mapping replaced the live task set")
	}
}

func TestBuildWithoutSource(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	if _, err := s.Build(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("Build err = %v", err)
	}
	if err := s.Play(); !errors.Is(err, playback.ErrDegenerateTimeline) {
		t.Errorf("Play on empty session err = %v", err)
	}
}

func TestQuickBuild(t *testing.T) {
	f := newFixture(t)

	result, err := f.session.QuickBuild(context.Background(), "Start", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tasks) != 3 {
		t.Fatalf("tasks = %d, want one per element", len(result.Tasks))
	}
	task := f.session.Tasks()[0]
	if task.ID != "e1" || !task.End.Equal(task.Start.AddDate(0, 0, 2)) || task.Name != "Element A" {
		t.Errorf("task = %+v", task)
	}
}

func TestPlaybackTickPublishesStatus(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	statusCh := f.bus.Subscribe(16, events.TopicStatus)

	if err := f.session.Seek(date(time.January, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Play(); err != nil {
		t.Fatal(err)
	}
	f.ticks.fire(t)

	st := waitStatus(t, statusCh, func(st events.StatusEvent) bool {
		return st.Reference.Equal(date(time.January, 2, 0))
	})
	if st.Tasks["A"] != schedule.Advanced {
		t.Errorf("A at Jan 2 = %v", st.Tasks["A"])
	}
	if got := f.session.Frame().Reference; !got.Equal(date(time.January, 2, 0)) {
		t.Errorf("frame reference = %v", got)
	}

	f.session.Pause()
	if f.session.Frame().State != playback.Stopped {
		t.Error("pause did not stop the clock")
	}
}

func TestSeekAtAndStep(t *testing.T) {
	f := newFixture(t)
	f.build(t)

	// Bounds run from Jan 1 to Jan 10; e2's dates lose to e1's
	tl, err := f.session.Timeline(100)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.session.SeekAt(tl.ToCoordinate(date(time.January, 3, 0)), 100); err != nil {
		t.Fatal(err)
	}
	if got := f.session.Frame().Reference; !got.Equal(date(time.January, 3, 0)) {
		t.Errorf("after SeekAt reference = %v", got)
	}

	if err := f.session.Step(2); err != nil {
		t.Fatal(err)
	}
	if got := f.session.Frame().Reference; !got.Equal(date(time.January, 5, 0)) {
		t.Errorf("after Step reference = %v", got)
	}

	if err := f.session.Step(100); err != nil {
		t.Fatal(err)
	}
	if got := f.session.Frame().Reference; !got.Equal(date(time.January, 10, 0)) {
		t.Errorf("Step past the end = %v, want upper bound", got)
	}
}

func TestRangeDrag(t *testing.T) {
	f := newFixture(t)
	f.build(t)

	if err := f.session.BeginRange(date(time.January, 2, 0)); err != nil {
		t.Fatal(err)
	}
	if !f.session.Dragging() {
		t.Fatal("expected drag in progress")
	}
	highlight, ok := f.session.MoveRange(date(time.January, 6, 0))
	if !ok || !highlight.Start.Equal(date(time.January, 2, 0)) || !highlight.End.Equal(date(time.January, 6, 0)) {
		t.Errorf("highlight = %+v, ok %v", highlight, ok)
	}
	if !f.session.ReleaseRange(date(time.January, 6, 0)) {
		t.Fatal("range was discarded")
	}

	frame := f.session.Frame()
	if !frame.HasRange || !frame.Bounds.Min.Equal(date(time.January, 2, 0)) {
		t.Errorf("frame = %+v", frame)
	}

	// A click is not a range
	if err := f.session.BeginRange(date(time.January, 3, 0)); err != nil {
		t.Fatal(err)
	}
	if f.session.ReleaseRange(date(time.January, 3, 5)) {
		t.Error("short drag produced a range")
	}

	f.session.ClearRange()
	if f.session.Frame().HasRange {
		t.Error("range survived ClearRange")
	}
}

func TestEditTask(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	if err := f.session.Seek(date(time.January, 4, 0)); err != nil {
		t.Fatal(err)
	}

	statuses, _, ok := f.session.Statuses()
	if !ok || statuses["B"] != schedule.Late {
		t.Fatalf("B before edit = %v", statuses["B"])
	}

	progress := 40
	if err := f.session.EditTask("B", TaskEdit{Progress: &progress}); err != nil {
		t.Fatal(err)
	}
	statuses, _, _ = f.session.Statuses()
	if statuses["B"] != schedule.InProgress {
		t.Errorf("B after edit = %v", statuses["B"])
	}

	end := date(time.February, 1, 0)
	if err := f.session.EditTask("B", TaskEdit{End: &end}); err != nil {
		t.Fatal(err)
	}
	tl, _ := f.session.Timeline(1)
	if !tl.Bounds.Max.Equal(end) {
		t.Errorf("bounds max = %v, want edited end", tl.Bounds.Max)
	}

	if err := f.session.EditTask("Z", TaskEdit{}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("unknown task err = %v", err)
	}
}

func TestEditTaskKeepsRange(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	if err := f.session.SetRange(date(time.January, 2, 0), date(time.January, 6, 0)); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Seek(date(time.January, 4, 0)); err != nil {
		t.Fatal(err)
	}

	progress := 50
	if err := f.session.EditTask("B", TaskEdit{Progress: &progress}); err != nil {
		t.Fatal(err)
	}
	frame := f.session.Frame()
	if !frame.HasRange || !frame.Range.Start.Equal(date(time.January, 2, 0)) || !frame.Range.End.Equal(date(time.January, 6, 0)) {
		t.Fatalf("range after progress edit = %+v (set %v)", frame.Range, frame.HasRange)
	}
	if !frame.Reference.Equal(date(time.January, 4, 0)) {
		t.Errorf("reference moved to %v", frame.Reference)
	}

	end := date(time.February, 1, 0)
	if err := f.session.EditTask("B", TaskEdit{End: &end}); err != nil {
		t.Fatal(err)
	}
	if !f.session.Frame().HasRange {
		t.Error("range lost after end edit")
	}
}

func TestSnapshotKeepsLocalCalendarDays(t *testing.T) {
	cet := time.FixedZone("CET", 60*60)
	table := testTable()
	store, err := snapshot.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sess := New(Config{
		Source:   table,
		Universe: table,
		Store:    store,
		Mapping:  testMapping,
		Builder:  schedule.BuilderConfig{Location: cet},
	})
	t.Cleanup(func() {
		sess.Close()
		store.Close()
	})

	ctx := context.Background()
	if _, err := sess.Build(ctx); err != nil {
		t.Fatal(err)
	}
	var built bytes.Buffer
	if err := sess.Export(&built); err != nil {
		t.Fatal(err)
	}

	if err := sess.LoadSnapshot(ctx, DefaultSnapshotName); err != nil {
		t.Fatal(err)
	}
	var loaded bytes.Buffer
	if err := sess.Export(&loaded); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(built.String(), `A,"Element A",2024-01-01,2024-01-05`) {
		t.Fatalf("built export = %q", built.String())
	}
	if loaded.String() != built.String() {
		t.Errorf("export after reload =\n%s\nwant\n%s", loaded.String(), built.String())
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	ctx := context.Background()

	if err := f.session.SaveSnapshot(ctx, "Week 1 2024"); err != nil {
		t.Fatal(err)
	}
	progress := 90
	if err := f.session.EditTask("B", TaskEdit{Progress: &progress}); err != nil {
		t.Fatal(err)
	}

	if err := f.session.LoadSnapshot(ctx, "Week 1 2024"); err != nil {
		t.Fatal(err)
	}
	if got := f.session.Tasks()[1].Progress; got != 0 {
		t.Errorf("B progress after load = %d, want 0", got)
	}
	if f.session.ActiveSnapshot() != "Week 1 2024" {
		t.Errorf("active snapshot = %q", f.session.ActiveSnapshot())
	}

	names, err := f.session.Snapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, "|") != DefaultSnapshotName+"|Week 1 2024" {
		t.Errorf("snapshots = %v", names)
	}

	if err := f.session.LoadSnapshot(ctx, "missing"); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("missing snapshot err = %v", err)
	}
}

func TestSetDisplay(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	statusCh := f.bus.Subscribe(16, events.TopicStatus)

	f.session.SetDisplay(false)
	st := waitStatus(t, statusCh, func(events.StatusEvent) bool { return true })
	if len(st.Elements) != 0 {
		t.Errorf("display off still sent %d elements", len(st.Elements))
	}
	if len(st.Tasks) != 2 {
		t.Errorf("task statuses = %v", st.Tasks)
	}

	f.session.SetDisplay(true)
	st = waitStatus(t, statusCh, func(events.StatusEvent) bool { return true })
	if len(st.Elements) != 3 {
		t.Errorf("display on sent %d elements", len(st.Elements))
	}
}

func TestResolveElements(t *testing.T) {
	f := newFixture(t)
	f.build(t)
	focusCh := f.bus.Subscribe(16, events.TopicTasks)

	elements, err := f.session.ResolveElements("A")
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 2 {
		t.Errorf("elements = %v", elements)
	}

	select {
	case e := <-focusCh:
		if e.EventType() != events.EventTypeTaskFocus || e.TaskID() != "A" {
			t.Errorf("event = %#v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no focus event")
	}

	if _, err := f.session.ResolveElements("nope"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("err = %v", err)
	}
}

func TestExportAndDependencies(t *testing.T) {
	f := newFixture(t)
	f.build(t)

	var buf bytes.Buffer
	if err := f.session.Export(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[2] != `B,"Element B",2024-01-03,2024-01-10,0,A` {
		t.Errorf("export = %q", buf.String())
	}

	report := f.session.DependencyReport()
	if !report.Clean() || strings.Join(report.Order, ",") != "A,B" {
		t.Errorf("report = %+v", report)
	}
}
