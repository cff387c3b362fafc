package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/snapshot"
	"github.com/aristath/phasing/internal/timeline"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrNoSource    = errors.New("no property source configured")
)

// DefaultSnapshotName is written after every fresh build.
const DefaultSnapshotName = "Current period"

// Universe lists the element ids a build considers, in canonical order.
type Universe interface {
	ElementIDs() []string
}

// Config configures a Session.
type Config struct {
	Source            schedule.PropertySource // Property lookups for builds
	Universe          Universe                // Elements considered by builds
	Store             snapshot.Store          // Snapshot persistence (default in-memory)
	Bus               *events.EventBus        // Optional; nil disables publishing
	Builder           schedule.BuilderConfig
	Mapping           schedule.FieldMapping
	DefaultSnapshot   string                 // Name autosaved after builds (default DefaultSnapshotName)
	QuickDurationDays int                    // Task length for date-property builds (default 1)
	Speed             int                    // Initial playback speed (default 1)
	NewTicker         playback.TickerFactory // Optional factory for testing
}

// TaskEdit changes the schedule of one task. Nil fields are left alone.
type TaskEdit struct {
	Start    *time.Time
	End      *time.Time
	Progress *int
}

// Session is the state bound to one viewer: the live task set, its element
// associations, the playback clock and the snapshot store. All methods are
// safe for concurrent use.
type Session struct {
	cfg     Config
	builder *schedule.Builder
	runner  *playback.Runner

	mu      sync.Mutex
	mapping schedule.FieldMapping
	tasks   []*schedule.Task
	assoc   schedule.Associations
	display bool
	frame   playback.Frame
}

type pending struct {
	topic events.Topic
	event events.Event
}

// New creates a session with an empty task set and a stopped clock.
func New(cfg Config) *Session {
	if cfg.Store == nil {
		cfg.Store = snapshot.NewMemoryStore()
	}
	if cfg.DefaultSnapshot == "" {
		cfg.DefaultSnapshot = DefaultSnapshotName
	}
	if cfg.QuickDurationDays <= 0 {
		cfg.QuickDurationDays = 1
	}

	s := &Session{
		cfg:     cfg,
		mapping: cfg.Mapping,
		tasks:   []*schedule.Task{},
		assoc:   schedule.Associations{},
		display: true,
	}
	if cfg.Source != nil {
		s.builder = schedule.NewBuilder(cfg.Source, cfg.Builder)
	}
	s.runner = playback.NewRunner(playback.RunnerConfig{
		OnChange:  s.handleFrame,
		NewTicker: cfg.NewTicker,
	})

	if cfg.Speed > 0 {
		if _, err := s.runner.SetSpeed(cfg.Speed); err != nil {
			log.Printf("WARNING: ignoring playback speed %d: %v", cfg.Speed, err)
		}
	}
	s.frame = s.runner.Frame()
	return s
}

// Close stops playback. The snapshot store stays open; its owner closes it.
func (s *Session) Close() {
	s.runner.Close()
}

// Mapping returns the current field mapping.
func (s *Session) Mapping() schedule.FieldMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

// SetMapping replaces the field mapping used by the next build.
func (s *Session) SetMapping(m schedule.FieldMapping) {
	s.mu.Lock()
	s.mapping = m
	s.mu.Unlock()
}

// RequiredFieldsMissing lists the required mapping keys that are empty.
func (s *Session) RequiredFieldsMissing() []string {
	return s.Mapping().Missing()
}

// Build derives a fresh task set from the property source. The live set is
// replaced only when the build produced tasks; other outcomes are reported
// through the result and leave the live set alone.
func (s *Session) Build(ctx context.Context) (*schedule.BuildResult, error) {
	if s.builder == nil {
		return nil, ErrNoSource
	}
	mapping := s.Mapping()

	started := time.Now()
	result, err := s.builder.Build(ctx, mapping, s.universe())
	if err != nil {
		return nil, fmt.Errorf("building tasks: %w", err)
	}
	s.finishBuild(ctx, "build", result, time.Since(started))
	return result, nil
}

// QuickBuild creates one task per element from a single date property. Tasks
// last days days; non-positive days use the configured default.
func (s *Session) QuickBuild(ctx context.Context, property string, days int) (*schedule.BuildResult, error) {
	if s.builder == nil {
		return nil, ErrNoSource
	}
	if days <= 0 {
		days = s.cfg.QuickDurationDays
	}

	started := time.Now()
	result, err := s.builder.BuildFromDateProperty(ctx, property, days, s.universe())
	if err != nil {
		return nil, fmt.Errorf("building tasks from %s: %w", property, err)
	}
	s.finishBuild(ctx, "quick-build", result, time.Since(started))
	return result, nil
}

func (s *Session) universe() []string {
	if s.cfg.Universe == nil {
		return nil
	}
	return s.cfg.Universe.ElementIDs()
}

func (s *Session) finishBuild(ctx context.Context, origin string, result *schedule.BuildResult, elapsed time.Duration) {
	s.publish(events.TopicTasks, events.BuildEvent{
		Reason:        result.Reason,
		Missing:       result.Missing,
		Tasks:         len(result.Tasks),
		Scanned:       result.Scanned,
		Skipped:       result.Skipped,
		FailedBatches: len(result.FailedBatches),
		Duration:      elapsed,
		Timestamp:     time.Now(),
	})
	if result.Reason != schedule.ReasonOK {
		return
	}

	s.mu.Lock()
	out := s.replaceLocked(result.Tasks, result.Associations, origin)
	tasks, assoc := schedule.CloneTasks(s.tasks), s.assoc.Clone()
	s.mu.Unlock()
	s.flush(out)

	if err := s.cfg.Store.Save(ctx, s.cfg.DefaultSnapshot, tasks, assoc); err != nil {
		log.Printf("WARNING: failed to save snapshot %q: %v", s.cfg.DefaultSnapshot, err)
	}
}

// replaceLocked installs a new task set, resets the clock bounds and queues
// the resulting events.
func (s *Session) replaceLocked(tasks []*schedule.Task, assoc schedule.Associations, origin string) []pending {
	s.tasks = schedule.CloneTasks(tasks)
	s.assoc = assoc.Clone()

	bounds, ok := timeline.BoundsOf(s.tasks)
	frame := s.runner.SetBounds(bounds, ok)

	out := []pending{{events.TopicTasks, events.TasksReplacedEvent{
		Origin:    origin,
		Count:     len(s.tasks),
		Timestamp: time.Now(),
	}}}
	return append(out, s.applyFrameLocked(frame, true)...)
}

// Tasks returns a copy of the live task set.
func (s *Session) Tasks() []*schedule.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schedule.CloneTasks(s.tasks)
}

// Associations returns a copy of the task to element table.
func (s *Session) Associations() schedule.Associations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assoc.Clone()
}

// Statuses classifies every task at the current reference. ok is false when
// there is no reference.
func (s *Session) Statuses() (map[string]schedule.TaskStatus, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frame.HasRef {
		return map[string]schedule.TaskStatus{}, time.Time{}, false
	}
	return schedule.ClassifyAll(s.tasks, s.frame.Reference), s.frame.Reference, true
}

// EditTask reschedules one task and re-evaluates statuses.
func (s *Session) EditTask(id string, edit TaskEdit) error {
	s.mu.Lock()
	var task *schedule.Task
	for _, t := range s.tasks {
		if t.ID == id {
			task = t
			break
		}
	}
	if task == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	if edit.Start != nil {
		task.Start = *edit.Start
	}
	if edit.End != nil {
		task.End = *edit.End
	}
	if edit.Progress != nil {
		task.Progress = schedule.ClampProgress(*edit.Progress)
	}

	bounds, ok := timeline.BoundsOf(s.tasks)
	frame := s.runner.ResizeBounds(bounds, ok)
	out := []pending{{events.TopicTasks, events.TaskEditedEvent{ID: id, Timestamp: time.Now()}}}
	out = append(out, s.applyFrameLocked(frame, true)...)
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// ResolveElements returns the elements of a task and asks the viewer to
// focus them.
func (s *Session) ResolveElements(taskID string) ([]string, error) {
	s.mu.Lock()
	elements, ok := s.assoc[taskID]
	elements = append([]string(nil), elements...)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	s.publish(events.TopicTasks, events.FocusEvent{ID: taskID, Elements: elements, Timestamp: time.Now()})
	return elements, nil
}

// Display reports whether status theming is shown.
func (s *Session) Display() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// SetDisplay toggles status theming. Turning it off publishes an empty
// element map, which clears the viewer.
func (s *Session) SetDisplay(on bool) {
	s.mu.Lock()
	if s.display == on {
		s.mu.Unlock()
		return
	}
	s.display = on
	status := s.statusLocked()
	s.mu.Unlock()

	s.publish(events.TopicStatus, status)
}

// DependencyReport checks the dependency references of the live task set.
func (s *Session) DependencyReport() schedule.DependencyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schedule.CheckDependencies(s.tasks)
}

// Export writes the live task set as CSV.
func (s *Session) Export(w io.Writer) error {
	tasks := s.Tasks()
	if err := schedule.WriteCSV(w, tasks); err != nil {
		return fmt.Errorf("exporting tasks: %w", err)
	}
	return nil
}

// SaveSnapshot stores a copy of the live task set under name.
func (s *Session) SaveSnapshot(ctx context.Context, name string) error {
	s.mu.Lock()
	tasks, assoc := s.tasks, s.assoc
	err := s.cfg.Store.Save(ctx, name, tasks, assoc)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", name, err)
	}
	s.publish(events.TopicSnapshot, events.SnapshotEvent{Name: name, Timestamp: time.Now()})
	return nil
}

// LoadSnapshot replaces the live task set with a stored one. Loading never
// rewrites the default snapshot.
func (s *Session) LoadSnapshot(ctx context.Context, name string) error {
	snap, err := s.cfg.Store.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("loading snapshot %q: %w", name, err)
	}

	s.mu.Lock()
	out := []pending{{events.TopicSnapshot, events.SnapshotEvent{Name: name, Loaded: true, Timestamp: time.Now()}}}
	out = append(out, s.replaceLocked(snap.Tasks, snap.Associations, "snapshot")...)
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// Snapshots lists stored snapshot names in save order.
func (s *Session) Snapshots(ctx context.Context) ([]string, error) {
	names, err := s.cfg.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return names, nil
}

// ActiveSnapshot is the name most recently saved or loaded.
func (s *Session) ActiveSnapshot() string {
	return s.cfg.Store.ActiveName()
}

// publish sends an event when a bus is configured.
func (s *Session) publish(topic events.Topic, event events.Event) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(topic, event)
	}
}

func (s *Session) flush(out []pending) {
	for _, p := range out {
		s.publish(p.topic, p.event)
	}
}

// statusLocked computes the viewer payload for the current reference.
func (s *Session) statusLocked() events.StatusEvent {
	status := events.StatusEvent{
		Reference: s.frame.Reference,
		HasRef:    s.frame.HasRef,
		Tasks:     map[string]schedule.TaskStatus{},
		Elements:  map[string]schedule.TaskStatus{},
		Timestamp: time.Now(),
	}
	if !s.frame.HasRef {
		return status
	}
	status.Tasks = schedule.ClassifyAll(s.tasks, s.frame.Reference)
	if s.display {
		status.Elements = schedule.ElementStatuses(s.tasks, s.assoc, s.frame.Reference)
	}
	return status
}
