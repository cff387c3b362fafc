package events

import (
	"time"

	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Event type constants
const (
	EventTypeStatusChanged   = "status.changed"
	EventTypeTaskFocus       = "task.focus"
	EventTypeTaskEdited      = "task.edited"
	EventTypeTasksReplaced   = "tasks.replaced"
	EventTypeBuildCompleted  = "build.completed"
	EventTypePlaybackChanged = "playback.changed"
	EventTypeSnapshotSaved   = "snapshot.saved"
	EventTypeSnapshotLoaded  = "snapshot.loaded"
)

// StatusEvent carries a full status recomputation for the viewer.
// An empty Elements map means "clear all theming".
type StatusEvent struct {
	Reference time.Time
	HasRef    bool
	Tasks     map[string]schedule.TaskStatus // task id -> status
	Elements  map[string]schedule.TaskStatus // element id -> status
	Timestamp time.Time
}

func (e StatusEvent) EventType() string { return EventTypeStatusChanged }
func (e StatusEvent) TaskID() string    { return "" }

// FocusEvent asks the viewer to focus the elements of a task.
type FocusEvent struct {
	ID        string
	Elements  []string
	Timestamp time.Time
}

func (e FocusEvent) EventType() string { return EventTypeTaskFocus }
func (e FocusEvent) TaskID() string    { return e.ID }

// TaskEditedEvent is published after a task's dates or progress change.
type TaskEditedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskEditedEvent) EventType() string { return EventTypeTaskEdited }
func (e TaskEditedEvent) TaskID() string    { return e.ID }

// TasksReplacedEvent is published when the whole task set changes.
type TasksReplacedEvent struct {
	Origin    string // "build", "quick-build" or "snapshot"
	Count     int
	Timestamp time.Time
}

func (e TasksReplacedEvent) EventType() string { return EventTypeTasksReplaced }
func (e TasksReplacedEvent) TaskID() string    { return "" }

// BuildEvent summarizes a finished build, including builds that produced
// nothing.
type BuildEvent struct {
	Reason        schedule.BuildReason
	Missing       []string
	Tasks         int
	Scanned       int
	Skipped       int
	FailedBatches int
	Duration      time.Duration
	Timestamp     time.Time
}

func (e BuildEvent) EventType() string { return EventTypeBuildCompleted }
func (e BuildEvent) TaskID() string    { return "" }

// PlaybackEvent is published for every clock transition.
type PlaybackEvent struct {
	Frame     playback.Frame
	Timestamp time.Time
}

func (e PlaybackEvent) EventType() string { return EventTypePlaybackChanged }
func (e PlaybackEvent) TaskID() string    { return "" }

// SnapshotEvent is published when a snapshot is saved or loaded.
type SnapshotEvent struct {
	Name      string
	Loaded    bool
	Timestamp time.Time
}

func (e SnapshotEvent) EventType() string {
	if e.Loaded {
		return EventTypeSnapshotLoaded
	}
	return EventTypeSnapshotSaved
}
func (e SnapshotEvent) TaskID() string { return "" }
