package schedule

import (
	"strings"
	"time"
)

// TaskStatus is the simulated state of a task at a reference instant.
// It is always derived from a Task and never stored.
type TaskStatus int

const (
	NotYetStarted TaskStatus = iota // Scheduled start not reached, no progress
	Advanced                        // Work ahead of the schedule
	InProgress                      // Within the window with partial progress
	Late                            // Behind the schedule
	Finished                        // Window elapsed and fully complete
)

// Statuses lists every status in declaration order.
var Statuses = []TaskStatus{NotYetStarted, Advanced, InProgress, Late, Finished}

// String returns the status key used by color tables and events.
func (s TaskStatus) String() string {
	switch s {
	case NotYetStarted:
		return "notYetStarted"
	case Advanced:
		return "advanced"
	case InProgress:
		return "inProgress"
	case Late:
		return "late"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Task is a scheduled unit of work derived from one or more model elements.
type Task struct {
	ID           string    // Mapped id value, or the owning element id
	Name         string    // Display name
	Start        time.Time // Scheduled start
	End          time.Time // Scheduled end; not validated against Start
	Progress     int       // Percent complete, clamped to [0,100]
	Dependencies []string  // Task ids, informational only
	ElementID    string    // First element that produced this task
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return &cp
}

// DependencyList joins the dependencies into the comma-separated form.
func (t *Task) DependencyList() string {
	return strings.Join(t.Dependencies, ",")
}

// CloneTasks deep copies a task slice. A nil input yields an empty slice.
func CloneTasks(tasks []*Task) []*Task {
	out := make([]*Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Clone())
	}
	return out
}

// ClampProgress forces a progress value into [0,100].
func ClampProgress(p int) int {
	return max(0, min(100, p))
}

// Associations maps a task id to the element ids that contributed to it.
type Associations map[string][]string

// Clone returns a deep copy.
func (a Associations) Clone() Associations {
	out := make(Associations, len(a))
	for taskID, elements := range a {
		out[taskID] = append([]string(nil), elements...)
	}
	return out
}

// Elements returns a copy of the elements associated with taskID.
func (a Associations) Elements(taskID string) []string {
	elements, ok := a[taskID]
	if !ok {
		return nil
	}
	return append([]string(nil), elements...)
}
