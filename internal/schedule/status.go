package schedule

import "time"

// Classify derives the status of task at ref. Boundaries are inclusive:
// a task has started once ref reaches Start and finished once ref reaches End.
//
// Advanced covers both early work on a task whose window has not opened and
// full completion inside an open window; callers cannot tell them apart.
func Classify(task *Task, ref time.Time) TaskStatus {
	started := !ref.Before(task.Start)
	finished := !ref.Before(task.End)
	progress := task.Progress

	switch {
	case started && finished && progress == 100:
		return Finished
	case !started && progress > 0:
		return Advanced
	case !started && progress == 0:
		return NotYetStarted
	case started && !finished:
		if progress == 0 {
			return Late
		}
		if progress == 100 {
			return Advanced
		}
		return InProgress
	case started && finished && progress < 100:
		return Late
	}
	return InProgress
}

// ClassifyAll classifies every task at ref, keyed by task id.
func ClassifyAll(tasks []*Task, ref time.Time) map[string]TaskStatus {
	out := make(map[string]TaskStatus, len(tasks))
	for _, task := range tasks {
		out[task.ID] = Classify(task, ref)
	}
	return out
}

// ElementStatuses expands task statuses onto their associated elements.
func ElementStatuses(tasks []*Task, assoc Associations, ref time.Time) map[string]TaskStatus {
	out := make(map[string]TaskStatus)
	for _, task := range tasks {
		status := Classify(task, ref)
		for _, elementID := range assoc[task.ID] {
			out[elementID] = status
		}
	}
	return out
}
