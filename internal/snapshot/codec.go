package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/phasing/internal/schedule"
)

// timeLayout stores instants with full precision and their UTC offset, so a
// date-only value built at local midnight keeps its calendar day.
const timeLayout = time.RFC3339Nano

type taskRecord struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Progress     int      `json:"progress"`
	Dependencies []string `json:"dependencies"`
	ElementID    string   `json:"elementId"`
}

type snapshotRecord struct {
	Name         string              `json:"name"`
	SavedAt      string              `json:"savedAt"`
	Tasks        []taskRecord        `json:"tasks"`
	Associations map[string][]string `json:"associations"`
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func toTaskRecord(task *schedule.Task) taskRecord {
	return taskRecord{
		ID:           task.ID,
		Name:         task.Name,
		Start:        formatTime(task.Start),
		End:          formatTime(task.End),
		Progress:     task.Progress,
		Dependencies: task.Dependencies,
		ElementID:    task.ElementID,
	}
}

func fromTaskRecord(rec taskRecord) (*schedule.Task, error) {
	start, err := parseTime(rec.Start)
	if err != nil {
		return nil, fmt.Errorf("task %s start: %w", rec.ID, err)
	}
	end, err := parseTime(rec.End)
	if err != nil {
		return nil, fmt.Errorf("task %s end: %w", rec.ID, err)
	}
	return &schedule.Task{
		ID:           rec.ID,
		Name:         rec.Name,
		Start:        start,
		End:          end,
		Progress:     rec.Progress,
		Dependencies: rec.Dependencies,
		ElementID:    rec.ElementID,
	}, nil
}

// encode serializes a snapshot as JSON.
func encode(snap *Snapshot) ([]byte, error) {
	rec := snapshotRecord{
		Name:         snap.Name,
		SavedAt:      formatTime(snap.SavedAt),
		Tasks:        make([]taskRecord, 0, len(snap.Tasks)),
		Associations: snap.Associations,
	}
	for _, task := range snap.Tasks {
		rec.Tasks = append(rec.Tasks, toTaskRecord(task))
	}
	return json.Marshal(rec)
}

// decode parses a snapshot written by encode.
func decode(data []byte) (*Snapshot, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	savedAt, err := parseTime(rec.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s saved_at: %w", rec.Name, err)
	}

	snap := &Snapshot{
		Name:         rec.Name,
		Tasks:        make([]*schedule.Task, 0, len(rec.Tasks)),
		Associations: schedule.Associations(rec.Associations),
		SavedAt:      savedAt,
	}
	if snap.Associations == nil {
		snap.Associations = schedule.Associations{}
	}
	for _, tr := range rec.Tasks {
		task, err := fromTaskRecord(tr)
		if err != nil {
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, task)
	}
	return snap, nil
}
