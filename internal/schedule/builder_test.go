package schedule

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeSource implements PropertySource over an in-memory table.
type fakeSource struct {
	rows    map[string]map[string]string
	failIDs map[string]bool
	delay   func(batch []string) time.Duration
	reverse bool

	mu      sync.Mutex
	batches [][]string
	filters [][]string
}

func (f *fakeSource) GetProperties(ctx context.Context, ids []string, filter []string) ([]PropertyRow, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.filters = append(f.filters, append([]string(nil), filter...))
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(ids)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, id := range ids {
		if f.failIDs[id] {
			return nil, fmt.Errorf("query failed for %s", id)
		}
	}

	rows := []PropertyRow{}
	for _, id := range ids {
		props, ok := f.rows[id]
		if !ok {
			continue
		}
		rows = append(rows, PropertyRow{ElementID: id, Properties: props})
	}
	if f.reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, nil
}

var markMapping = FieldMapping{ID: "Mark", Name: "Name", StartDate: "Start", EndDate: "Finish", Progress: "% Complete", Dependencies: "Predecessors"}

func TestBuild_FirstElementWins(t *testing.T) {
	src := &fakeSource{rows: map[string]map[string]string{
		"elemA": {"Mark": "W1", "Start": "2024-01-01", "Finish": "2024-01-10", "% Complete": "50"},
		"elemB": {"Mark": "W1", "Start": "2024-01-02", "Finish": "2024-01-11", "% Complete": "90"},
	}}
	mapping := FieldMapping{ID: "Mark", StartDate: "Start", EndDate: "Finish", Progress: "% Complete"}

	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), mapping, []string{"elemA", "elemB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != ReasonOK {
		t.Fatalf("reason = %v, want ok", result.Reason)
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(result.Tasks))
	}

	task := result.Tasks[0]
	if task.ID != "W1" {
		t.Errorf("ID = %q, want W1", task.ID)
	}
	if !task.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", task.Start)
	}
	if !task.End.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", task.End)
	}
	if task.Progress != 50 {
		t.Errorf("Progress = %d, want 50", task.Progress)
	}
	if task.Name != "Element elemA" {
		t.Errorf("Name = %q, want fallback", task.Name)
	}
	if got := result.Associations["W1"]; !reflect.DeepEqual(got, []string{"elemA", "elemB"}) {
		t.Errorf("associations = %v, want [elemA elemB]", got)
	}
}

func TestBuild_IncompleteMapping(t *testing.T) {
	src := &fakeSource{}
	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), FieldMapping{ID: "Mark"}, []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != ReasonIncompleteMapping {
		t.Fatalf("reason = %v, want incomplete mapping", result.Reason)
	}
	if !reflect.DeepEqual(result.Missing, []string{"startDate", "endDate"}) {
		t.Errorf("missing = %v", result.Missing)
	}
	if !errors.Is(result.Err(), ErrIncompleteMapping) {
		t.Errorf("Err() = %v, want ErrIncompleteMapping", result.Err())
	}
	if len(src.batches) != 0 {
		t.Errorf("source queried %d times before mapping was complete", len(src.batches))
	}
}

func TestBuild_NoScheduleData(t *testing.T) {
	src := &fakeSource{rows: map[string]map[string]string{
		"a": {"Mark": "W1", "Start": "soon", "Finish": "2024-01-10"},
		"b": {"Mark": "W2", "Start": "2024-01-01"},
	}}
	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), markMapping, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != ReasonNoScheduleData {
		t.Fatalf("reason = %v, want no schedule data", result.Reason)
	}
	if result.Tasks == nil || len(result.Tasks) != 0 {
		t.Errorf("tasks = %v, want empty slice", result.Tasks)
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}
	if !errors.Is(result.Err(), ErrNoScheduleData) {
		t.Errorf("Err() = %v", result.Err())
	}
}

func TestBuild_FieldParsing(t *testing.T) {
	src := &fakeSource{rows: map[string]map[string]string{
		"e1": {"Name": "Pour slab", "Start": "20240301", "Finish": "24.03.15", "% Complete": "  87.6 %", "Predecessors": "A1; B2 | C3/D4  E5"},
		"e2": {"Start": "2024-03-01", "Finish": "2024-03-02", "% Complete": "250"},
		"e3": {"Mark": "X", "Start": "2024-03-01", "Finish": "2024-03-02", "% Complete": "-5"},
	}}
	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), markMapping, []string{"e1", "e2", "e3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(result.Tasks))
	}

	e1 := result.Tasks[0]
	if e1.ID != "e1" {
		t.Errorf("id fallback: got %q, want e1", e1.ID)
	}
	if e1.Name != "Pour slab" {
		t.Errorf("name = %q", e1.Name)
	}
	if e1.Progress != 88 {
		t.Errorf("progress = %d, want 88", e1.Progress)
	}
	if !reflect.DeepEqual(e1.Dependencies, []string{"A1", "B2", "C3", "D4", "E5"}) {
		t.Errorf("dependencies = %v", e1.Dependencies)
	}
	if e1.DependencyList() != "A1,B2,C3,D4,E5" {
		t.Errorf("dependency list = %q", e1.DependencyList())
	}
	if !e1.End.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", e1.End)
	}

	if result.Tasks[1].Progress != 100 {
		t.Errorf("progress clamp high: got %d", result.Tasks[1].Progress)
	}
	if result.Tasks[2].Progress != 0 {
		t.Errorf("progress clamp low: got %d", result.Tasks[2].Progress)
	}
	if len(result.Tasks[1].Dependencies) != 0 {
		t.Errorf("missing dependencies should be empty, got %v", result.Tasks[1].Dependencies)
	}
}

func TestBuild_BatchesAndFilter(t *testing.T) {
	rows := make(map[string]map[string]string)
	ids := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("e%04d", i)
		ids = append(ids, id)
		rows[id] = map[string]string{"Mark": id, "Start": "2024-01-01", "Finish": "2024-01-05"}
	}
	src := &fakeSource{rows: rows}

	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), markMapping, ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(src.batches))
	}
	sizes := map[int]int{}
	for _, b := range src.batches {
		sizes[len(b)]++
	}
	if sizes[400] != 2 || sizes[200] != 1 {
		t.Errorf("unexpected batch sizes: %v", sizes)
	}
	wantFilter := []string{"Mark", "Name", "Start", "Finish", "% Complete", "Predecessors"}
	if !reflect.DeepEqual(src.filters[0], wantFilter) {
		t.Errorf("filter = %v, want %v", src.filters[0], wantFilter)
	}
	if len(result.Tasks) != 1000 {
		t.Errorf("got %d tasks, want 1000", len(result.Tasks))
	}
}

func TestBuild_FailedBatchExcluded(t *testing.T) {
	rows := map[string]map[string]string{}
	ids := []string{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("e%d", i)
		ids = append(ids, id)
		rows[id] = map[string]string{"Mark": id, "Start": "2024-01-01", "Finish": "2024-01-05"}
	}
	src := &fakeSource{rows: rows, failIDs: map[string]bool{"e2": true}}

	result, err := NewBuilder(src, BuilderConfig{BatchSize: 2}).Build(context.Background(), markMapping, ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.FailedBatches) != 1 {
		t.Fatalf("failed batches = %d, want 1", len(result.FailedBatches))
	}
	if fb := result.FailedBatches[0]; fb.Index != 1 || fb.Size != 2 {
		t.Errorf("failed batch = %+v", fb)
	}
	var got []string
	for _, task := range result.Tasks {
		got = append(got, task.ID)
	}
	if !reflect.DeepEqual(got, []string{"e0", "e1", "e4", "e5"}) {
		t.Errorf("tasks = %v", got)
	}
	if result.Reason != ReasonOK {
		t.Errorf("reason = %v", result.Reason)
	}
}

func TestBuild_DeterministicAcrossCompletionOrder(t *testing.T) {
	rows := map[string]map[string]string{}
	ids := []string{}
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("e%02d", i)
		ids = append(ids, id)
		rows[id] = map[string]string{
			"Mark":       fmt.Sprintf("T%d", i%7),
			"Start":      fmt.Sprintf("2024-01-%02d", 1+i%20),
			"Finish":     "2024-02-01",
			"% Complete": fmt.Sprintf("%d", i),
		}
	}

	// Earlier batches finish last in the first run
	slowFirst := &fakeSource{rows: rows, reverse: true, delay: func(batch []string) time.Duration {
		if batch[0] < "e20" {
			return 20 * time.Millisecond
		}
		return 0
	}}
	sequential := &fakeSource{rows: rows}

	a, err := NewBuilder(slowFirst, BuilderConfig{BatchSize: 5, Concurrency: 8}).Build(context.Background(), markMapping, ids)
	if err != nil {
		t.Fatalf("concurrent build: %v", err)
	}
	b, err := NewBuilder(sequential, BuilderConfig{BatchSize: 3, Concurrency: 1}).Build(context.Background(), markMapping, ids)
	if err != nil {
		t.Fatalf("sequential build: %v", err)
	}

	if !reflect.DeepEqual(a.Tasks, b.Tasks) {
		t.Errorf("task sets differ between runs")
	}
	if !reflect.DeepEqual(a.Associations, b.Associations) {
		t.Errorf("associations differ: %v vs %v", a.Associations, b.Associations)
	}
	if a.Tasks[0].ElementID != "e00" {
		t.Errorf("first task owner = %s, want e00", a.Tasks[0].ElementID)
	}
}

func TestBuild_ContextCancelled(t *testing.T) {
	src := &fakeSource{
		rows:  map[string]map[string]string{"a": {"Mark": "A", "Start": "2024-01-01", "Finish": "2024-01-02"}},
		delay: func([]string) time.Duration { return time.Second },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := NewBuilder(src, BuilderConfig{}).Build(ctx, markMapping, []string{"a"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if result != nil {
		t.Errorf("expected no partial result, got %+v", result)
	}
}

func TestBuild_IgnoresUnrequestedRows(t *testing.T) {
	src := &stubSource{rows: []PropertyRow{
		{ElementID: "stranger", Properties: map[string]string{"Mark": "S", "Start": "2024-01-01", "Finish": "2024-01-02"}},
		{ElementID: "a", Properties: map[string]string{"Mark": "A", "Start": "2024-01-01", "Finish": "2024-01-02"}},
	}}
	result, err := NewBuilder(src, BuilderConfig{}).Build(context.Background(), markMapping, []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tasks) != 1 || result.Tasks[0].ID != "A" {
		t.Errorf("tasks = %+v", result.Tasks)
	}
}

type stubSource struct{ rows []PropertyRow }

func (s *stubSource) GetProperties(context.Context, []string, []string) ([]PropertyRow, error) {
	return s.rows, nil
}

func TestBuildFromDateProperty(t *testing.T) {
	src := &fakeSource{rows: map[string]map[string]string{
		"1": {"Install": "2024-05-01", "Name": "Column C1"},
		"2": {"Install": "n/a"},
		"3": {"Install": "2024-05-03"},
	}}
	result, err := NewBuilder(src, BuilderConfig{}).BuildFromDateProperty(context.Background(), "Install", 3, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(result.Tasks))
	}
	first := result.Tasks[0]
	if first.ID != "1" || first.Name != "Column C1" {
		t.Errorf("first task = %+v", first)
	}
	if !first.End.Equal(time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v, want start + 3 days", first.End)
	}
	if result.Tasks[1].Name != "Element 3" {
		t.Errorf("name fallback = %q", result.Tasks[1].Name)
	}
	if !reflect.DeepEqual(result.Associations["3"], []string{"3"}) {
		t.Errorf("associations = %v", result.Associations)
	}
	if !reflect.DeepEqual(src.filters[0], []string{"Install", NameProperty}) {
		t.Errorf("filter = %v", src.filters[0])
	}
}

func TestParseProgress(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"abc":      0,
		"50":       50,
		"49.5":     50,
		"approx 7": 7,
		"100%":     100,
		"101":      100,
		"-3":       0,
	}
	for in, want := range cases {
		if got := ParseProgress(in); got != want {
			t.Errorf("ParseProgress(%q) = %d, want %d", in, got, want)
		}
	}
}
