package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/phasing/internal/dateparse"
)

// DefaultBatchSize is the property query ceiling assumed for external sources.
const DefaultBatchSize = 400

// NameProperty is the property read for task names in date-only builds.
const NameProperty = "Name"

var (
	ErrIncompleteMapping = errors.New("incomplete field mapping")
	ErrNoScheduleData    = errors.New("no element produced a parseable date pair")
)

var progressPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// PropertyRow is one element's properties as returned by a PropertySource.
type PropertyRow struct {
	ElementID  string
	Properties map[string]string // display name -> text value
}

// PropertySource retrieves element properties. Implementations may fail per call.
type PropertySource interface {
	GetProperties(ctx context.Context, elementIDs []string, filter []string) ([]PropertyRow, error)
}

// BuildReason distinguishes the shapes a build can end in.
type BuildReason int

const (
	ReasonOK                BuildReason = iota // Tasks were produced
	ReasonIncompleteMapping                    // Required mapping fields are empty, nothing fetched
	ReasonNoScheduleData                       // Fetch succeeded but no element had parseable dates
)

func (r BuildReason) String() string {
	switch r {
	case ReasonOK:
		return "ok"
	case ReasonIncompleteMapping:
		return "incomplete-mapping"
	case ReasonNoScheduleData:
		return "no-schedule-data"
	default:
		return "unknown"
	}
}

// BatchError records a property batch that could not be retrieved.
type BatchError struct {
	Index int   // Batch position in input order
	Size  int   // Number of element ids in the batch
	Err   error // Underlying failure
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d elements): %v", e.Index, e.Size, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

// BuildResult is the outcome of a build. Tasks and Associations are never nil.
type BuildResult struct {
	Tasks         []*Task
	Associations  Associations
	Reason        BuildReason
	Missing       []string     // Missing mapping keys when Reason is ReasonIncompleteMapping
	FailedBatches []BatchError // Batches excluded from the result
	Scanned       int          // Elements whose properties were read
	Skipped       int          // Elements dropped for unparseable dates
}

// Err returns the sentinel for non-OK reasons, nil otherwise.
func (r *BuildResult) Err() error {
	switch r.Reason {
	case ReasonIncompleteMapping:
		return fmt.Errorf("%w: missing %s", ErrIncompleteMapping, strings.Join(r.Missing, ", "))
	case ReasonNoScheduleData:
		return ErrNoScheduleData
	}
	return nil
}

// BuilderConfig tunes property retrieval.
type BuilderConfig struct {
	BatchSize   int            // Element ids per property query (default 400)
	Concurrency int            // Batches in flight (default 4)
	Location    *time.Location // Zone for date-only values (default UTC)
}

// Builder turns element properties into tasks.
type Builder struct {
	src PropertySource
	cfg BuilderConfig
}

// NewBuilder creates a Builder reading from src.
func NewBuilder(src PropertySource, cfg BuilderConfig) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Builder{src: src, cfg: cfg}
}

// Build derives tasks for elementIDs according to mapping.
// The returned error is non-nil only when ctx ends before the build completes.
func (b *Builder) Build(ctx context.Context, mapping FieldMapping, elementIDs []string) (*BuildResult, error) {
	if missing := mapping.Missing(); len(missing) > 0 {
		return &BuildResult{
			Tasks:        []*Task{},
			Associations: Associations{},
			Reason:       ReasonIncompleteMapping,
			Missing:      missing,
		}, nil
	}

	rows, failed, err := b.fetch(ctx, elementIDs, mapping.PropertyFilter())
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Tasks:         []*Task{},
		Associations:  Associations{},
		FailedBatches: failed,
		Scanned:       len(rows),
	}

	byID := make(map[string]*Task)
	for _, row := range rows {
		task, ok := b.taskFromRow(mapping, row)
		if !ok {
			result.Skipped++
			continue
		}
		if _, exists := byID[task.ID]; !exists {
			byID[task.ID] = task
			result.Tasks = append(result.Tasks, task)
		}
		result.Associations[task.ID] = append(result.Associations[task.ID], row.ElementID)
	}

	if len(result.Tasks) == 0 {
		result.Reason = ReasonNoScheduleData
	}
	return result, nil
}

// BuildFromDateProperty creates one task per element from a single date
// property, ending durationDays later. Non-positive durations mean one day.
func (b *Builder) BuildFromDateProperty(ctx context.Context, property string, durationDays int, elementIDs []string) (*BuildResult, error) {
	if property == "" {
		return &BuildResult{
			Tasks:        []*Task{},
			Associations: Associations{},
			Reason:       ReasonIncompleteMapping,
			Missing:      []string{"startDate"},
		}, nil
	}
	if durationDays <= 0 {
		durationDays = 1
	}

	rows, failed, err := b.fetch(ctx, elementIDs, []string{property, NameProperty})
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Tasks:         []*Task{},
		Associations:  Associations{},
		FailedBatches: failed,
		Scanned:       len(rows),
	}
	for _, row := range rows {
		start, ok := dateparse.ParseIn(row.Properties[property], b.cfg.Location)
		if !ok {
			result.Skipped++
			continue
		}
		if _, exists := result.Associations[row.ElementID]; exists {
			continue
		}
		result.Tasks = append(result.Tasks, &Task{
			ID:           row.ElementID,
			Name:         fallbackName(row.Properties[NameProperty], row.ElementID),
			Start:        start,
			End:          start.AddDate(0, 0, durationDays),
			Dependencies: []string{},
			ElementID:    row.ElementID,
		})
		result.Associations[row.ElementID] = []string{row.ElementID}
	}

	if len(result.Tasks) == 0 {
		result.Reason = ReasonNoScheduleData
	}
	return result, nil
}

// fetch retrieves properties batch by batch and returns the rows ordered by
// each element's first position in elementIDs, independent of completion order.
func (b *Builder) fetch(ctx context.Context, elementIDs []string, filter []string) ([]PropertyRow, []BatchError, error) {
	batches := chunk(elementIDs, b.cfg.BatchSize)
	results := make([][]PropertyRow, len(batches))
	errs := make([]error, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := b.src.GetProperties(gctx, batch, filter)
			if err != nil {
				errs[i] = err
				return nil // Failed batches are excluded, not fatal
			}
			results[i] = rows
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	failed := []BatchError{}
	for i, err := range errs {
		if err == nil {
			continue
		}
		log.Printf("WARNING: property batch %d (%d elements) failed: %v", i, len(batches[i]), err)
		failed = append(failed, BatchError{Index: i, Size: len(batches[i]), Err: err})
	}

	position := make(map[string]int, len(elementIDs))
	for i, id := range elementIDs {
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}

	merged := []PropertyRow{}
	seen := make(map[string]bool)
	for _, rows := range results {
		for _, row := range rows {
			if _, requested := position[row.ElementID]; !requested || seen[row.ElementID] {
				continue
			}
			seen[row.ElementID] = true
			merged = append(merged, row)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return position[merged[i].ElementID] < position[merged[j].ElementID]
	})

	return merged, failed, nil
}

// taskFromRow maps one element to a task. ok is false when either date is unusable.
func (b *Builder) taskFromRow(mapping FieldMapping, row PropertyRow) (*Task, bool) {
	start, ok := dateparse.ParseIn(lookup(row, mapping.StartDate), b.cfg.Location)
	if !ok {
		return nil, false
	}
	end, ok := dateparse.ParseIn(lookup(row, mapping.EndDate), b.cfg.Location)
	if !ok {
		return nil, false
	}

	id := strings.TrimSpace(lookup(row, mapping.ID))
	if id == "" {
		id = row.ElementID
	}

	return &Task{
		ID:           id,
		Name:         fallbackName(lookup(row, mapping.Name), row.ElementID),
		Start:        start,
		End:          end,
		Progress:     ParseProgress(lookup(row, mapping.Progress)),
		Dependencies: ParseDependencies(lookup(row, mapping.Dependencies)),
		ElementID:    row.ElementID,
	}, true
}

// ParseProgress reads the first number in text, rounded and clamped to [0,100].
// Missing or non-numeric text is 0.
func ParseProgress(text string) int {
	match := progressPattern.FindString(text)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return ClampProgress(int(math.Round(v)))
}

// ParseDependencies splits a dependency list on commas, semicolons, pipes,
// slashes and whitespace.
func ParseDependencies(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', ';', '|', '/':
			return true
		}
		return unicode.IsSpace(r)
	})
}

func lookup(row PropertyRow, property string) string {
	if property == "" {
		return ""
	}
	return row.Properties[property]
}

func fallbackName(name, elementID string) string {
	if strings.TrimSpace(name) == "" {
		return "Element " + elementID
	}
	return name
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
