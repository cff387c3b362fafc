package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/source"
)

// DateLayout formats instants in tables.
const DateLayout = "2006-01-02"

var statusAttrs = map[schedule.TaskStatus]color.Attribute{
	schedule.NotYetStarted: color.FgHiBlack,
	schedule.Advanced:      color.FgBlue,
	schedule.InProgress:    color.FgYellow,
	schedule.Late:          color.FgRed,
	schedule.Finished:      color.FgGreen,
}

// Printer writes tables to Out.
type Printer struct {
	Out      io.Writer
	Colorize bool
}

// New creates a printer writing to color.Output, the terminal-aware stdout.
func New(colorize bool) *Printer {
	return &Printer{Out: color.Output, Colorize: colorize}
}

func (p *Printer) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if !p.Colorize {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p *Printer) bold(s string) string {
	return p.paint(color.Bold, s)
}

func (p *Printer) table() *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = "  "
	return tbl
}

// Title prints an underlined heading.
func (p *Printer) Title(s string) {
	c := color.New(color.Bold, color.Underline)
	if !p.Colorize {
		c.DisableColor()
	}
	_, _ = fmt.Fprintln(p.Out, c.Sprint(s))
}

// Status prints one colored row per task. Without a reference the status
// column is left empty.
func (p *Printer) Status(tasks []*schedule.Task, statuses map[string]schedule.TaskStatus, ref time.Time, hasRef bool) {
	if hasRef {
		p.Title("Status at " + ref.Format(DateLayout))
	} else {
		p.Title("Tasks")
	}

	tbl := p.table()
	tbl.AddRow(p.bold("ID"), p.bold("Name"), p.bold("Start"), p.bold("End"), p.bold("Progress"), p.bold("Status"))
	for _, task := range tasks {
		status := ""
		if st, ok := statuses[task.ID]; ok && hasRef {
			status = p.paint(statusAttrs[st], st.String())
		}
		tbl.AddRow(task.ID, task.Name, task.Start.Format(DateLayout), task.End.Format(DateLayout),
			fmt.Sprintf("%d%%", task.Progress), status)
	}
	_, _ = fmt.Fprintln(p.Out, tbl)
}

// Summary prints totals per status.
func (p *Printer) Summary(statuses map[string]schedule.TaskStatus) {
	counts := make(map[schedule.TaskStatus]int)
	for _, st := range statuses {
		counts[st]++
	}
	tbl := p.table()
	for _, st := range schedule.Statuses {
		tbl.AddRow(p.paint(statusAttrs[st], st.String()), counts[st])
	}
	_, _ = fmt.Fprintln(p.Out, tbl)
}

// Build prints the outcome of a build.
func (p *Printer) Build(result *schedule.BuildResult, elapsed time.Duration) {
	tbl := p.table()
	tbl.AddRow(p.bold("Result"), result.Reason.String())
	if len(result.Missing) > 0 {
		tbl.AddRow(p.bold("Missing"), strings.Join(result.Missing, ", "))
	}
	tbl.AddRow(p.bold("Tasks"), len(result.Tasks))
	tbl.AddRow(p.bold("Elements read"), result.Scanned)
	tbl.AddRow(p.bold("Skipped"), result.Skipped)
	if len(result.FailedBatches) > 0 {
		tbl.AddRow(p.bold("Failed batches"), p.paint(color.FgRed, fmt.Sprint(len(result.FailedBatches))))
	}
	tbl.AddRow(p.bold("Duration"), elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintln(p.Out, tbl)
}

// Snapshots lists snapshot names, marking the active one.
func (p *Printer) Snapshots(names []string, active string) {
	if len(names) == 0 {
		_, _ = fmt.Fprintln(p.Out, "No snapshots")
		return
	}
	tbl := p.table()
	for i, name := range names {
		marker := " "
		if name == active {
			marker = p.paint(color.FgGreen, "*")
		}
		tbl.AddRow(marker, i+1, name)
	}
	_, _ = fmt.Fprintln(p.Out, tbl)
}

// Properties prints the property catalog grouped by category.
func (p *Printer) Properties(catalog source.Catalog) {
	tbl := p.table()
	tbl.MaxColWidth = 40
	tbl.AddRow(p.bold("Category"), p.bold("Property"), p.bold("Sample"), p.bold("Units"))
	for _, meta := range catalog.Properties {
		tbl.AddRow(meta.Category, meta.Name, meta.SampleValue, meta.Units)
	}
	_, _ = fmt.Fprintln(p.Out, tbl)
}

// Dependencies prints a dependency report.
func (p *Printer) Dependencies(report schedule.DependencyReport) {
	if report.Clean() {
		_, _ = fmt.Fprintln(p.Out, p.paint(color.FgGreen, "All dependencies resolve"))
	}
	if report.Cycle != nil {
		_, _ = fmt.Fprintln(p.Out, p.paint(color.FgRed, report.Cycle.Error()))
	}

	if len(report.Unknown) > 0 {
		ids := make([]string, 0, len(report.Unknown))
		for id := range report.Unknown {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tbl := p.table()
		tbl.AddRow(p.bold("Task"), p.bold("Unknown references"))
		for _, id := range ids {
			tbl.AddRow(id, p.paint(color.FgYellow, strings.Join(report.Unknown[id], ", ")))
		}
		_, _ = fmt.Fprintln(p.Out, tbl)
	}

	if len(report.Order) > 0 {
		_, _ = fmt.Fprintln(p.Out, p.bold("Order:"), strings.Join(report.Order, " > "))
	}
}

// Frame prints one playback transition as a single line.
func (p *Printer) Frame(frame playback.Frame, statuses map[string]schedule.TaskStatus) {
	counts := make(map[schedule.TaskStatus]int)
	for _, st := range statuses {
		counts[st]++
	}
	parts := make([]string, 0, len(schedule.Statuses))
	for _, st := range schedule.Statuses {
		if counts[st] > 0 {
			parts = append(parts, p.paint(statusAttrs[st], fmt.Sprintf("%s=%d", st, counts[st])))
		}
	}

	ref := "-"
	if frame.HasRef {
		ref = frame.Reference.Format(DateLayout)
	}
	_, _ = fmt.Fprintf(p.Out, "%s  %-7s  x%-2d  %s\n", ref, frame.State, frame.Speed, strings.Join(parts, " "))
}
