package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/session"
	"github.com/aristath/phasing/internal/timeline"
)

// PlaybackPaneModel shows the clock and a ruler over the task bounds.
type PlaybackPaneModel struct {
	frame     playback.Frame
	full      timeline.Bounds
	hasBounds bool
	highlight playback.Range
	dragging  bool
	counts    map[schedule.TaskStatus]int
	styles    map[schedule.TaskStatus]lipgloss.Style
	display   bool
	theme     session.Theme
	width     int
	height    int
}

// NewPlaybackPaneModel creates a playback pane.
func NewPlaybackPaneModel(styles map[schedule.TaskStatus]lipgloss.Style) PlaybackPaneModel {
	return PlaybackPaneModel{
		counts:  map[schedule.TaskStatus]int{},
		styles:  styles,
		display: true,
		theme:   session.Theme{Clear: true},
	}
}

// SetFrame records the latest clock state.
func (m *PlaybackPaneModel) SetFrame(frame playback.Frame) {
	m.frame = frame
}

// SetBounds records the full task bounds the ruler spans.
func (m *PlaybackPaneModel) SetBounds(b timeline.Bounds, ok bool) {
	m.full = b
	m.hasBounds = ok
}

// SetDrag shows a range selection in progress.
func (m *PlaybackPaneModel) SetDrag(highlight playback.Range, dragging bool) {
	m.highlight = highlight
	m.dragging = dragging
}

// SetStatuses tallies task statuses for the legend.
func (m *PlaybackPaneModel) SetStatuses(statuses map[string]schedule.TaskStatus, display bool) {
	m.counts = make(map[schedule.TaskStatus]int)
	for _, st := range statuses {
		m.counts[st]++
	}
	m.display = display
}

// SetTheme records the element theming a viewer would apply.
func (m *PlaybackPaneModel) SetTheme(theme session.Theme) {
	m.theme = theme
}

// View renders the playback pane.
func (m PlaybackPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Playback")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if !m.frame.Enabled {
		b.WriteString(StyleStopped.Render("Timeline unavailable: no task spans any time"))
		return StyleUnfocusedBorder.Width(m.width - 2).Height(m.height - 2).Render(b.String())
	}

	state := StyleStopped.Render(m.frame.State.String())
	if m.frame.State == playback.Running {
		state = StyleRunning.Render(m.frame.State.String())
	}
	ref := "-"
	if m.frame.HasRef {
		ref = m.frame.Reference.Format("Mon 2006-01-02")
	}
	b.WriteString(fmt.Sprintf("Date:   %s\n", ref))
	b.WriteString(fmt.Sprintf("State:  %s  x%d\n", state, m.frame.Speed))
	if m.frame.HasRange {
		b.WriteString(fmt.Sprintf("Range:  %s\n", StyleRange.Render(fmt.Sprintf("%s .. %s",
			m.frame.Range.Start.Format("2006-01-02"), m.frame.Range.End.Format("2006-01-02")))))
	}
	if !m.theme.Clear {
		b.WriteString(fmt.Sprintf("Shown:  %d elements, %d hidden\n", len(m.theme.Isolate), len(m.theme.Hidden)))
	}
	if !m.display {
		b.WriteString(StyleStopped.Render("Colors off"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderRuler(max(m.width-6, 10)))
	b.WriteString("\n\n")

	var legend []string
	for _, st := range schedule.Statuses {
		if n := m.counts[st]; n > 0 {
			legend = append(legend, m.styles[st].Render(fmt.Sprintf("%s %s %d", StatusIcon(st), st, n)))
		}
	}
	b.WriteString(strings.Join(legend, "  "))

	return StyleUnfocusedBorder.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// renderRuler draws the full bounds as width cells with the range shaded and
// the reference marked.
func (m PlaybackPaneModel) renderRuler(width int) string {
	if !m.hasBounds {
		return ""
	}
	tl := timeline.New(m.full, float64(width-1))
	if tl.Degenerate() {
		return ""
	}

	cells := make([]string, width)
	for i := range cells {
		cells[i] = "─"
	}

	shade := func(r playback.Range) {
		from := int(tl.ToCoordinate(r.Start) + 0.5)
		to := int(tl.ToCoordinate(r.End) + 0.5)
		for i := max(from, 0); i <= min(to, width-1); i++ {
			cells[i] = StyleRange.Render("━")
		}
	}
	if m.frame.HasRange {
		shade(m.frame.Range)
	}
	if m.dragging {
		shade(m.highlight)
	}
	if m.frame.HasRef {
		at := int(tl.ToCoordinate(m.frame.Reference) + 0.5)
		if at >= 0 && at < width {
			cells[at] = StyleRunning.Render("▲")
		}
	}

	start := m.full.Min.Format("2006-01-02")
	end := m.full.Max.Format("2006-01-02")
	gap := max(width-len(start)-len(end), 1)
	return strings.Join(cells, "") + "\n" + start + strings.Repeat(" ", gap) + end
}

// SetSize updates the pane dimensions.
func (m *PlaybackPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}
