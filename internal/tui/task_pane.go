package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/phasing/internal/schedule"
)

// TaskPaneModel lists tasks with their status and shows the selected one.
type TaskPaneModel struct {
	tasks       []*schedule.Task
	assoc       schedule.Associations
	statuses    map[string]schedule.TaskStatus
	hasRef      bool
	styles      map[schedule.TaskStatus]lipgloss.Style
	selectedIdx int
	viewport    viewport.Model // selected task details
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel(styles map[schedule.TaskStatus]lipgloss.Style) TaskPaneModel {
	return TaskPaneModel{
		statuses: map[string]schedule.TaskStatus{},
		styles:   styles,
		viewport: viewport.New(0, 0),
		focused:  true,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.tasks)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}
	}

	return m, cmd
}

// SetTasks replaces the listed tasks, keeping the selection on the same id
// when it still exists.
func (m *TaskPaneModel) SetTasks(tasks []*schedule.Task, assoc schedule.Associations) {
	selected := m.SelectedTaskID()
	m.tasks = tasks
	m.assoc = assoc
	m.selectedIdx = 0
	for i, t := range tasks {
		if t.ID == selected {
			m.selectedIdx = i
			break
		}
	}
	m.updateViewportContent()
}

// SetStatuses records the statuses of the latest recomputation.
func (m *TaskPaneModel) SetStatuses(statuses map[string]schedule.TaskStatus, hasRef bool) {
	m.statuses = statuses
	m.hasRef = hasRef
	m.updateViewportContent()
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := max(m.width/2, 20)
	detailWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Tasks (%d)", len(m.tasks)))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(StyleStopped.Render("No tasks. Press r to build."))
		return lipgloss.NewStyle().Width(width).Height(m.height - 2).Render(b.String())
	}

	// Keep the selection on screen
	rows := max(m.height-6, 1)
	first := 0
	if m.selectedIdx >= rows {
		first = m.selectedIdx - rows + 1
	}
	last := min(first+rows, len(m.tasks))

	for i := first; i < last; i++ {
		task := m.tasks[i]
		name := task.Name
		if len(name) > width-6 && width > 9 {
			name = name[:width-9] + "..."
		}

		icon := " "
		if st, ok := m.statuses[task.ID]; ok && m.hasRef {
			icon = m.styles[st].Render(StatusIcon(st))
		}
		line := fmt.Sprintf("%s %s", icon, name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// SelectedTaskID returns the id of the highlighted task.
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.tasks) {
		return m.tasks[m.selectedIdx].ID
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.tasks) {
		m.viewport.SetContent("")
		return
	}
	task := m.tasks[m.selectedIdx]

	var b strings.Builder
	fmt.Fprintf(&b, "ID:       %s\n", task.ID)
	fmt.Fprintf(&b, "Name:     %s\n", task.Name)
	fmt.Fprintf(&b, "Start:    %s\n", task.Start.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "End:      %s\n", task.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Progress: %d%%\n", task.Progress)
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&b, "Depends:  %s\n", task.DependencyList())
	}
	if st, ok := m.statuses[task.ID]; ok && m.hasRef {
		fmt.Fprintf(&b, "Status:   %s\n", m.styles[st].Render(st.String()))
	}
	fmt.Fprintf(&b, "Elements: %d\n", len(m.assoc.Elements(task.ID)))

	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(m.width-max(m.width/2, 20)-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
