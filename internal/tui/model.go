package tui

import (
	"context"
	"fmt"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/session"
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane          TaskPaneModel
	playbackPane      PlaybackPaneModel
	settingsPane      SettingsPaneModel
	session           *session.Session
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	message           string
	dragCursor        time.Time // Live end of a range drag; may leave the active range
	config            *config.PhasingConfig
	globalConfigPath  string
	projectConfigPath string
}

// buildDoneMsg carries the outcome of a background build.
type buildDoneMsg struct {
	result *schedule.BuildResult
	err    error
}

// errMsg reports a failed background action.
type errMsg struct{ err error }

// infoMsg sets the status line.
type infoMsg string

// It subscribes to every topic on the event bus.
// It subscribes to all events from the event bus on every topic.
func New(sess *session.Session, eventBus *events.EventBus, cfg *config.PhasingConfig, properties []string, globalPath, projectPath string) Model {
	styles := StatusStyles(cfg)
	m := Model{
		taskPane:          NewTaskPaneModel(styles),
		playbackPane:      NewPlaybackPaneModel(styles),
		settingsPane:      NewSettingsPaneModel(cfg, properties, globalPath, projectPath),
		session:           sess,
		eventSub:          eventBus.Subscribe(256),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
	m.refreshTasks()
	m.refreshStatus()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings are modal
		if m.showSettings {
			if msg.String() == KeyEsc {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case settingsSavedMsg:
		m.applySettings()

	case buildDoneMsg:
		switch {
		case msg.err != nil:
			m.message = StyleError.Render(msg.err.Error())
		case msg.result.Reason != schedule.ReasonOK:
			m.message = StyleError.Render(msg.result.Err().Error())
		default:
			m.message = fmt.Sprintf("Built %d tasks from %d elements", len(msg.result.Tasks), msg.result.Scanned)
			if n := len(msg.result.FailedBatches); n > 0 {
				m.message += StyleError.Render(fmt.Sprintf(" (%d batches failed)", n))
			}
		}

	case errMsg:
		m.message = StyleError.Render(msg.err.Error())

	case infoMsg:
		m.message = string(msg)

	case events.StatusEvent:
		m.taskPane.SetStatuses(msg.Tasks, msg.HasRef)
		m.playbackPane.SetStatuses(msg.Tasks, m.session.Display())
		m.playbackPane.SetTheme(session.NewTheme(msg, m.config.StatusColor))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.PlaybackEvent:
		m.playbackPane.SetFrame(msg.Frame)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TasksReplacedEvent, events.TaskEditedEvent:
		m.refreshTasks()
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.SnapshotEvent:
		if msg.Loaded {
			m.message = "Loaded " + msg.Name
		} else {
			m.message = "Saved " + msg.Name
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.FocusEvent:
		m.message = fmt.Sprintf("Focused %s (%d elements)", msg.ID, len(msg.Elements))
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.Event:
		// Consume and wait for the next one
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error

	switch key := msg.String(); key {
	case KeyQuit, KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case KeySettings:
		m.showSettings = true
		m.settingsPane.SetVisible(true)
		return m, m.settingsPane.Init()

	case KeyPlay:
		err = m.session.Toggle()

	case KeyBack, KeyLeft, KeyForward, KeyRight:
		days := 1
		if key == KeyBack || key == KeyLeft {
			days = -1
		}
		err = m.move(days)

	case KeyFaster, KeySlower:
		err = m.session.SetSpeed(nextSpeed(m.session.Frame().Speed, key == KeyFaster))

	case KeyRange:
		err = m.toggleRange()

	case KeyEsc:
		m.session.CancelRange()
		m.playbackPane.SetDrag(playback.Range{}, false)

	case KeyClearRange:
		m.session.ClearRange()

	case KeyColors:
		m.session.SetDisplay(!m.session.Display())

	case KeySave:
		return m, m.saveSnapshot()

	case KeyNext:
		return m, m.loadNextSnapshot()

	case KeyRebuild:
		m.message = "Building..."
		return m, m.build()

	case KeyFocus:
		if id := m.taskPane.SelectedTaskID(); id != "" {
			_, err = m.session.ResolveElements(id)
		}

	default:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		return m, cmd
	}

	if err != nil {
		m.message = StyleError.Render(err.Error())
	}
	m.playbackPane.SetFrame(m.session.Frame())
	return m, nil
}

// move steps the reference by days, extending a drag in progress.
func (m *Model) move(days int) error {
	if !m.session.Dragging() {
		return m.session.Step(days)
	}
	cursor := m.dragCursor.Add(time.Duration(days) * playback.StepSize)
	if tl, err := m.session.Timeline(1); err == nil {
		cursor = tl.Bounds.Clamp(cursor)
	}
	highlight, ok := m.session.MoveRange(cursor)
	if ok {
		m.dragCursor = cursor
		m.playbackPane.SetDrag(highlight, true)
	}
	return nil
}

// toggleRange starts a drag at the reference, or finishes the one in progress.
func (m *Model) toggleRange() error {
	frame := m.session.Frame()
	if !m.session.Dragging() {
		if err := m.session.BeginRange(frame.Reference); err != nil {
			return err
		}
		m.dragCursor = frame.Reference
		m.playbackPane.SetDrag(playback.NewRange(frame.Reference, frame.Reference), true)
		return nil
	}

	m.playbackPane.SetDrag(playback.Range{}, false)
	if !m.session.ReleaseRange(m.dragCursor) {
		m.message = "Range shorter than a day, ignored"
	}
	return nil
}

func nextSpeed(current int, faster bool) int {
	i := slices.Index(playback.Speeds, current)
	switch {
	case i < 0:
		return playback.Speeds[0]
	case faster && i < len(playback.Speeds)-1:
		return playback.Speeds[i+1]
	case !faster && i > 0:
		return playback.Speeds[i-1]
	}
	return current
}

func (m Model) build() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		result, err := sess.Build(context.Background())
		return buildDoneMsg{result: result, err: err}
	}
}

func (m Model) saveSnapshot() tea.Cmd {
	sess := m.session
	frame := sess.Frame()
	at := time.Now()
	if frame.HasRef {
		at = frame.Reference
	}
	name := session.WeekLabel(at)
	return func() tea.Msg {
		if err := sess.SaveSnapshot(context.Background(), name); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) loadNextSnapshot() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx := context.Background()
		names, err := sess.Snapshots(ctx)
		if err != nil {
			return errMsg{err}
		}
		if len(names) == 0 {
			return infoMsg("No snapshots")
		}
		next := names[(slices.Index(names, sess.ActiveSnapshot())+1)%len(names)]
		if err := sess.LoadSnapshot(ctx, next); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// applySettings pushes saved settings into the session.
func (m *Model) applySettings() {
	m.session.SetMapping(m.config.Mapping)
	if err := m.session.SetSpeed(m.config.Playback.Speed); err != nil {
		m.message = StyleError.Render(err.Error())
		return
	}
	m.session.SetDisplay(m.config.Display.Colorize)
	if missing := m.session.RequiredFieldsMissing(); len(missing) > 0 {
		m.message = StyleError.Render(fmt.Sprintf("Mapping incomplete: %v", missing))
		return
	}
	m.message = "Settings saved. Press r to rebuild."
}

func (m *Model) refreshTasks() {
	m.taskPane.SetTasks(m.session.Tasks(), m.session.Associations())
	tl, err := m.session.Timeline(1)
	m.playbackPane.SetBounds(tl.Bounds, err == nil)
	m.playbackPane.SetFrame(m.session.Frame())
}

func (m *Model) refreshStatus() {
	statuses, _, ok := m.session.Statuses()
	m.taskPane.SetStatuses(statuses, ok)
	m.playbackPane.SetStatuses(statuses, m.session.Display())
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	panes := lipgloss.JoinVertical(lipgloss.Left, m.taskPane.View(), m.playbackPane.View())
	status := lipgloss.NewStyle().Width(m.width).Render(m.message)
	return lipgloss.JoinVertical(lipgloss.Left, panes, status, HelpView(m.session.Dragging()))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	available := m.height - 2 // status line and help bar
	playbackHeight := min(12, available/2)
	m.taskPane.SetSize(m.width, available-playbackHeight)
	m.playbackPane.SetSize(m.width, playbackHeight)
}
