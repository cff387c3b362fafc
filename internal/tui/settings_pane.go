package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/schedule"
)

// settingsValues holds the form bindings. It lives behind a pointer so the
// bindings survive the pane being copied by value.
type settingsValues struct {
	saveTarget string
	mapping    [6]string // One per schedule.MappingFields entry
	speed      string
	colorize   bool
}

// SettingsPaneModel manages the mapping form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	values      *settingsValues
	config      *config.PhasingConfig
	properties  []string // Suggestions for mapping inputs
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
}

// NewSettingsPaneModel creates a settings pane. properties are offered as
// completions for the mapping fields.
func NewSettingsPaneModel(cfg *config.PhasingConfig, properties []string, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		values:      &settingsValues{},
		config:      cfg,
		properties:  properties,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.buildForm()
	return m
}

// buildForm constructs the form from the current config.
func (m *SettingsPaneModel) buildForm() {
	v := m.values
	v.saveTarget = "project"
	for i, f := range schedule.MappingFields {
		v.mapping[i] = m.config.Mapping.Get(f.Key)
	}
	v.speed = strconv.Itoa(m.config.Playback.Speed)
	v.colorize = m.config.Display.Colorize

	var inputs []huh.Field
	for i, f := range schedule.MappingFields {
		input := huh.NewInput().
			Key(f.Key).
			Title(f.Label).
			Suggestions(m.properties).
			Value(&v.mapping[i])
		if f.Required {
			label := f.Label
			input = input.Validate(func(s string) error {
				if s == "" {
					return fmt.Errorf("%s is required", label)
				}
				return nil
			})
		}
		inputs = append(inputs, input)
	}

	speeds := make([]huh.Option[string], 0, len(playback.Speeds))
	for _, s := range playback.Speeds {
		speeds = append(speeds, huh.NewOption(fmt.Sprintf("x%d", s), strconv.Itoa(s)))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.phasing/config.json)", "global"),
					huh.NewOption("Project (.phasing/config.json)", "project"),
				).
				Value(&v.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(inputs...).Title("Property Mapping"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("speed").
				Title("Playback Speed").
				Options(speeds...).
				Value(&v.speed),

			huh.NewConfirm().
				Key("colorize").
				Title("Color elements by status").
				Value(&v.colorize),
		).Title("Playback"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.values.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
			return m, func() tea.Msg { return settingsSavedMsg{} }
		}
	}

	return m, cmd
}

// settingsSavedMsg tells the root model to push the new settings into the session.
type settingsSavedMsg struct{}

// applyFormToConfig copies form values back to the config.
func (m *SettingsPaneModel) applyFormToConfig() {
	for i, f := range schedule.MappingFields {
		m.config.Mapping.Set(f.Key, m.values.mapping[i])
	}
	if speed, err := strconv.Atoi(m.values.speed); err == nil {
		m.config.Playback.Speed = speed
	}
	m.config.Display.Colorize = m.values.colorize
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()
	if m.err != nil {
		content = StyleError.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane, resetting the form on show.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
