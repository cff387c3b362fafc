package tui

// Keybinding constants
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyPlay       = " "
	KeyBack       = "h"
	KeyForward    = "l"
	KeyLeft       = "left"
	KeyRight      = "right"
	KeyFaster     = "+"
	KeySlower     = "-"
	KeyRange      = "v"
	KeyClearRange = "x"
	KeyColors     = "c"
	KeySave       = "w"
	KeyNext       = "n"
	KeyRebuild    = "r"
	KeyFocus      = "enter"
	KeyEsc        = "esc"
	KeySettings   = "s"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(dragging bool) string {
	if dragging {
		return StyleHelp.Render("h/l: extend range | v: set range | esc: cancel")
	}
	return StyleHelp.Render("space: play/pause | h/l: day | +/-: speed | v: range | x: clear range | c: colors | w: save | n: next snapshot | r: rebuild | enter: focus | s: settings | q: quit")
}
