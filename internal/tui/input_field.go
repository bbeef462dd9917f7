package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MessageSubmittedMsg is sent when the user submits a chat message.
type MessageSubmittedMsg struct {
	Text string
}

// InputField is a text input component for chat messages. Up and Down
// walk through earlier messages.
type InputField struct {
	input   textinput.Model
	width   int
	history []string
	// histPos indexes history while browsing; len(history) means not browsing.
	histPos int
}

// NewInputField creates a new InputField.
func NewInputField() *InputField {
	ti := textinput.New()
	ti.Placeholder = "Ask Morizo, or reply with a number..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return &InputField{
		input: ti,
		width: 80,
	}
}

// SetWidth sets the width of the input field.
func (f *InputField) SetWidth(width int) {
	f.width = width
	f.input.Width = width - 4 // Account for prompt and padding
}

// Update handles messages for the input field.
func (f *InputField) Update(msg tea.Msg) (*InputField, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(f.input.Value())
			if text == "" {
				return f, nil
			}
			f.input.Reset()
			f.remember(text)
			return f, func() tea.Msg {
				return MessageSubmittedMsg{Text: text}
			}
		case tea.KeyUp:
			f.recall(-1)
			return f, nil
		case tea.KeyDown:
			f.recall(1)
			return f, nil
		}
	}

	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return f, cmd
}

func (f *InputField) remember(text string) {
	if n := len(f.history); n == 0 || f.history[n-1] != text {
		f.history = append(f.history, text)
	}
	f.histPos = len(f.history)
}

// recall moves through history by step. Moving past the newest entry
// clears the input.
func (f *InputField) recall(step int) {
	pos := f.histPos + step
	if pos < 0 || pos > len(f.history) {
		return
	}
	f.histPos = pos
	if pos == len(f.history) {
		f.input.SetValue("")
		return
	}
	f.input.SetValue(f.history[pos])
	f.input.CursorEnd()
}

// View renders the input field.
func (f *InputField) View() string {
	promptStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(f.width - 2)

	prompt := promptStyle.Render("> ")
	return boxStyle.Render(prompt + f.input.View())
}

// Value returns the current text.
func (f *InputField) Value() string {
	return f.input.Value()
}

// SetValue replaces the current text.
func (f *InputField) SetValue(s string) {
	f.input.SetValue(s)
}

// Focus sets focus on the input field.
func (f *InputField) Focus() tea.Cmd {
	return f.input.Focus()
}

// Blur removes focus from the input field.
func (f *InputField) Blur() {
	f.input.Blur()
}
