package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Replier answers one chat turn. *gateway.Router implements it.
type Replier interface {
	Reply(ctx context.Context, t gateway.Turn) (*orchestrator.Response, string)
}

// ReplyMsg carries the answer to a submitted message.
type ReplyMsg struct {
	Response *orchestrator.Response
	Text     string
}

// ChainEventMsg forwards a chain progress event to the UI.
type ChainEventMsg struct {
	Event chain.Event
}

type chatLine struct {
	fromUser bool
	text     string
}

var (
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	botStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// ChatApp is the bubbletea model of the chat view.
type ChatApp struct {
	replier   Replier
	sessionID string
	userID    string
	timeout   time.Duration

	header   *Header
	input    *InputField
	viewport viewport.Model
	spinner  spinner.Model

	lines    []chatLine
	progress string
	waiting  bool
	width    int
	height   int
	quitting bool
}

// NewChatApp creates a chat view for one session.
func NewChatApp(r Replier, sessionID, userID string) *ChatApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = progressStyle

	return &ChatApp{
		replier:   r,
		sessionID: sessionID,
		userID:    userID,
		timeout:   2 * time.Minute,
		header:    NewHeader(sessionID),
		input:     NewInputField(),
		viewport:  viewport.New(80, 20),
		spinner:   sp,
	}
}

// Init implements tea.Model.
func (a *ChatApp) Init() tea.Cmd {
	return a.input.Focus()
}

// Update implements tea.Model.
func (a *ChatApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			a.quitting = true
			return a, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		}
		if a.waiting {
			return a, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case MessageSubmittedMsg:
		a.appendLine(chatLine{fromUser: true, text: msg.Text})
		a.waiting = true
		a.progress = ""
		return a, tea.Batch(a.spinner.Tick, a.send(msg.Text))

	case ReplyMsg:
		a.waiting = false
		a.progress = ""
		if msg.Response != nil {
			switch msg.Response.Kind {
			case orchestrator.ResponseStagePrompt:
				a.header.SetStage(msg.Response.Stage)
			case orchestrator.ResponseMenuComplete:
				a.header.SetStage(models.StageCompleted)
			}
		}
		a.appendLine(chatLine{text: msg.Text})
		return a, nil

	case ChainEventMsg:
		if msg.Event.SessionID == a.sessionID {
			a.progress = describeEvent(msg.Event)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.waiting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// send runs the turn off the UI goroutine.
func (a *ChatApp) send(text string) tea.Cmd {
	turn := gateway.Turn{SessionID: a.sessionID, UserID: a.userID, Text: text}
	r, timeout := a.replier, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, reply := r.Reply(ctx, turn)
		return ReplyMsg{Response: resp, Text: reply}
	}
}

func (a *ChatApp) appendLine(l chatLine) {
	a.lines = append(a.lines, l)
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

func (a *ChatApp) renderTranscript() string {
	var b strings.Builder
	width := a.viewport.Width - 2
	if width < 20 {
		width = 20
	}
	wrap := lipgloss.NewStyle().Width(width)
	for i, l := range a.lines {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if l.fromUser {
			b.WriteString(userStyle.Render("you") + "\n")
		} else {
			b.WriteString(botStyle.Render("morizo") + "\n")
		}
		b.WriteString(wrap.Render(l.text))
	}
	return b.String()
}

// updateSizes updates the sizes of child components based on terminal size.
func (a *ChatApp) updateSizes() {
	inputHeight := 3
	statusHeight := 1
	a.header.SetWidth(a.width)
	a.input.SetWidth(a.width)

	vh := a.height - a.header.Height() - inputHeight - statusHeight
	if vh < 3 {
		vh = 3
	}
	a.viewport.Width = a.width
	a.viewport.Height = vh
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

// View implements tea.Model.
func (a *ChatApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	status := ""
	if a.waiting {
		status = a.spinner.View() + " "
		if a.progress != "" {
			status += progressStyle.Render(a.progress)
		} else {
			status += progressStyle.Render("thinking...")
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		a.header.View(),
		a.viewport.View(),
		status,
		a.input.View(),
	)
}

// Transcript returns the plain conversation text, oldest first.
func (a *ChatApp) Transcript() []string {
	out := make([]string, 0, len(a.lines))
	for _, l := range a.lines {
		who := "morizo"
		if l.fromUser {
			who = "you"
		}
		out = append(out, who+": "+l.text)
	}
	return out
}

// describeEvent renders a chain event as a one-line progress note.
func describeEvent(e chain.Event) string {
	call := e.Service + "." + e.Operation
	switch e.Type {
	case chain.EventTaskStarted:
		return fmt.Sprintf("calling %s", call)
	case chain.EventTaskCompleted:
		return fmt.Sprintf("%s done", call)
	case chain.EventTaskFailed:
		return errorStyle.Render(fmt.Sprintf("%s failed", call))
	case chain.EventTaskWaiting:
		return "waiting for your answer"
	case chain.EventChainCancelled:
		return "cancelled"
	default:
		return string(e.Type)
	}
}

// NewChatProgram creates a Bubbletea program for the chat view.
func NewChatProgram(r Replier, sessionID, userID string) (*tea.Program, *ChatApp) {
	app := NewChatApp(r, sessionID, userID)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
