package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Header renders the title bar with the session and current course.
type Header struct {
	width     int
	sessionID string
	stage     models.Stage
}

// NewHeader creates a new Header.
func NewHeader(sessionID string) *Header {
	return &Header{
		width:     80,
		sessionID: sessionID,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetStage records the course being chosen; empty hides it.
func (h *Header) SetStage(s models.Stage) {
	h.stage = s
}

// View renders the header.
func (h *Header) View() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF8E53")).
		Bold(true).
		Render("Morizo")

	info := fmt.Sprintf("session %s", shortID(h.sessionID))
	if h.stage != "" {
		info += " · " + stageTrail(h.stage)
	}
	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render(info)

	return lipgloss.NewStyle().
		Width(h.width).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(lipgloss.Color("240")).
		Render(title + "  " + subtitle)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2
}

// stageTrail renders main › side › soup with the current course highlighted.
func stageTrail(current models.Stage) string {
	active := lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true)
	done := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Strikethrough(true)
	todo := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	reached := false
	out := ""
	for i, st := range []models.Stage{models.StageMain, models.StageSide, models.StageSoup} {
		if i > 0 {
			out += " › "
		}
		switch {
		case st == current:
			out += active.Render(string(st))
			reached = true
		case !reached:
			out += done.Render(string(st))
		default:
			out += todo.Render(string(st))
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
