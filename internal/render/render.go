// Package render draws the two transcripts side by side for terminals.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"prompt-comparator/internal/models"
)

const (
	minWidth     = 40
	defaultWidth = 120
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
)

// Pane is one side's content.
type Pane struct {
	Title     string
	Subtitle  string
	Messages  []models.Message
	Pending   bool
	LastError string
}

// SideBySide renders the panes next to each other within width columns.
func SideBySide(width int, panes ...Pane) string {
	if width <= 0 {
		width = defaultWidth
	}
	if width < minWidth {
		width = minWidth
	}
	if len(panes) == 0 {
		return ""
	}

	frame := paneStyle.GetHorizontalFrameSize()
	paneWidth := width/len(panes) - frame
	if paneWidth < 10 {
		paneWidth = 10
	}

	rendered := make([]string, 0, len(panes))
	for _, p := range panes {
		rendered = append(rendered, paneStyle.Width(paneWidth).Render(renderPane(p, paneWidth)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderPane(p Pane, width int) string {
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(titleStyle.Render(p.Title))
	if p.Subtitle != "" {
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render(p.Subtitle))
	}
	b.WriteString("\n")

	for _, m := range p.Messages {
		b.WriteString("\n")
		switch m.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(wrap.Render(m.Content))
		default:
			style := assistantStyle
			if p.LastError != "" && strings.HasPrefix(m.Content, "Error: ") {
				style = errorStyle
			}
			b.WriteString(wrap.Inherit(style).Render(m.Content))
		}
		b.WriteString("\n")
	}

	if p.Pending {
		b.WriteString("\n")
		b.WriteString(pendingStyle.Render("Generating response..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	providerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	modelStyle    = lipgloss.NewStyle().PaddingLeft(3)
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// Catalog lists every provider's models, one per line.
func Catalog(entries []models.CatalogEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(providerStyle.Render(e.DisplayName))
		b.WriteString("\n")
		for _, m := range e.Models {
			line := m.ID
			if m.DisplayName != "" && m.DisplayName != m.ID {
				line = m.DisplayName + " " + idStyle.Render("("+m.ID+")")
			}
			b.WriteString(modelStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}
