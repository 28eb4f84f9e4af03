package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	session    lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	ready      lipgloss.Style
	pending    lipgloss.Style
	stateOpen  lipgloss.Style
	stateOther lipgloss.Style
	meta       lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		ready:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		stateOpen:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		stateOther: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		meta:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}
