package status

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/valuation-session-cli/internal/application"
	"github.com/bnema/valuation-session-cli/internal/cache"
	"github.com/bnema/valuation-session-cli/internal/resilience/breaker"
)

type RenderOptions struct {
	Now time.Time
}

func renderView(status application.SystemStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Valuation Session Cache"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(status.Sessions))),
		breakerLine(status.Breaker, opts, s),
		tokenCacheLine(status.TokenCache, s),
	}

	if len(status.Sessions) == 0 {
		lines = append(lines, s.section.Render(s.empty.Render("No cached sessions.")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, session := range status.Sessions {
		lines = append(lines, s.section.Render(renderSession(session, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func breakerLine(stats breaker.Stats, opts RenderOptions, s styles) string {
	stateStyle := s.stateOther
	if stats.State == breaker.StateOpen {
		stateStyle = s.stateOpen
	}

	line := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("breaker: "),
		stateStyle.Render(stats.State.String()),
		s.meta.Render(fmt.Sprintf("  calls=%d failures=%d", stats.TotalCalls, stats.TotalFailures)),
	)

	if stats.State == breaker.StateOpen && !opts.Now.IsZero() && !stats.OpenedAt.IsZero() {
		line += " " + s.meta.Render(fmt.Sprintf("(open for %s)", formatAge(opts.Now.Sub(stats.OpenedAt))))
	}

	return line
}

func tokenCacheLine(stats cache.Stats, s styles) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("tokens:  "),
		s.meta.Render(fmt.Sprintf("cached=%d hits=%d misses=%d evictions=%d",
			stats.Size, stats.Hits, stats.Misses, stats.Evictions)),
	)
}

func renderSession(session application.SessionStatus, opts RenderOptions, s styles) string {
	parts := []string{
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.session.Render(string(session.EntityID)),
			" ",
			readiness(session, s),
		),
		s.detail.Render(fmt.Sprintf("  step %d, %d answers", session.Step, session.AnswerCount)),
	}

	if !opts.Now.IsZero() && !session.CachedAt.IsZero() {
		meta := fmt.Sprintf("  cached %s ago", formatAge(opts.Now.Sub(session.CachedAt)))
		if !session.ExpiresAt.IsZero() {
			if session.ExpiresAt.Before(opts.Now) {
				meta += ", " + s.warning.Render("expired")
			} else {
				meta += fmt.Sprintf(", expires in %s", formatAge(session.ExpiresAt.Sub(opts.Now)))
			}
		}
		parts = append(parts, s.meta.Render(meta))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func readiness(session application.SessionStatus, s styles) string {
	switch {
	case session.RenderReady:
		return s.ready.Render("[ready]")
	case session.Complete:
		return s.warning.Render("[stale]")
	default:
		return s.pending.Render("[in progress]")
	}
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		hours := int(math.Floor(d.Hours()))
		minutes := int(d.Minutes()) - hours*60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
