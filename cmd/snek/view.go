package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/visualize"
)

var (
	headStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	foodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	deadlyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mudStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("94"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	boardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleFor(r rune) lipgloss.Style {
	switch {
	case r == visualize.Head:
		return headStyle
	case r == visualize.Body:
		return bodyStyle
	case r == visualize.Empty:
		return emptyStyle
	case r == visualize.ObstacleGlyph(game.Mud):
		return mudStyle
	case visualize.IsFood(r):
		return foodStyle
	default:
		return deadlyStyle
	}
}

func renderBoard(s *game.Snapshot) string {
	var b strings.Builder
	for y, row := range visualize.Grid(s) {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x, r := range row {
			if x > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(styleFor(r).Render(string(r)))
		}
	}
	return boardStyle.Render(b.String())
}

func statusLine(s *game.Snapshot) string {
	sc := s.Score
	return fmt.Sprintf("score %d  high %d  level %d  combo x%.1f  %s  %s  food %s",
		sc.Score, sc.HighScore, sc.Level, sc.ComboMultiplier,
		s.Difficulty.String(), s.Phase.String(), s.Food.Kind.String())
}

func banner(s *game.Snapshot) string {
	switch s.Phase {
	case game.PhasePaused:
		return "PAUSED"
	case game.PhaseGameOver:
		return fmt.Sprintf("GAME OVER (%s)  press r to play again", s.Cause.String())
	}
	return ""
}

func renderView(s *game.Snapshot, status string) string {
	parts := []string{renderBoard(s), statusStyle.Render(statusLine(s))}
	if b := banner(s); b != "" {
		parts = append(parts, bannerStyle.Render(b))
	}
	if status != "" {
		parts = append(parts, helpStyle.Render(status))
	}
	parts = append(parts, helpStyle.Render("arrows/wasd move  p pause  r restart  q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}
