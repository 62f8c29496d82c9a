package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/snekgrid/inference"
	"github.com/brensch/snekgrid/selfplay"
)

type gameUpdate struct {
	Worker int
	Result selfplay.Result
}

type runDoneMsg struct{}

type tickMsg time.Time

const recentGames = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type statsSnapshot struct {
	games, ticks, score      int64
	elapsed                  time.Duration
	gamesPerSec, ticksPerSec float64
	avgScore                 float64
}

func readStats(s *selfplay.Stats, start time.Time) statsSnapshot {
	out := statsSnapshot{
		games:   s.Games.Load(),
		ticks:   s.Ticks.Load(),
		score:   s.Score.Load(),
		elapsed: time.Since(start),
	}
	if secs := out.elapsed.Seconds(); secs >= 1 {
		out.gamesPerSec = float64(out.games) / secs
		out.ticksPerSec = float64(out.ticks) / secs
	}
	if out.games > 0 {
		out.avgScore = float64(out.score) / float64(out.games)
	}
	return out
}

type statsModel struct {
	stats        *selfplay.Stats
	updates      <-chan gameUpdate
	runtimeStats func() (inference.RuntimeStats, bool)
	startTime    time.Time
	best         selfplay.Result
	recent       []string
	snap         statsSnapshot
}

func newStatsModel(stats *selfplay.Stats, updates <-chan gameUpdate, runtimeStats func() (inference.RuntimeStats, bool)) statsModel {
	return statsModel{
		stats:        stats,
		updates:      updates,
		runtimeStats: runtimeStats,
		startTime:    time.Now(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates <-chan gameUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return runDoneMsg{}
		}
		return u
	}
}

func (m statsModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = readStats(m.stats, m.startTime)
		return m, tickCmd()
	case gameUpdate:
		r := msg.Result
		if r.Score > m.best.Score {
			m.best = r
		}
		line := fmt.Sprintf("worker %d: score %d, level %d, ticks %d, %s", msg.Worker, r.Score, r.Level, r.Ticks, endReason(r))
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > recentGames {
			m.recent = m.recent[:recentGames]
		}
		return m, waitForUpdate(m.updates)
	case runDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func endReason(r selfplay.Result) string {
	if r.Capped {
		return "capped"
	}
	return r.Cause.String()
}

func (m statsModel) View() string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	b.WriteString(titleStyle.Render("self-play") + "\n\n")
	row("Games Played", fmt.Sprintf("%d", m.snap.games))
	row("Total Ticks", fmt.Sprintf("%d", m.snap.ticks))
	row("Duration", m.snap.elapsed.Round(time.Second).String())
	row("Games/Sec", fmt.Sprintf("%.2f", m.snap.gamesPerSec))
	row("Ticks/Sec", fmt.Sprintf("%.2f", m.snap.ticksPerSec))
	row("Avg Score", fmt.Sprintf("%.1f", m.snap.avgScore))
	if m.best.SessionID != "" {
		row("Best", fmt.Sprintf("%d (%s)", m.best.Score, m.best.SessionID))
	}
	if m.runtimeStats != nil {
		if st, ok := m.runtimeStats(); ok {
			row("Batch", fmt.Sprintf("avg=%.1f last=%d q=%d run=%.2fms", st.AvgBatchSize, st.LastBatchSize, st.QueueLen, st.AvgRunMs))
		}
	}

	b.WriteString("\nRecent Games:\n")
	for _, g := range m.recent {
		b.WriteString(g + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("Press q to quit.") + "\n")
	return b.String()
}
