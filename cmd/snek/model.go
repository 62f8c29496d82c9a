package main

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/store"
)

type tickMsg time.Time

type replaySavedMsg struct {
	path string
	err  error
}

type model struct {
	sess     *game.Session
	snap     *game.Snapshot
	interval time.Duration
	// slowed swallows the tick after the head lands on mud.
	slowed bool

	replayDir string
	rows      []store.TickRow
	status    string

	logger *slog.Logger
}

func newModel(sess *game.Session, replayDir string, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.Default()
	}
	rate := sess.Settings().TickRate
	if rate <= 0 {
		rate = 10
	}
	return model{
		sess:      sess,
		snap:      sess.Snapshot(),
		interval:  time.Second / time.Duration(rate),
		replayDir: replayDir,
		logger:    logger,
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tickCmd(m.interval)
}

var keyDirections = map[string]game.Direction{
	"up": game.Up, "w": game.Up, "k": game.Up,
	"down": game.Down, "s": game.Down, "j": game.Down,
	"left": game.Left, "a": game.Left, "h": game.Left,
	"right": game.Right, "d": game.Right, "l": game.Right,
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if d, ok := keyDirections[key]; ok {
			m.sess.RequestDirectionChange(d)
			return m, nil
		}
		switch key {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			if !m.sess.Pause() {
				m.sess.Resume()
			}
		case "r":
			m.sess.Reset()
			m.rows = nil
			m.slowed = false
			m.status = ""
		}
		m.snap = m.sess.Snapshot()
		return m, nil
	case tickMsg:
		cmd := m.step()
		return m, tea.Batch(cmd, tickCmd(m.interval))
	case replaySavedMsg:
		if msg.err != nil {
			m.status = "replay failed: " + msg.err.Error()
		} else {
			m.status = "replay saved to " + msg.path
		}
		return m, nil
	}
	return m, nil
}

// step advances the session by one tick. The returned command, if any,
// writes the finished game's replay.
func (m *model) step() tea.Cmd {
	if m.slowed && m.sess.Phase() == game.PhaseRunning {
		m.slowed = false
		return nil
	}
	out := m.sess.Tick()
	if out.Kind == game.OutcomeIgnored {
		return nil
	}
	m.slowed = out.Slowed
	m.snap = m.sess.Snapshot()
	if out.Kind == game.OutcomeGameOver {
		m.logger.Info("game over",
			"session", m.snap.SessionID,
			"score", m.snap.Score.Score,
			"level", m.snap.Score.Level,
			"cause", out.Cause.String(),
			"ticks", m.snap.Tick,
		)
	}
	if m.replayDir == "" {
		return nil
	}
	m.rows = append(m.rows, store.RowFromSnapshot(m.snap, out, "human"))
	if out.Kind != game.OutcomeGameOver {
		return nil
	}
	rows, dir, logger := m.rows, m.replayDir, m.logger
	m.rows = nil
	return func() tea.Msg {
		path, err := store.WriteReplayParquetAtomic(dir, rows)
		if err != nil {
			logger.Error("replay write failed", "session", rows[0].SessionID, "error", err)
		} else {
			logger.Info("replay written", "session", rows[0].SessionID, "path", path, "rows", len(rows))
		}
		return replaySavedMsg{path: path, err: err}
	}
}

func (m model) View() string {
	return renderView(m.snap, m.status)
}
