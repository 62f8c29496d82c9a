package game

import (
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"
)

// dumpSnapshot is a test helper to visualize board state.
// Head is 'H', body 's', food '*', deadly obstacles '#', mud '~'.
func dumpSnapshot(s *Snapshot) string {
	grid := make([][]byte, s.Height)
	for y := 0; y < s.Height; y++ {
		grid[y] = make([]byte, s.Width)
		for x := 0; x < s.Width; x++ {
			grid[y][x] = '.'
		}
	}
	put := func(p Point, c byte) {
		if p.Y >= 0 && p.Y < s.Height && p.X >= 0 && p.X < s.Width {
			grid[p.Y][p.X] = c
		}
	}
	for _, o := range s.Obstacles {
		if o.Deadly {
			put(o.Pos, '#')
		} else {
			put(o.Pos, '~')
		}
	}
	put(s.Food.Pos, '*')
	for i, p := range s.Snake {
		if i == 0 {
			put(p, 'H')
		} else {
			put(p, 's')
		}
	}
	var sb strings.Builder
	for y := 0; y < s.Height; y++ {
		sb.WriteString(string(grid[y]))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func logTick(t *testing.T, label string, before *Snapshot, out Outcome, after *Snapshot) {
	t.Helper()
	t.Logf("%s\n  BEFORE (dir=%s):\n%s  AFTER (%s):\n%s", label, before.Direction, dumpSnapshot(before), out.Kind, dumpSnapshot(after))
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, settings Settings, seed int64, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithRand(rand.New(rand.NewSource(seed))),
		WithLogger(discardLogger),
		WithClock(func() time.Time { return fixedTime }),
	}
	s, err := NewSession(settings, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// clearBoard removes every obstacle and parks the food at p.
func clearBoard(s *Session, food Point) {
	s.obstacles = NewObstacleField()
	s.food = Food{Pos: food, Kind: Mouse}
}

func smallSettings(w, h int, wrap bool) Settings {
	st := DefaultSettings()
	st.Width = w
	st.Height = h
	st.Wrap = wrap
	return st
}

type recordingListener struct {
	gameOvers  []GameOverEvent
	highScores []HighScoreEvent
}

func (l *recordingListener) OnGameOver(e GameOverEvent)   { l.gameOvers = append(l.gameOvers, e) }
func (l *recordingListener) OnHighScore(e HighScoreEvent) { l.highScores = append(l.highScores, e) }
