package server

import (
	"context"
	"log/slog"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
	"github.com/brensch/snekgrid/store"
)

// Pilot chooses a direction for a snapshot. selfplay, inference and mcts
// pilots all satisfy it.
type Pilot interface {
	Move(ctx context.Context, s *game.Snapshot) (game.Direction, error)
}

type BotOptions struct {
	// Games stops the bot after this many finished games. Zero plays until
	// ctx ends or the hub goes away.
	Games int
	// Restart sends a reset after every game over.
	Restart bool
	// Record collects a replay row for every tick the hub broadcasts.
	Record bool
	Source string
	Logger *slog.Logger
}

type BotStats struct {
	Games     int
	Frames    int
	Commands  int
	Fallbacks int
}

// Play steers the hub's session with pilot, one decision per broadcast
// tick. onGame, when set, receives the recorded rows of every finished
// game. Play returns when ctx ends, the hub closes the connection or
// opts.Games games have finished.
func (c *Client) Play(ctx context.Context, pilot Pilot, opts BotOptions, onGame func([]store.TickRow) error) (BotStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Source == "" {
		opts.Source = "bot"
	}
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	var (
		stats BotStats
		rows  []store.TickRow
	)
	for {
		msg, err := c.Read()
		if err != nil {
			if ctx.Err() != nil || IsClosed(err) {
				return stats, nil
			}
			return stats, err
		}
		if msg.Type == "error" {
			logger.Warn("hub rejected command", "error", msg.Error)
			continue
		}
		snap := msg.Snapshot
		if snap == nil {
			continue
		}
		stats.Frames++

		var outcome game.OutcomeKind
		if msg.Outcome != "" {
			if outcome, err = game.ParseOutcomeKind(msg.Outcome); err != nil {
				logger.Warn("bad outcome", "outcome", msg.Outcome, "error", err)
				continue
			}
			if opts.Record {
				rows = append(rows, store.RowFromSnapshot(snap, game.Outcome{Kind: outcome, Cause: snap.Cause, Points: msg.Points}, opts.Source))
			}
		}

		switch snap.Phase {
		case game.PhaseRunning:
			d, err := pilot.Move(ctx, snap)
			if err != nil {
				if ctx.Err() != nil {
					return stats, nil
				}
				stats.Fallbacks++
				logger.Warn("pilot failed, using greedy", "session", snap.SessionID, "error", err)
				d = rules.Greedy(snap)
			}
			if d == snap.Direction {
				continue
			}
			if err := c.Send(Command{Type: "direction", Direction: d.String()}); err != nil {
				return stats, err
			}
			stats.Commands++

		case game.PhaseGameOver:
			if outcome == game.OutcomeGameOver {
				stats.Games++
				logger.Info("game over",
					"session", snap.SessionID,
					"score", snap.Score.Score,
					"ticks", snap.Tick,
					"cause", snap.Cause.String(),
				)
				if onGame != nil && len(rows) > 0 {
					if err := onGame(rows); err != nil {
						return stats, err
					}
				}
				rows = nil
				if opts.Games > 0 && stats.Games >= opts.Games {
					return stats, nil
				}
			}
			if opts.Restart {
				if err := c.Send(Command{Type: "reset"}); err != nil {
					return stats, err
				}
				stats.Commands++
			}
		}
	}
}
