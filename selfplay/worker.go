// Package selfplay drives sessions with a pilot instead of a human, for
// replay generation and for measuring pilots against each other.
package selfplay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
	"github.com/brensch/snekgrid/store"
)

// Pilot chooses the next direction for a snapshot.
type Pilot interface {
	Move(ctx context.Context, s *game.Snapshot) (game.Direction, error)
}

type PilotFunc func(ctx context.Context, s *game.Snapshot) (game.Direction, error)

func (f PilotFunc) Move(ctx context.Context, s *game.Snapshot) (game.Direction, error) {
	return f(ctx, s)
}

// Greedy is the food-seeking pilot from the rules package.
var Greedy Pilot = PilotFunc(func(_ context.Context, s *game.Snapshot) (game.Direction, error) {
	return rules.Greedy(s), nil
})

// Random picks uniformly among legal moves.
func Random(rng *rand.Rand) Pilot {
	return PilotFunc(func(_ context.Context, s *game.Snapshot) (game.Direction, error) {
		moves := rules.LegalMoves(s)
		if len(moves) == 0 {
			return s.Direction, nil
		}
		return moves[rng.Intn(len(moves))], nil
	})
}

type Options struct {
	// Seed pins the session RNG. Zero seeds from the clock.
	Seed int64
	// MaxTicks caps a game. Zero means no cap.
	MaxTicks int
	// Record keeps one store.TickRow per tick.
	Record   bool
	Source   string
	Listener game.Listener
	Logger   *slog.Logger
	OnStep   func()
}

type Result struct {
	SessionID string
	Score     int
	Level     int
	Ticks     uint64
	Cause     game.Cause
	// Completed is true when the session reached game over.
	Completed bool
	// Capped is true when MaxTicks stopped the game first.
	Capped bool
	// Fallbacks counts pilot errors answered with the greedy move.
	Fallbacks int
}

// PlayGame runs one session to game over, the tick cap or cancellation.
// Rows are returned whenever Record is set, including for unfinished games.
func PlayGame(ctx context.Context, settings game.Settings, pilot Pilot, opts Options) (Result, []store.TickRow, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sessOpts := []game.Option{
		game.WithRand(rand.New(rand.NewSource(seed))),
		game.WithLogger(logger),
	}
	if opts.Listener != nil {
		sessOpts = append(sessOpts, game.WithListener(opts.Listener))
	}
	sess, err := game.NewSession(settings, sessOpts...)
	if err != nil {
		return Result{}, nil, err
	}

	var rows []store.TickRow
	if opts.Record {
		rows = make([]store.TickRow, 0, 256)
	}
	res := Result{SessionID: sess.ID()}

	for sess.Phase() == game.PhaseRunning {
		if ctx.Err() != nil {
			break
		}
		if opts.MaxTicks > 0 && sess.Ticks() >= uint64(opts.MaxTicks) {
			res.Capped = true
			break
		}

		snap := sess.Snapshot()
		d, err := pilot.Move(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			res.Fallbacks++
			logger.Warn("pilot failed, using greedy move", "session", res.SessionID, "tick", snap.Tick, "error", err)
			d = rules.Greedy(snap)
		}
		sess.RequestDirectionChange(d)
		out := sess.Tick()

		if opts.Record {
			rows = append(rows, store.RowFromSnapshot(sess.Snapshot(), out, opts.Source))
		}
		if opts.OnStep != nil {
			opts.OnStep()
		}
	}

	st := sess.Score()
	res.Score = st.Score
	res.Level = st.Level
	res.Ticks = sess.Ticks()
	res.Cause = sess.Cause()
	res.Completed = sess.Phase() == game.PhaseGameOver
	return res, rows, nil
}

// Stats are live counters a progress view can poll.
type Stats struct {
	Games atomic.Int64
	Ticks atomic.Int64
	Score atomic.Int64
}

type RunConfig struct {
	Settings game.Settings
	Workers  int
	// MaxGames stops the run after this many games. Zero runs until ctx is done.
	MaxGames int64
	MaxTicks int
	// Seed makes the run reproducible: game i uses Seed+i*1000003.
	Seed   int64
	Record bool
	Source string
	Logger *slog.Logger
	Stats  *Stats
}

// GameReport is handed to the Run callback for every finished or capped game.
type GameReport struct {
	Worker int
	Index  int64
	Result Result
	Rows   []store.TickRow
}

// Run plays games on cfg.Workers goroutines. newPilot is called once per
// worker. onGame is called for every game not cut short by cancellation;
// calls are serialised, and an error from it stops the run.
func Run(ctx context.Context, cfg RunConfig, newPilot func(worker int) (Pilot, error), onGame func(GameReport) error) error {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := cfg.Stats
	if stats == nil {
		stats = &Stats{}
	}

	var (
		next   atomic.Int64
		sinkMu sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			pilot, err := newPilot(w)
			if err != nil {
				return fmt.Errorf("worker %d pilot: %w", w, err)
			}
			logger.Debug("worker started", "worker", w)
			for gctx.Err() == nil {
				idx := next.Add(1) - 1
				if cfg.MaxGames > 0 && idx >= cfg.MaxGames {
					return nil
				}

				seed := time.Now().UnixNano() + int64(w)*1000003
				if cfg.Seed != 0 {
					seed = cfg.Seed + idx*1000003
				}
				res, rows, err := PlayGame(gctx, cfg.Settings, pilot, Options{
					Seed:     seed,
					MaxTicks: cfg.MaxTicks,
					Record:   cfg.Record,
					Source:   cfg.Source,
					Logger:   logger,
					OnStep:   func() { stats.Ticks.Add(1) },
				})
				if err != nil {
					return err
				}
				if !res.Completed && !res.Capped {
					// Cancelled mid-game.
					return nil
				}
				stats.Games.Add(1)
				stats.Score.Add(int64(res.Score))

				sinkMu.Lock()
				err = onGame(GameReport{Worker: w, Index: idx, Result: res, Rows: rows})
				sinkMu.Unlock()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() != nil && err == ctx.Err() {
		return nil
	}
	return err
}
