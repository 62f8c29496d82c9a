// Command selfplay runs automated sessions on many workers and writes their
// ticks to Parquet batches for training and analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/inference"
	"github.com/brensch/snekgrid/mcts"
	"github.com/brensch/snekgrid/selfplay"
	"github.com/brensch/snekgrid/store"
)

type predictor interface {
	inference.Predictor
	Stats() inference.RuntimeStats
	Close() error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("selfplay", flag.ExitOnError)
	outDir := fs.String("out-dir", "", "Output directory for Parquet batches (default <data-dir>/selfplay)")
	workers := fs.Int("workers", 8, "Number of self-play workers")
	maxGames := fs.Int64("max-games", 0, "If > 0, stop after this many games across all workers")
	maxTicks := fs.Int("max-ticks", 5000, "If > 0, cap each game at this many ticks")
	gamesPerFlush := fs.Int("games-per-flush", 50, "Number of games to buffer per Parquet file")
	pilotKind := fs.String("pilot", "greedy", "greedy, random, onnx or mcts")
	modelPath := fs.String("model", "models/snake_net.onnx", "ONNX policy model for -pilot=onnx and -mcts-onnx")
	sims := fs.Int("sims", 100, "Number of MCTS simulations per move")
	cpuct := fs.Float64("cpuct", 1.0, "MCTS exploration constant")
	mctsOnnx := fs.Bool("mcts-onnx", false, "Guide -pilot=mcts with the ONNX model instead of the built-in heuristic")
	onnxSessions := fs.Int("onnx-sessions", 1, "Number of ONNX Runtime sessions to run in parallel")
	onnxBatchSize := fs.Int("onnx-batch-size", inference.DefaultBatchSize, "ONNX inference batch size")
	onnxBatchTimeout := fs.Duration("onnx-batch-timeout", inference.DefaultBatchTimeout, "Max time to wait for filling an ONNX batch")
	useTUI := fs.Bool("tui", false, "Show a live stats view instead of logging to stderr")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if *outDir == "" {
		*outDir = filepath.Join(cfg.DataDir, "selfplay")
	}
	for _, dir := range []string{cfg.DataDir, filepath.Dir(cfg.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var logOut io.Writer = os.Stderr
	if *useTUI {
		f, err := os.OpenFile(filepath.Join(cfg.DataDir, "selfplay.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := cfg.Logger(logOut)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var pred predictor
	openPredictor := func() error {
		onnxCfg := inference.OnnxClientConfig{
			Width:        cfg.Game.Width,
			Height:       cfg.Game.Height,
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
			Logger:       logger,
		}
		var err error
		if *onnxSessions <= 1 {
			pred, err = inference.NewOnnxClient(*modelPath, onnxCfg)
		} else {
			pred, err = inference.NewOnnxPool(*modelPath, *onnxSessions, onnxCfg)
		}
		if err != nil {
			return fmt.Errorf("create onnx predictor: %w", err)
		}
		// Every worker has one request in flight at most.
		if *onnxBatchSize > *workers {
			logger.Warn("batch size exceeds workers, batches will not fill", "batch_size", *onnxBatchSize, "workers", *workers)
		}
		return nil
	}

	newPilot := func(worker int) (selfplay.Pilot, error) { return selfplay.Greedy, nil }
	switch *pilotKind {
	case "greedy":
	case "random":
		newPilot = func(worker int) (selfplay.Pilot, error) {
			return selfplay.Random(rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*1000003))), nil
		}
	case "onnx":
		if err := openPredictor(); err != nil {
			return err
		}
		defer pred.Close()
		pilot := inference.NewPilot(pred)
		newPilot = func(int) (selfplay.Pilot, error) { return pilot, nil }
	case "mcts":
		var guide mcts.Predictor = mcts.Heuristic{}
		if *mctsOnnx {
			if err := openPredictor(); err != nil {
				return err
			}
			defer pred.Close()
			guide = pred
		}
		mctsCfg := mcts.Config{Cpuct: float32(*cpuct)}
		newPilot = func(int) (selfplay.Pilot, error) { return mcts.NewPilot(guide, mctsCfg, *sims), nil }
	default:
		return fmt.Errorf("unknown pilot %q", *pilotKind)
	}

	batches, err := store.OpenBatches(*outDir, *gamesPerFlush)
	if err != nil {
		return err
	}
	logFlush := func(reason string, f *store.BatchFile) {
		if f != nil {
			logger.Info("parquet flush ok", "reason", reason, "path", f.Path, "sessions", f.Sessions, "rows", f.Rows)
		}
	}
	stats := &selfplay.Stats{}
	updates := make(chan gameUpdate, *workers)
	difficulty := cfg.Game.Difficulty.String()

	onGame := func(r selfplay.GameReport) error {
		f, err := batches.Add(r.Rows)
		if err != nil {
			logger.Error("parquet flush failed", "reason", "count", "error", err)
			return err
		}
		logFlush("count", f)
		res := r.Result
		if err := db.InsertResult(store.Result{
			SessionID:  res.SessionID,
			Score:      res.Score,
			Level:      res.Level,
			Cause:      res.Cause.String(),
			Difficulty: difficulty,
			Ticks:      int64(res.Ticks),
			Source:     "selfplay-" + *pilotKind,
			EndedAt:    time.Now(),
		}); err != nil {
			logger.Error("store result", "session", res.SessionID, "error", err)
		}
		// Avoid blocking the workers if the view stops consuming.
		select {
		case updates <- gameUpdate{Worker: r.Worker, Result: res}:
		default:
		}
		return nil
	}

	logger.Info("starting self-play",
		"workers", *workers,
		"pilot", *pilotKind,
		"max_games", *maxGames,
		"out_dir", *outDir,
	)
	runErr := make(chan error, 1)
	go func() {
		defer close(updates)
		runErr <- selfplay.Run(ctx, selfplay.RunConfig{
			Settings: cfg.Game,
			Workers:  *workers,
			MaxGames: *maxGames,
			MaxTicks: *maxTicks,
			Seed:     cfg.Seed,
			Record:   true,
			Source:   "selfplay-" + *pilotKind,
			Logger:   logger,
			Stats:    stats,
		}, newPilot, onGame)
	}()

	var runtimeStats func() (inference.RuntimeStats, bool)
	if pred != nil {
		runtimeStats = func() (inference.RuntimeStats, bool) { return pred.Stats(), true }
	}

	if *useTUI {
		m := newStatsModel(stats, updates, runtimeStats)
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			cancel()
			<-runErr
			return err
		}
		// The view returns on q as well as when the run ends.
		cancel()
	} else {
		logProgress(ctx, logger, stats, updates, runtimeStats)
	}

	err = <-runErr
	f, cerr := batches.Close()
	if cerr != nil {
		logger.Error("parquet flush failed", "reason", "final", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	logFlush("final", f)
	logger.Info("self-play finished",
		"games", stats.Games.Load(),
		"ticks", stats.Ticks.Load(),
		"files", len(batches.Files()),
	)
	return err
}

// logProgress logs each game and a stats line every second until the run
// closes updates.
func logProgress(ctx context.Context, logger *slog.Logger, stats *selfplay.Stats, updates <-chan gameUpdate, runtimeStats func() (inference.RuntimeStats, bool)) {
	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	done := ctx.Done()
	for {
		select {
		case <-done:
			logger.Info("shutdown requested; waiting for workers to finish current games")
			done = nil
		case u, ok := <-updates:
			if !ok {
				return
			}
			logger.Debug("game finished", "worker", u.Worker, "session", u.Result.SessionID, "score", u.Result.Score, "ticks", u.Result.Ticks)
		case <-ticker.C:
			snap := readStats(stats, start)
			attrs := []any{
				"games", snap.games,
				"games_per_sec", snap.gamesPerSec,
				"ticks_per_sec", snap.ticksPerSec,
				"avg_score", snap.avgScore,
			}
			if runtimeStats != nil {
				if st, ok := runtimeStats(); ok {
					attrs = append(attrs, "batch_avg", st.AvgBatchSize, "batch_last", st.LastBatchSize, "queue", st.QueueLen, "run_avg_ms", st.AvgRunMs)
				}
			}
			logger.Info("stats", attrs...)
		}
	}
}
