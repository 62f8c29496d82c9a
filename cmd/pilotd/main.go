// Command pilotd answers move requests over HTTP with a time-boxed MCTS
// search, guided by the built-in heuristic or an ONNX model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/inference"
	"github.com/brensch/snekgrid/mcts"
	"github.com/brensch/snekgrid/pilotapi"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("pilotd", flag.ExitOnError)
	def := pilotapi.DefaultConfig()
	modelPath := fs.String("model", "", "ONNX model guiding the search. Empty uses the built-in heuristic")
	sessions := fs.Int("sessions", 1, "Number of ONNX sessions (for parallel games)")
	disableCUDA := fs.Bool("disable-cuda", false, "Disable CUDA execution provider")
	moveTimeout := fs.Duration("move-timeout", def.MoveTimeout, "Default move timeout")
	overhead := fs.Duration("overhead", def.Overhead, "Time held back from every move budget")
	sims := fs.Int("mcts-sims", def.Simulations, "Max MCTS simulations per move (will stop early if timeout)")
	cpuct := fs.Float64("cpuct", float64(def.Search.Cpuct), "MCTS exploration constant")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	var guide mcts.Predictor = mcts.Heuristic{}
	if *modelPath != "" {
		onnxCfg := inference.OnnxClientConfig{
			Width:       cfg.Game.Width,
			Height:      cfg.Game.Height,
			DisableCUDA: *disableCUDA,
			Logger:      logger,
		}
		pool, err := inference.NewOnnxPool(*modelPath, *sessions, onnxCfg)
		if err != nil {
			return fmt.Errorf("create inference pool: %w", err)
		}
		defer pool.Close()
		guide = pool
		logger.Info("model loaded", "path", *modelPath, "sessions", *sessions, "cuda", !*disableCUDA)
	}

	apiCfg := pilotapi.Config{
		MoveTimeout: *moveTimeout,
		Overhead:    *overhead,
		MinCompute:  def.MinCompute,
		Simulations: *sims,
		Search:      mcts.Config{Cpuct: float32(*cpuct)},
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           pilotapi.NewServer(guide, apiCfg, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("pilot server listening", "addr", cfg.Listen, "sims", *sims)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
