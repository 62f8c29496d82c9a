// Command snekd runs one session on a wall clock and serves it over
// websockets. Clients steer it with direction, pause, resume and reset
// commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/server"
	"github.com/brensch/snekgrid/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("snekd", flag.ExitOnError)
	noReplays := fs.Bool("no-replays", false, "Do not write Parquet replays of finished games")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	p, err := store.OpenPersistence(cfg.DBPath, cfg.HighScorePath, "human", logger)
	if err != nil {
		return err
	}
	defer p.Close()

	opts := []game.Option{
		game.WithListener(p.Recorder),
		game.WithLogger(logger),
		game.WithHighScore(p.HighScore()),
	}
	if cfg.Seed != 0 {
		opts = append(opts, game.WithRand(rand.New(rand.NewSource(cfg.Seed))))
	}
	sess, err := game.NewSession(cfg.Game, opts...)
	if err != nil {
		return err
	}

	hubOpts := server.Options{Source: "human", Logger: logger}
	if !*noReplays {
		hubOpts.ReplayDir = cfg.ReplayDir
	}
	hub := server.NewHub(sess, hubOpts)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "session", sess.ID(), "replays", hubOpts.ReplayDir)
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

	err = g.Wait()
	logger.Info("shut down", "session", sess.ID(), "ticks", sess.Ticks(), "score", sess.Score().Score)
	return err
}
