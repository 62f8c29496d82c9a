// Command snek plays a session in the terminal.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("snek", flag.ExitOnError)
	record := fs.Bool("record", false, "Write a Parquet replay of every finished game to the replay dir")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	// The terminal belongs to the board, so logs go to a file.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "snek.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	logger := cfg.Logger(logFile)

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
	logger.Info("session started", "session", sess.ID(), "difficulty", cfg.Game.Difficulty.String(), "high_score", p.HighScore())

	replayDir := ""
	if *record {
		replayDir = cfg.ReplayDir
	}
	m := newModel(sess, replayDir, logger)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	logger.Info("session closed", "session", sess.ID(), "ticks", sess.Ticks(), "score", sess.Score().Score)
	return nil
}
