// Command snekbot connects to a running snekd and plays its session with
// one of the automated pilots, optionally recording what it sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/mcts"
	"github.com/brensch/snekgrid/selfplay"
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
	fs := flag.NewFlagSet("snekbot", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "snekd websocket URL")
	pilotKind := fs.String("pilot", "greedy", "greedy, random or mcts")
	sims := fs.Int("sims", 100, "Number of MCTS simulations per move")
	games := fs.Int("games", 0, "If > 0, stop after this many finished games")
	restart := fs.Bool("restart", true, "Reset the session after every game over")
	record := fs.Bool("record", false, "Write a Parquet replay of every finished game to the replay dir")
	connectTimeout := fs.Duration("connect-timeout", 10*time.Second, "Websocket handshake timeout")
	readTimeout := fs.Duration("read-timeout", 30*time.Second, "Max wait for the next tick")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	var pilot server.Pilot
	switch *pilotKind {
	case "greedy":
		pilot = selfplay.Greedy
	case "random":
		pilot = selfplay.Random(rand.New(rand.NewSource(time.Now().UnixNano())))
	case "mcts":
		pilot = mcts.NewPilot(mcts.Heuristic{}, mcts.DefaultConfig(), *sims)
	default:
		return fmt.Errorf("unknown pilot %q", *pilotKind)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := server.Dial(ctx, *url, server.DialConfig{ConnectTimeout: *connectTimeout, ReadTimeout: *readTimeout})
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Info("connected", "url", *url, "pilot", *pilotKind)

	var onGame func([]store.TickRow) error
	if *record {
		onGame = func(rows []store.TickRow) error {
			path, err := store.WriteReplayParquetAtomic(cfg.ReplayDir, rows)
			if err != nil {
				return err
			}
			logger.Info("replay written", "session", rows[0].SessionID, "path", path, "rows", len(rows))
			return nil
		}
	}

	stats, err := c.Play(ctx, pilot, server.BotOptions{
		Games:   *games,
		Restart: *restart,
		Record:  *record,
		Source:  "bot-" + *pilotKind,
		Logger:  logger,
	}, onGame)
	logger.Info("bot finished",
		"games", stats.Games,
		"frames", stats.Frames,
		"commands", stats.Commands,
		"fallbacks", stats.Fallbacks,
	)
	return err
}
