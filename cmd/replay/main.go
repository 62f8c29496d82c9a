// Command replay prints a recorded Parquet replay as text boards, with the
// model input planes and a search analysis on request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/mcts"
	"github.com/brensch/snekgrid/rules"
	"github.com/brensch/snekgrid/store"
	"github.com/brensch/snekgrid/visualize"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	file := fs.String("file", "", "Replay or batch Parquet file")
	session := fs.String("session", "", "Only print this session (batch files hold many)")
	from := fs.Int64("from", 0, "First tick to print")
	to := fs.Int64("to", -1, "Last tick to print (-1 = end)")
	layers := fs.Bool("layers", false, "Print the encoded model input planes under each board")
	analyse := fs.Bool("analyse", false, "Run a heuristic search on each board and print its choice")
	sims := fs.Int("sims", 200, "Search simulations per board for -analyse")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	rows, err := store.ReadReplayParquet(*file)
	if err != nil {
		return err
	}

	search := mcts.MCTS{Config: mcts.DefaultConfig(), Client: mcts.Heuristic{}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	printed := 0
	for _, row := range rows {
		if *session != "" && row.SessionID != *session {
			continue
		}
		if row.Tick < *from || (*to >= 0 && row.Tick > *to) {
			continue
		}
		snap, err := row.Snapshot()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "session %s  outcome %s\n", row.SessionID, row.Outcome)
		io.WriteString(out, visualize.Board(snap))
		if *layers {
			io.WriteString(out, visualize.Layers(snap))
		}
		if *analyse && snap.Phase == game.PhaseRunning {
			if err := analyseBoard(ctx, out, &search, snap, *sims); err != nil {
				return err
			}
		}
		printed++
	}
	if printed == 0 {
		return fmt.Errorf("no rows matched in %s", *file)
	}
	fmt.Fprintf(out, "%d of %d rows\n", printed, len(rows))
	return nil
}

func analyseBoard(ctx context.Context, out io.Writer, search *mcts.MCTS, snap *game.Snapshot, sims int) error {
	if len(rules.LegalMoves(snap)) == 0 {
		fmt.Fprintln(out, "search: no legal moves")
		return nil
	}
	root, depth, err := search.Search(ctx, snap, sims)
	if err != nil {
		return err
	}
	policy := mcts.Policy(root)
	best := mcts.BestMove(root, rules.Greedy(snap))
	fmt.Fprintf(out, "search: best=%s greedy=%s depth=%d", best, rules.Greedy(snap), depth)
	for _, d := range game.Directions {
		if c := root.Children[d]; c != nil {
			fmt.Fprintf(out, " %s=%.2f(q=%.2f)", d, policy[d], c.Q())
		}
	}
	fmt.Fprintln(out)
	return nil
}
