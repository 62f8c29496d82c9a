package training

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/inference"
	"github.com/brensch/snekgrid/selfplay"
	"github.com/brensch/snekgrid/store"
)

func row(tick uint64, d game.Direction, kind game.OutcomeKind, phase game.Phase) store.TickRow {
	s := &game.Snapshot{
		SessionID: "s1",
		Tick:      tick,
		Width:     6,
		Height:    6,
		Snake:     []game.Point{{X: 3, Y: 3}, {X: 2, Y: 3}},
		Direction: d,
		Alive:     phase != game.PhaseGameOver,
		Food:      game.Food{Pos: game.Point{X: 5, Y: 5}, Kind: game.Mouse},
		Phase:     phase,
	}
	return store.RowFromSnapshot(s, game.Outcome{Kind: kind}, "test")
}

func TestExamples_PolicyAndValue(t *testing.T) {
	rows := []store.TickRow{
		row(1, game.Right, game.OutcomeContinuing, game.PhaseRunning),
		row(2, game.Up, game.OutcomeFed, game.PhaseRunning),
		row(3, game.Up, game.OutcomeContinuing, game.PhaseRunning),
		row(4, game.Left, game.OutcomeGameOver, game.PhaseGameOver),
	}
	got, err := Examples(rows, 6, 6)
	if err != nil {
		t.Fatalf("Examples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("examples=%d want 3", len(got))
	}
	want := []struct {
		policy game.Direction
		value  float32
	}{
		{game.Up, 1},
		{game.Up, -1},
		{game.Left, -1},
	}
	for i, w := range want {
		if got[i].Policy != int32(w.policy) || got[i].Value != w.value {
			t.Fatalf("example %d policy=%d value=%v want %d/%v", i, got[i].Policy, got[i].Value, w.policy, w.value)
		}
		probs := []float32{got[i].PolicyP0, got[i].PolicyP1, got[i].PolicyP2, got[i].PolicyP3}
		if probs[w.policy] != 1 {
			t.Fatalf("example %d one-hot=%v", i, probs)
		}
	}

	x := BytesToFloats(got[0].X)
	if len(x) != inference.Channels*6*6 {
		t.Fatalf("x len=%d", len(x))
	}
	// Head plane at (3,3).
	if x[3*6+3] != 1 {
		t.Fatalf("head cell=%v want 1", x[3*6+3])
	}
}

func TestValueTarget_Horizon(t *testing.T) {
	ahead := make([]store.TickRow, Horizon+1)
	for i := range ahead {
		ahead[i].Outcome = game.OutcomeContinuing.String()
	}
	ahead[Horizon].Outcome = game.OutcomeGameOver.String()
	if v := valueTarget(ahead); v != 0 {
		t.Fatalf("death past the horizon gave %v", v)
	}
	ahead[Horizon-1].Outcome = game.OutcomeGameOver.String()
	if v := valueTarget(ahead); v != -1 {
		t.Fatalf("death inside the horizon gave %v", v)
	}
}

func TestConvertFile(t *testing.T) {
	settings := game.Settings{
		Width: 10, Height: 10, InitialLength: 3, Wrap: true, TickRate: 10,
		Difficulty: game.Normal, ComboExpiryTicks: 30, LevelThreshold: 50,
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	var all []store.TickRow
	for seed := int64(1); seed <= 2; seed++ {
		_, rows, err := selfplay.PlayGame(context.Background(), settings, selfplay.Greedy, selfplay.Options{
			Seed: seed, MaxTicks: 25, Record: true, Source: "test", Logger: quiet,
		})
		if err != nil {
			t.Fatalf("play: %v", err)
		}
		all = append(all, rows...)
	}
	dir := t.TempDir()
	in, err := store.WriteReplayParquetAtomic(dir, all)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	out := filepath.Join(dir, "out.train.parquet")
	n, err := ConvertFile(in, out, 10, 10)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// One example per row except each session's last.
	if n != len(all)-2 {
		t.Fatalf("converted=%d want %d", n, len(all)-2)
	}
	got, err := parquet.ReadFile[Row](out)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != n || got[0].XC != inference.Channels || got[0].XW != 10 || got[0].Source != "test" {
		t.Fatalf("rows=%d first=%+v", len(got), got[0].SessionID)
	}

	// A board size mismatch converts nothing and leaves no file.
	skipped := filepath.Join(dir, "skipped.train.parquet")
	if n, err := ConvertFile(in, skipped, 11, 11); err != nil || n != 0 {
		t.Fatalf("mismatched convert=%d err=%v", n, err)
	}
	if _, err := parquet.ReadFile[Row](skipped); err == nil {
		t.Fatalf("file written for zero rows")
	}
}
