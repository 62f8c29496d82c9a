package mcts

import (
	"context"
	"errors"
	"testing"

	"github.com/brensch/snekgrid/game"
)

// uniformClient returns flat priors and a neutral value.
type uniformClient struct{ calls int }

func (c *uniformClient) Predict(context.Context, *game.Snapshot) ([]float32, float32, error) {
	c.calls++
	return []float32{0, 0, 0, 0}, 0, nil
}

func snapshot(w, h int, body []game.Point, heading game.Direction, food game.Point) *game.Snapshot {
	return &game.Snapshot{
		Width:     w,
		Height:    h,
		Snake:     body,
		Direction: heading,
		Alive:     true,
		Food:      game.Food{Pos: food, Kind: game.Mouse},
		Phase:     game.PhaseRunning,
	}
}

func TestSearch(t *testing.T) {
	client := &uniformClient{}
	m := MCTS{Config: DefaultConfig(), Client: client}
	state := snapshot(11, 11, []game.Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 3, Y: 5}}, game.Right, game.Point{X: 8, Y: 1})

	simulations := 10
	root, depth, err := m.Search(context.Background(), state, simulations)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if root.VisitCount != simulations {
		t.Errorf("Expected VisitCount %d, got %d", simulations, root.VisitCount)
	}

	totalChildVisits := 0
	childrenFound := 0
	for _, child := range root.Children {
		if child != nil {
			childrenFound++
			totalChildVisits += child.VisitCount
		}
	}
	if childrenFound != 3 {
		t.Errorf("Expected 3 children (no reversal), got %d", childrenFound)
	}
	if root.Children[game.Left] != nil {
		t.Errorf("reversal was expanded")
	}
	if totalChildVisits != simulations-1 {
		t.Errorf("Expected sum of child visits %d, got %d", simulations-1, totalChildVisits)
	}
	if depth < 1 {
		t.Errorf("depth=%d", depth)
	}
	if client.calls == 0 {
		t.Errorf("predictor never called")
	}
}

func TestSearch_PrefersAdjacentFood(t *testing.T) {
	// Heading right along the bottom edge with food directly above the head.
	state := snapshot(8, 8, []game.Point{{X: 3, Y: 7}, {X: 2, Y: 7}, {X: 1, Y: 7}}, game.Right, game.Point{X: 3, Y: 6})
	m := MCTS{Config: DefaultConfig(), Client: &uniformClient{}}

	root, _, err := m.Search(context.Background(), state, 60)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := BestMove(root, game.Right); got != game.Up {
		t.Fatalf("best=%v want up; policy=%v", got, Policy(root))
	}
	if q := root.Children[game.Up].Q(); q != winValue {
		t.Fatalf("Q(up)=%v want %v", q, winValue)
	}
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := MCTS{Config: DefaultConfig(), Client: &uniformClient{}}
	state := snapshot(8, 8, []game.Point{{X: 4, Y: 4}}, game.Right, game.Point{X: 0, Y: 0})
	_, _, err := m.Search(ctx, state, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

type failingClient struct{}

func (failingClient) Predict(context.Context, *game.Snapshot) ([]float32, float32, error) {
	return nil, 0, errors.New("boom")
}

func TestPilot(t *testing.T) {
	ctx := context.Background()

	// Boxed into a corner with one way out: no search needed.
	client := &uniformClient{}
	cornered := snapshot(8, 8, []game.Point{{X: 7, Y: 0}, {X: 6, Y: 0}, {X: 5, Y: 0}}, game.Right, game.Point{X: 0, Y: 7})
	d, err := NewPilot(client, DefaultConfig(), 50).Move(ctx, cornered)
	if err != nil || d != game.Down {
		t.Fatalf("cornered move=%v err=%v want down", d, err)
	}
	if client.calls != 0 {
		t.Fatalf("predictor called %d times for a forced move", client.calls)
	}

	open := snapshot(8, 8, []game.Point{{X: 4, Y: 4}, {X: 3, Y: 4}}, game.Right, game.Point{X: 7, Y: 4})
	if _, err := NewPilot(failingClient{}, DefaultConfig(), 10).Move(ctx, open); err == nil {
		t.Fatalf("predictor error not returned")
	}

	d, err = NewPilot(Heuristic{}, DefaultConfig(), 200).Move(ctx, open)
	if err != nil || d != game.Right {
		t.Fatalf("heuristic move=%v err=%v want right", d, err)
	}
}

func TestSoftmax4(t *testing.T) {
	p := softmax4([]float32{1, 1, 1, 1})
	for i, v := range p {
		if v < 0.2499 || v > 0.2501 {
			t.Fatalf("p[%d]=%v want 0.25", i, v)
		}
	}
	if p := softmax4([]float32{1}); p != [4]float32{} {
		t.Fatalf("short logits gave %v", p)
	}
}
