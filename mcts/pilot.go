package mcts

import (
	"context"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
)

// Heuristic is a Predictor that needs no model. Its policy favours moves
// that close on the food and its value rewards room to move.
type Heuristic struct{}

func (Heuristic) Predict(_ context.Context, s *game.Snapshot) ([]float32, float32, error) {
	logits := []float32{-10, -10, -10, -10}
	span := float32(s.Width + s.Height)
	for _, d := range rules.LegalMoves(s) {
		next := rules.NextState(s, d)
		if next.Food.Pos.X < 0 {
			logits[d] = 1
			continue
		}
		logits[d] = -float32(rules.Distance(next, next.Head(), s.Food.Pos)) / span
	}

	room := float32(rules.Reachable(s, s.Head())) / float32(2*len(s.Snake))
	if room > 1 {
		room = 1
	}
	closeness := 1 - float32(rules.Distance(s, s.Head(), s.Food.Pos))/span
	return logits, room*0.5 + closeness*0.5 - 0.5, nil
}

// Pilot picks moves by searching from each snapshot.
type Pilot struct {
	search      MCTS
	simulations int
}

func NewPilot(p Predictor, cfg Config, simulations int) *Pilot {
	if simulations <= 0 {
		simulations = 100
	}
	return &Pilot{search: MCTS{Config: cfg, Client: p}, simulations: simulations}
}

// Move skips the search when at most one move is legal.
func (pl *Pilot) Move(ctx context.Context, s *game.Snapshot) (game.Direction, error) {
	moves := rules.LegalMoves(s)
	switch len(moves) {
	case 0:
		return rules.Greedy(s), nil
	case 1:
		return moves[0], nil
	}
	root, _, err := pl.search.Search(ctx, s, pl.simulations)
	if err != nil {
		return 0, err
	}
	return BestMove(root, rules.Greedy(s)), nil
}
