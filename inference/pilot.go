package inference

import (
	"context"
	"fmt"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
)

// Predictor is satisfied by OnnxClient and OnnxPool.
type Predictor interface {
	Predict(ctx context.Context, s *game.Snapshot) ([]float32, float32, error)
}

// Pilot picks the highest-scoring legal move from a Predictor.
type Pilot struct {
	p Predictor
}

func NewPilot(p Predictor) *Pilot { return &Pilot{p: p} }

// Move masks the policy with rules.LegalMoves. With no legal move left it
// answers rules.Greedy without asking the model.
func (pl *Pilot) Move(ctx context.Context, s *game.Snapshot) (game.Direction, error) {
	legal := rules.LegalMoves(s)
	if len(legal) == 0 {
		return rules.Greedy(s), nil
	}
	if len(legal) == 1 {
		return legal[0], nil
	}

	policy, _, err := pl.p.Predict(ctx, s)
	if err != nil {
		return s.Direction, err
	}
	if len(policy) != PolicySize {
		return s.Direction, fmt.Errorf("policy has %d entries, want %d", len(policy), PolicySize)
	}

	best := legal[0]
	for _, d := range legal[1:] {
		if policy[d] > policy[best] {
			best = d
		}
	}
	return best, nil
}
