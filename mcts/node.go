// Package mcts runs a PUCT tree search over rules.NextState. A search ends
// at the next food: what spawns after it is unknown, so eating counts as a
// win and dying as a loss.
package mcts

import (
	"context"

	"github.com/brensch/snekgrid/game"
)

// Node represents a state in the search tree. Children are indexed by
// game.Direction.
type Node struct {
	VisitCount int
	ValueSum   float32
	PriorProb  float32
	Children   [4]*Node
	State      *game.Snapshot
	IsExpanded bool
}

func NewNode(state *game.Snapshot, prior float32) *Node {
	return &Node{
		State:     state,
		PriorProb: prior,
	}
}

// Q is the mean value of the node, zero before its first visit.
func (n *Node) Q() float32 {
	if n.VisitCount == 0 {
		return 0
	}
	return n.ValueSum / float32(n.VisitCount)
}

type Config struct {
	Cpuct float32
}

func DefaultConfig() Config { return Config{Cpuct: 1.0} }

// Predictor returns policy logits for the four directions and a value in
// [-1, 1]. *inference.OnnxClient satisfies it.
type Predictor interface {
	Predict(ctx context.Context, s *game.Snapshot) ([]float32, float32, error)
}

// MCTS holds the search context
type MCTS struct {
	Config Config
	Client Predictor
}
