package mcts

import (
	"context"
	"math"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
)

const (
	winValue  = float32(1)
	lossValue = float32(-1)
)

func softmax4(logits []float32) [4]float32 {
	var out [4]float32
	if len(logits) < 4 {
		return out
	}
	maxV := logits[0]
	for i := 1; i < 4; i++ {
		if logits[i] > maxV {
			maxV = logits[i]
		}
	}
	sum := float32(0)
	for i := 0; i < 4; i++ {
		e := float32(math.Exp(float64(logits[i] - maxV)))
		out[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := 0; i < 4; i++ {
			out[i] *= inv
		}
	}
	return out
}

// terminalValue scores states the search does not expand.
func terminalValue(s *game.Snapshot) (float32, bool) {
	if s.Phase == game.PhaseGameOver || !s.Alive {
		return lossValue, true
	}
	if s.Food.Pos.X < 0 {
		return winValue, true
	}
	if len(rules.LegalMoves(s)) == 0 {
		return lossValue, true
	}
	return 0, false
}

// Search runs the simulations from rootState and returns the root together
// with the deepest path length reached.
func (m *MCTS) Search(ctx context.Context, rootState *game.Snapshot, simulations int) (*Node, int, error) {
	root := NewNode(rootState, 1.0)
	maxDepth := 0

	for i := 0; i < simulations; i++ {
		if err := ctx.Err(); err != nil {
			return root, maxDepth, err
		}

		node := root
		path := []*Node{node}

		// Selection
		for node.IsExpanded {
			best := -1
			bestScore := float32(-1e9)
			sqrtSumN := float32(math.Sqrt(float64(node.VisitCount)))

			for moveIdx, child := range node.Children {
				if child == nil {
					continue
				}
				// U(s,a) = Q(s,a) + C_puct * P(s,a) * sqrt(sum(N)) / (1 + N)
				u := child.Q() + m.Config.Cpuct*child.PriorProb*sqrtSumN/(1+float32(child.VisitCount))
				if u > bestScore {
					bestScore = u
					best = moveIdx
				}
			}
			if best < 0 {
				break
			}
			node = node.Children[best]
			path = append(path, node)
		}

		if d := len(path) - 1; d > maxDepth {
			maxDepth = d
		}

		// Expansion & Evaluation
		value, terminal := terminalValue(node.State)
		if !terminal {
			logits, v, err := m.Client.Predict(ctx, node.State)
			if err != nil {
				return nil, 0, err
			}
			value = v
			priors := softmax4(logits)
			for _, d := range rules.LegalMoves(node.State) {
				node.Children[d] = NewNode(rules.NextState(node.State, d), priors[d])
			}
			node.IsExpanded = true
		}

		// Backpropagation
		for _, n := range path {
			n.VisitCount++
			n.ValueSum += value
		}
	}

	return root, maxDepth, nil
}

// BestMove is the most visited child of root, higher Q breaking ties. With
// no children it returns fallback.
func BestMove(root *Node, fallback game.Direction) game.Direction {
	best := fallback
	var bestNode *Node
	for d, child := range root.Children {
		if child == nil {
			continue
		}
		if bestNode == nil || child.VisitCount > bestNode.VisitCount ||
			(child.VisitCount == bestNode.VisitCount && child.Q() > bestNode.Q()) {
			best = game.Direction(d)
			bestNode = child
		}
	}
	return best
}

// Policy is the visit distribution over the root's children, usable as a
// training target.
func Policy(root *Node) [4]float32 {
	var out [4]float32
	total := 0
	for _, child := range root.Children {
		if child != nil {
			total += child.VisitCount
		}
	}
	if total == 0 {
		return out
	}
	for d, child := range root.Children {
		if child != nil {
			out[d] = float32(child.VisitCount) / float32(total)
		}
	}
	return out
}
