// Package rules holds pure functions over game snapshots. Pilots and the
// training pipeline use them for lookahead without touching a live session.
package rules

import (
	"github.com/brensch/snekgrid/game"
)

// NextHead returns where the head lands moving d. ok is false when the move
// leaves a bounded grid.
func NextHead(s *game.Snapshot, d game.Direction) (game.Point, bool) {
	return s.Grid().Normalize(s.Head().Add(d.Delta()), s.Wrap)
}

// LegalMoves returns the directions that do not end the game this tick.
// A reversal is never legal since the session ignores it.
func LegalMoves(s *game.Snapshot) []game.Direction {
	if s == nil || len(s.Snake) == 0 || !s.Alive {
		return []game.Direction{}
	}
	blocked := blockedCells(s)
	moves := make([]game.Direction, 0, 3)
	for _, d := range game.Directions {
		if d == s.Direction.Opposite() {
			continue
		}
		if isSafe(s, d, blocked) {
			moves = append(moves, d)
		}
	}
	return moves
}

func isSafe(s *game.Snapshot, d game.Direction, blocked map[game.Point]struct{}) bool {
	p, ok := NextHead(s, d)
	if !ok {
		return false
	}
	if p == s.Food.Pos {
		// Food is resolved before obstacles, but the body still kills.
		if _, hit := bodyCells(s)[p]; hit {
			return false
		}
		return true
	}
	_, hit := blocked[p]
	return !hit
}

// bodyCells is the part of the body still there after the next move. The
// tail leaves unless the snake is growing.
func bodyCells(s *game.Snapshot) map[game.Point]struct{} {
	body := s.Snake
	if !s.Growing && len(body) > 0 {
		body = body[:len(body)-1]
	}
	out := make(map[game.Point]struct{}, len(body))
	for _, p := range body {
		out[p] = struct{}{}
	}
	return out
}

// blockedCells is every cell the head may not enter next tick.
func blockedCells(s *game.Snapshot) map[game.Point]struct{} {
	out := bodyCells(s)
	for _, o := range s.Obstacles {
		if o.Deadly {
			out[o.Pos] = struct{}{}
		}
	}
	return out
}

// NextState returns the snapshot after moving d, without spawning new food
// or regenerating obstacles. Eating marks the result as growing and clears
// the food to an off-grid cell.
func NextState(s *game.Snapshot, d game.Direction) *game.Snapshot {
	next := s.Clone()
	if next.Phase != game.PhaseRunning {
		return next
	}
	next.Tick++
	// The session ignores a reversal at any length.
	if d != next.Direction.Opposite() {
		next.Direction = d
	}

	head, ok := NextHead(next, next.Direction)
	if !ok {
		return dead(next, game.CauseBoundaryCollision)
	}
	if _, hit := bodyCells(next)[head]; hit {
		return dead(next, game.CauseSelfCollision)
	}

	body := make([]game.Point, 0, len(next.Snake)+1)
	body = append(body, head)
	if next.Growing {
		body = append(body, next.Snake...)
	} else {
		body = append(body, next.Snake[:len(next.Snake)-1]...)
	}
	next.Snake = body
	next.Growing = false

	if head == next.Food.Pos {
		next.Growing = true
		next.Score.Score += next.Food.Kind.Points()
		next.Food.Pos = game.Point{X: -1, Y: -1}
		return next
	}
	for _, o := range next.Obstacles {
		if o.Pos == head && o.Deadly {
			return dead(next, game.CauseDeadlyObstacle)
		}
	}
	return next
}

func dead(s *game.Snapshot, cause game.Cause) *game.Snapshot {
	s.Alive = false
	s.Phase = game.PhaseGameOver
	s.Cause = cause
	return s
}

// IsTerminal reports whether the game is over or the snake has no safe move.
func IsTerminal(s *game.Snapshot) bool {
	if s == nil || s.Phase == game.PhaseGameOver || !s.Alive {
		return true
	}
	return len(LegalMoves(s)) == 0
}

// Reachable counts the free cells the head could reach from from, including
// from itself. Body and deadly obstacles block the flood.
func Reachable(s *game.Snapshot, from game.Point) int {
	grid := s.Grid()
	blocked := blockedCells(s)
	seen := map[game.Point]struct{}{from: {}}
	queue := []game.Point{from}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range game.Directions {
			n, ok := grid.Normalize(p.Add(d.Delta()), s.Wrap)
			if !ok {
				continue
			}
			if _, b := blocked[n]; b {
				continue
			}
			if _, v := seen[n]; v {
				continue
			}
			seen[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return len(seen)
}

// Distance is the Manhattan distance between a and b, taking the short way
// round on wrapping grids.
func Distance(s *game.Snapshot, a, b game.Point) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if s.Wrap {
		dx = min(dx, s.Width-dx)
		dy = min(dy, s.Height-dy)
	}
	return dx + dy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Greedy picks the legal move that closes on the food, skipping moves that
// would trap the snake in a pocket smaller than its body. With no legal move
// it keeps the current heading.
func Greedy(s *game.Snapshot) game.Direction {
	moves := LegalMoves(s)
	if len(moves) == 0 {
		return s.Direction
	}

	type scored struct {
		d     game.Direction
		dist  int
		room  int
		roomy bool
	}
	best := scored{dist: -1}
	for _, d := range moves {
		next := NextState(s, d)
		c := scored{
			d:    d,
			dist: Distance(s, next.Head(), s.Food.Pos),
			room: Reachable(next, next.Head()),
		}
		c.roomy = c.room >= len(next.Snake)
		if best.dist < 0 || better(c.roomy, c.dist, c.room, best.roomy, best.dist, best.room) {
			best = c
		}
	}
	return best.d
}

func better(roomy bool, dist, room int, bestRoomy bool, bestDist, bestRoom int) bool {
	if roomy != bestRoomy {
		return roomy
	}
	if !roomy {
		return room > bestRoom
	}
	return dist < bestDist
}
