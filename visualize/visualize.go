// Package visualize renders snapshots as plain text for terminals, logs and
// debugging.
package visualize

import (
	"fmt"
	"strings"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/inference"
)

const (
	Empty = '.'
	Head  = '@'
	Body  = 'o'
)

var foodGlyphs = map[game.FoodKind]rune{
	game.Mouse: 'M',
	game.Egg:   'E',
	game.Frog:  'F',
	game.Bird:  'B',
	game.Fruit: '*',
	game.Bug:   '&',
}

var obstacleGlyphs = map[game.ObstacleKind]rune{
	game.Wall:   '#',
	game.Rocks:  '%',
	game.Spikes: '^',
	game.Mud:    '~',
}

func FoodGlyph(k game.FoodKind) rune         { return foodGlyphs[k] }
func ObstacleGlyph(k game.ObstacleKind) rune { return obstacleGlyphs[k] }

// IsFood reports whether r is one of the food glyphs.
func IsFood(r rune) bool {
	for _, g := range foodGlyphs {
		if g == r {
			return true
		}
	}
	return false
}

// Grid lays the snapshot out row by row, top row first. The snake is drawn
// over food and obstacles, the head over everything. Cells off the board
// are dropped.
func Grid(s *game.Snapshot) [][]rune {
	grid := make([][]rune, s.Height)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(string(Empty), s.Width))
	}
	put := func(p game.Point, r rune) {
		if p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height {
			grid[p.Y][p.X] = r
		}
	}
	for _, o := range s.Obstacles {
		put(o.Pos, obstacleGlyphs[o.Kind])
	}
	put(s.Food.Pos, foodGlyphs[s.Food.Kind])
	for i := len(s.Snake) - 1; i > 0; i-- {
		put(s.Snake[i], Body)
	}
	if len(s.Snake) > 0 {
		put(s.Snake[0], Head)
	}
	return grid
}

// Board is Grid with a header line, cells separated by spaces.
func Board(s *game.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== tick %d  score %d  level %d  %s", s.Tick, s.Score.Score, s.Score.Level, s.Direction)
	if s.Phase == game.PhaseGameOver {
		fmt.Fprintf(&sb, "  game over (%s)", s.Cause)
	}
	sb.WriteString(" ===\n")
	for _, row := range Grid(s) {
		for x, r := range row {
			if x > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteRune(r)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

var layerNames = [inference.Channels]string{"head", "body_ttl", "food", "deadly", "mud", "wrap"}

// Layers prints the model input planes for s, one block per channel.
func Layers(s *game.Snapshot) string {
	w, h := s.Width, s.Height
	data := inference.EncodeSnapshot(s, w, h)

	var sb strings.Builder
	sb.WriteString("--- encoded input layers (C,H,W) ---\n")
	for c := 0; c < inference.Channels; c++ {
		fmt.Fprintf(&sb, "layer %d (%s):\n", c, layerNames[c])
		base := c * h * w
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := data[base+y*w+x]
				if v == 0 {
					sb.WriteString("   . ")
					continue
				}
				fmt.Fprintf(&sb, "%4.2f ", v)
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
