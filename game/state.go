// Package game is the simulation core for a single-player grid snake game.
//
// The package owns every rule of play: the grid, the snake's movement and
// self-collision model, food and obstacle placement, scoring with combos and
// levels, and the tick contract that ties them together. Everything outside
// (terminal rendering, websocket clients, persistence) talks to a Session
// through its request methods and reads Snapshots.
package game

import (
	"fmt"
	"strings"
)

// Point is a grid coordinate.
// (0,0) is the top-left cell; Up decreases Y.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Manhattan returns |dx|+|dy| without wrap.
func (p Point) Manhattan(o Point) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Direction is one of the four movement directions.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Directions lists every direction in declaration order.
var Directions = [...]Direction{Up, Down, Left, Right}

var directionNames = [...]string{"up", "down", "left", "right"}

// Delta returns the unit vector for d.
func (d Direction) Delta() Point {
	switch d {
	case Up:
		return Point{X: 0, Y: -1}
	case Down:
		return Point{X: 0, Y: 1}
	case Left:
		return Point{X: -1, Y: 0}
	default:
		return Point{X: 1, Y: 0}
	}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	if int(d) >= len(directionNames) {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(directionNames[d]), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection accepts the lower-case names and the single-letter forms u/d/l/r.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u":
		return Up, nil
	case "down", "d":
		return Down, nil
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Grid is the playing field. It has no state beyond its dimensions.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (g Grid) Dimensions() (int, int) { return g.Width, g.Height }

func (g Grid) Contains(p Point) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

func (g Grid) Cells() int { return g.Width * g.Height }

// Normalize maps p onto the grid. With wrap, both axes are taken modulo the
// grid size. Without wrap, any coordinate off the grid reports false
// (out of bounds), which the session treats as a lethal boundary hit.
func (g Grid) Normalize(p Point, wrap bool) (Point, bool) {
	if wrap {
		return Point{X: mod(p.X, g.Width), Y: mod(p.Y, g.Height)}, true
	}
	if !g.Contains(p) {
		return p, false
	}
	return p, true
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// pointSet is the exclusion set shape shared by the spawners.
type pointSet = map[Point]struct{}

func setOf(groups ...[]Point) pointSet {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make(pointSet, n)
	for _, g := range groups {
		for _, p := range g {
			out[p] = struct{}{}
		}
	}
	return out
}
