// obstacle.go implements per-level obstacle generation.

package game

import (
	"fmt"
	"log/slog"
)

// ObstacleKind is the material of an obstacle cell.
type ObstacleKind uint8

const (
	Wall ObstacleKind = iota
	Rocks
	Spikes
	Mud
)

type obstacleEntry struct {
	name   string
	weight int
	deadly bool
}

var obstacleKinds = [...]obstacleEntry{
	Wall:   {name: "wall", weight: 6, deadly: true},
	Rocks:  {name: "rocks", weight: 2, deadly: true},
	Spikes: {name: "spikes", weight: 1, deadly: true},
	Mud:    {name: "mud", weight: 1, deadly: false},
}

var obstacleWeights = []int{
	obstacleKinds[Wall].weight,
	obstacleKinds[Rocks].weight,
	obstacleKinds[Spikes].weight,
	obstacleKinds[Mud].weight,
}

func (k ObstacleKind) Deadly() bool {
	return int(k) < len(obstacleKinds) && obstacleKinds[k].deadly
}

func (k ObstacleKind) String() string {
	if int(k) < len(obstacleKinds) {
		return obstacleKinds[k].name
	}
	return fmt.Sprintf("obstacle(%d)", uint8(k))
}

func (k ObstacleKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ObstacleKind) UnmarshalText(b []byte) error {
	for i, e := range obstacleKinds {
		if e.name == string(b) {
			*k = ObstacleKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown obstacle kind %q", b)
}

type Obstacle struct {
	Pos    Point        `json:"pos"`
	Kind   ObstacleKind `json:"kind"`
	Deadly bool         `json:"deadly"`
}

// Pattern is the layout used for one generation.
type Pattern uint8

const (
	PatternScatter Pattern = iota
	PatternHorizontalWall
	PatternVerticalWall
	PatternDiagonal
	PatternEnclosure
	patternCount
)

func (p Pattern) String() string {
	switch p {
	case PatternScatter:
		return "scatter"
	case PatternHorizontalWall:
		return "horizontal-wall"
	case PatternVerticalWall:
		return "vertical-wall"
	case PatternDiagonal:
		return "diagonal"
	case PatternEnclosure:
		return "enclosure"
	}
	return "unknown"
}

// MaxPlacementAttempts bounds the candidate cells one generation may inspect.
const MaxPlacementAttempts = 100

// ObstacleField is the set of obstacles for the current level.
type ObstacleField struct {
	obstacles   []Obstacle
	index       map[Point]int
	pattern     Pattern
	generations int
}

func NewObstacleField() *ObstacleField {
	return &ObstacleField{index: make(map[Point]int)}
}

func (f *ObstacleField) Obstacles() []Obstacle {
	return append([]Obstacle(nil), f.obstacles...)
}

func (f *ObstacleField) Positions() []Point {
	out := make([]Point, len(f.obstacles))
	for i, o := range f.obstacles {
		out[i] = o.Pos
	}
	return out
}

func (f *ObstacleField) Len() int { return len(f.obstacles) }

// Pattern reports the layout of the last generation.
func (f *ObstacleField) Pattern() Pattern { return f.pattern }

// Generations counts Generate calls since the field was created.
func (f *ObstacleField) Generations() int { return f.generations }

func (f *ObstacleField) At(p Point) (Obstacle, bool) {
	i, ok := f.index[p]
	if !ok {
		return Obstacle{}, false
	}
	return f.obstacles[i], true
}

// CheckCollision reports whether p holds a deadly obstacle.
func (f *ObstacleField) CheckCollision(p Point) bool {
	o, ok := f.At(p)
	return ok && o.Deadly
}

// Generate replaces the field wholesale for the given level and difficulty.
// Cells in excluded are never used. Placement stops at the target count or
// after MaxPlacementAttempts candidates, whichever comes first.
func (f *ObstacleField) Generate(sp *Spawner, grid Grid, excluded map[Point]struct{}, level int, difficulty Difficulty, logger *slog.Logger) {
	f.obstacles = f.obstacles[:0]
	f.index = make(map[Point]int)
	f.generations++

	target := difficulty.ObstacleCount(level)
	f.pattern = Pattern(sp.rng.Intn(int(patternCount)))

	p := placer{field: f, sp: sp, grid: grid, excluded: excluded, target: target}
	switch f.pattern {
	case PatternScatter:
		p.scatter()
	case PatternHorizontalWall:
		p.wall(true)
	case PatternVerticalWall:
		p.wall(false)
	case PatternDiagonal:
		p.diagonal()
	case PatternEnclosure:
		p.enclosure()
	}

	if logger != nil {
		logger.Debug("obstacles generated",
			"pattern", f.pattern.String(),
			"level", level,
			"difficulty", difficulty.String(),
			"target", target,
			"placed", len(f.obstacles),
			"attempts", p.attempts,
		)
	}
}

func (f *ObstacleField) add(p Point, kind ObstacleKind) {
	f.index[p] = len(f.obstacles)
	f.obstacles = append(f.obstacles, Obstacle{Pos: p, Kind: kind, Deadly: kind.Deadly()})
}

// placer carries the shared accept/skip bookkeeping for every pattern.
type placer struct {
	field    *ObstacleField
	sp       *Spawner
	grid     Grid
	excluded map[Point]struct{}
	target   int
	attempts int
}

func (p *placer) done() bool {
	return len(p.field.obstacles) >= p.target || p.attempts >= MaxPlacementAttempts
}

// try inspects one candidate and reports whether it was placed.
func (p *placer) try(c Point) bool {
	if p.done() {
		return false
	}
	p.attempts++
	if !p.grid.Contains(c) {
		return false
	}
	if _, ok := p.excluded[c]; ok {
		return false
	}
	if _, ok := p.field.index[c]; ok {
		return false
	}
	p.field.add(c, ObstacleKind(p.sp.weighted(obstacleWeights)))
	return true
}

// scatter drops single cells away from the edges, sometimes with a small
// cluster around them.
func (p *placer) scatter() {
	w, h := p.grid.Dimensions()
	for !p.done() {
		c := Point{X: p.sp.intRange(2, w-3), Y: p.sp.intRange(2, h-3)}
		if !p.try(c) {
			continue
		}
		if p.sp.rng.Float64() < 0.3 {
			for _, d := range Directions {
				p.try(c.Add(d.Delta()))
			}
		}
	}
}

// wall runs a straight line across the grid with a 2-4 cell gap.
func (p *placer) wall(horizontal bool) {
	length, across := p.grid.Width, p.grid.Height
	if !horizontal {
		length, across = across, length
	}
	line := p.sp.intRange(across/4, across*3/4)
	start := p.sp.intRange(1, length/3)
	gapStart := p.sp.intRange(start+3, length*2/3)
	gapEnd := gapStart + p.sp.intRange(2, 4)

	for i := start; i < length-1 && !p.done(); i++ {
		if i >= gapStart && i < gapEnd {
			continue
		}
		if horizontal {
			p.try(Point{X: i, Y: line})
		} else {
			p.try(Point{X: line, Y: i})
		}
	}
}

func (p *placer) diagonal() {
	w, h := p.grid.Dimensions()
	x := p.sp.intRange(2, w/3)
	y := p.sp.intRange(2, h/3)
	for ; x < w-2 && y < h-2 && !p.done(); x, y = x+1, y+1 {
		p.try(Point{X: x, Y: y})
	}
}

// enclosure builds a square room around the centre with one gap on a random side.
func (p *placer) enclosure() {
	w, h := p.grid.Dimensions()
	cx, cy := w/2, h/2
	size := p.sp.intRange(5, 8)
	half := size / 2
	gapSide := Directions[p.sp.rng.Intn(len(Directions))]
	gap := p.sp.intRange(1, size-2)

	for i := 0; i < size && !p.done(); i++ {
		if gapSide != Down || i != gap {
			p.try(Point{X: cx - half + i, Y: cy + half})
		}
		if gapSide != Up || i != gap {
			p.try(Point{X: cx - half + i, Y: cy - half})
		}
		if gapSide != Left || i != gap {
			p.try(Point{X: cx - half, Y: cy - half + i})
		}
		if gapSide != Right || i != gap {
			p.try(Point{X: cx + half, Y: cy - half + i})
		}
	}
}
