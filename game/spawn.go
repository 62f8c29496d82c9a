package game

import (
	"errors"
)

// ErrNoFreeCell is returned by Spawn when the exclusion set covers the grid.
var ErrNoFreeCell = errors.New("no free cell")

// Rand is the randomness the core needs. *math/rand.Rand satisfies it, which
// lets tests pin a seed.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// Spawner picks cells uniformly at random from the part of the grid not in an
// exclusion set.
type Spawner struct {
	rng Rand
}

func NewSpawner(rng Rand) *Spawner {
	return &Spawner{rng: rng}
}

// Spawn returns a position uniformly distributed over the cells of a
// width×height grid that are not in excluded.
func (s *Spawner) Spawn(excluded map[Point]struct{}, width, height int) (Point, error) {
	if width <= 0 || height <= 0 {
		return Point{}, ErrNoFreeCell
	}
	capHint := width*height - len(excluded)
	if capHint < 0 {
		capHint = 0
	}
	available := make([]Point, 0, capHint)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := Point{X: x, Y: y}
			if _, ok := excluded[p]; ok {
				continue
			}
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return Point{}, ErrNoFreeCell
	}
	return available[s.rng.Intn(len(available))], nil
}

// intRange returns a uniform value in [lo, hi]. A collapsed range returns lo.
func (s *Spawner) intRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}

// weighted picks an index with probability proportional to weights[i].
func (s *Spawner) weighted(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	roll := s.rng.Intn(total)
	for i, w := range weights {
		if roll < w {
			return i
		}
		roll -= w
	}
	return len(weights) - 1
}
