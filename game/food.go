// food.go implements the food catalog and respawn policy.

package game

import (
	"fmt"
	"log/slog"
)

// FoodKind is an entry of the fixed food catalog.
type FoodKind uint8

const (
	Mouse FoodKind = iota
	Egg
	Frog
	Bird
	Fruit
	Bug
)

type foodEntry struct {
	name   string
	points int
	weight int
}

var foodCatalog = [...]foodEntry{
	Mouse: {name: "mouse", points: 10, weight: 3},
	Egg:   {name: "egg", points: 5, weight: 3},
	Frog:  {name: "frog", points: 15, weight: 2},
	Bird:  {name: "bird", points: 20, weight: 1},
	Fruit: {name: "fruit", points: 5, weight: 3},
	Bug:   {name: "bug", points: 10, weight: 2},
}

// FoodKinds lists the catalog in declaration order.
func FoodKinds() []FoodKind {
	out := make([]FoodKind, len(foodCatalog))
	for i := range foodCatalog {
		out[i] = FoodKind(i)
	}
	return out
}

// Points is the base score awarded before the combo multiplier.
func (k FoodKind) Points() int {
	if int(k) < len(foodCatalog) {
		return foodCatalog[k].points
	}
	return 0
}

func (k FoodKind) String() string {
	if int(k) < len(foodCatalog) {
		return foodCatalog[k].name
	}
	return fmt.Sprintf("food(%d)", uint8(k))
}

func (k FoodKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *FoodKind) UnmarshalText(b []byte) error {
	for i, e := range foodCatalog {
		if e.name == string(b) {
			*k = FoodKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown food kind %q", b)
}

var foodWeights = func() []int {
	w := make([]int, len(foodCatalog))
	for i, e := range foodCatalog {
		w[i] = e.weight
	}
	return w
}()

// Food is the single active food item.
type Food struct {
	Pos  Point    `json:"pos"`
	Kind FoodKind `json:"kind"`
}

// Respawn moves the food to a free cell and draws a new kind.
//
// excluded should hold the snake body and every obstacle. When nothing is
// free, the food goes to the cell farthest (Manhattan) from head, lowest (x,y)
// on ties, regardless of occupancy. That case is reported as degraded.
func (f *Food) Respawn(sp *Spawner, grid Grid, excluded map[Point]struct{}, head Point, logger *slog.Logger) (degraded bool) {
	f.Kind = FoodKind(sp.weighted(foodWeights))

	pos, err := sp.Spawn(excluded, grid.Width, grid.Height)
	if err == nil {
		f.Pos = pos
		return false
	}

	f.Pos = farthestCell(grid, head)
	if logger != nil {
		logger.Warn("no free cell for food, using farthest cell",
			"pos", f.Pos.String(),
			"head", head.String(),
			"excluded", len(excluded),
		)
	}
	return true
}

func farthestCell(grid Grid, from Point) Point {
	best := Point{}
	bestDist := -1
	for x := 0; x < grid.Width; x++ {
		for y := 0; y < grid.Height; y++ {
			p := Point{X: x, Y: y}
			if d := p.Manhattan(from); d > bestDist {
				best, bestDist = p, d
			}
		}
	}
	return best
}
