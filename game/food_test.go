package game

import (
	"errors"
	"math/rand"
	"testing"
)

func TestSpawn_NeverPicksExcluded(t *testing.T) {
	sp := NewSpawner(rand.New(rand.NewSource(7)))
	excluded := pointSet{}
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			if (x+y)%3 != 0 {
				excluded[Point{X: x, Y: y}] = struct{}{}
			}
		}
	}
	counts := map[Point]int{}
	for i := 0; i < 1200; i++ {
		p, err := sp.Spawn(excluded, 6, 6)
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		if _, bad := excluded[p]; bad {
			t.Fatalf("spawned on excluded cell %v", p)
		}
		counts[p]++
	}
	free := 36 - len(excluded)
	if len(counts) != free {
		t.Fatalf("distinct cells=%d want=%d", len(counts), free)
	}
	for p, n := range counts {
		if n < 50 || n > 150 {
			t.Fatalf("cell %v drawn %d times, expected about %d", p, n, 1200/free)
		}
	}
}

func TestSpawn_FullGrid(t *testing.T) {
	sp := NewSpawner(rand.New(rand.NewSource(1)))
	excluded := setOf(Grid{Width: 2, Height: 2}.allCells())
	if _, err := sp.Spawn(excluded, 2, 2); !errors.Is(err, ErrNoFreeCell) {
		t.Fatalf("err=%v want=%v", err, ErrNoFreeCell)
	}
}

func TestRespawn_ExcludesBodyAndObstacles(t *testing.T) {
	grid := Grid{Width: 8, Height: 8}
	body := []Point{{X: 3, Y: 3}, {X: 2, Y: 3}, {X: 1, Y: 3}, {X: 1, Y: 4}}
	walls := []Point{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 5}}
	for seed := int64(0); seed < 200; seed++ {
		sp := NewSpawner(rand.New(rand.NewSource(seed)))
		var f Food
		if f.Respawn(sp, grid, setOf(body, walls), body[0], discardLogger) {
			t.Fatalf("seed %d: unexpected degraded respawn", seed)
		}
		for _, p := range append(body, walls...) {
			if f.Pos == p {
				t.Fatalf("seed %d: food on occupied cell %v", seed, p)
			}
		}
		if !grid.Contains(f.Pos) {
			t.Fatalf("seed %d: food off grid at %v", seed, f.Pos)
		}
		if f.Kind.Points() <= 0 {
			t.Fatalf("seed %d: kind %v worth %d", seed, f.Kind, f.Kind.Points())
		}
	}
}

func TestRespawn_DegradedPicksFarthestCell(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
		head Point
		want Point
	}{
		{"corner head", Grid{Width: 4, Height: 3}, Point{X: 0, Y: 0}, Point{X: 3, Y: 2}},
		// Four corners tie at distance 2; lowest (x,y) wins.
		{"tie break", Grid{Width: 3, Height: 3}, Point{X: 1, Y: 1}, Point{X: 0, Y: 0}},
		{"single cell", Grid{Width: 1, Height: 1}, Point{X: 0, Y: 0}, Point{X: 0, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := NewSpawner(rand.New(rand.NewSource(3)))
			var f Food
			degraded := f.Respawn(sp, tt.grid, setOf(tt.grid.allCells()), tt.head, discardLogger)
			if !degraded {
				t.Fatalf("expected degraded respawn")
			}
			if f.Pos != tt.want {
				t.Fatalf("pos=%v want=%v", f.Pos, tt.want)
			}
		})
	}
}

func TestFoodKinds_Catalog(t *testing.T) {
	want := map[FoodKind]int{Mouse: 10, Egg: 5, Frog: 15, Bird: 20, Fruit: 5, Bug: 10}
	kinds := FoodKinds()
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%d want=%d", len(kinds), len(want))
	}
	for _, k := range kinds {
		if k.Points() != want[k] {
			t.Fatalf("%v points=%d want=%d", k, k.Points(), want[k])
		}
		var back FoodKind
		txt, _ := k.MarshalText()
		if err := back.UnmarshalText(txt); err != nil || back != k {
			t.Fatalf("text round trip %v -> %q -> %v (%v)", k, txt, back, err)
		}
	}
}

func (g Grid) allCells() []Point {
	out := make([]Point, 0, g.Cells())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			out = append(out, Point{X: x, Y: y})
		}
	}
	return out
}
