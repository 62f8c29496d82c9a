package game

import (
	"math/rand"
	"testing"
)

func TestObstacleCount_Table(t *testing.T) {
	tests := []struct {
		d     Difficulty
		level int
		want  int
	}{
		{Easy, 1, 3},
		{Easy, 4, 5},
		{Normal, 1, 6},
		{Normal, 10, 15},
		{Hard, 1, 8},
		{Hard, 3, 11},
		{Expert, 1, 12},
		{Expert, 10, 30},
		{Expert, 50, MaxObstacles},
		{Normal, 100, MaxObstacles},
	}
	for _, tt := range tests {
		if got := tt.d.ObstacleCount(tt.level); got != tt.want {
			t.Fatalf("%v level %d: count=%d want=%d", tt.d, tt.level, got, tt.want)
		}
	}
}

func TestGenerate_RespectsExclusionsAndTarget(t *testing.T) {
	grid := Grid{Width: 40, Height: 30}
	excluded := setOf([]Point{{X: 20, Y: 15}, {X: 19, Y: 15}, {X: 18, Y: 15}, {X: 21, Y: 15}, {X: 22, Y: 15}})
	seen := map[Pattern]bool{}

	for seed := int64(0); seed < 300; seed++ {
		sp := NewSpawner(rand.New(rand.NewSource(seed)))
		f := NewObstacleField()
		level := int(seed%12) + 1
		d := Difficulty(seed % 4)
		f.Generate(sp, grid, excluded, level, d, discardLogger)
		seen[f.Pattern()] = true

		if f.Len() > d.ObstacleCount(level) {
			t.Fatalf("seed %d: placed %d > target %d", seed, f.Len(), d.ObstacleCount(level))
		}
		cells := map[Point]bool{}
		for _, o := range f.Obstacles() {
			if !grid.Contains(o.Pos) {
				t.Fatalf("seed %d: obstacle off grid at %v", seed, o.Pos)
			}
			if _, bad := excluded[o.Pos]; bad {
				t.Fatalf("seed %d: obstacle on excluded cell %v", seed, o.Pos)
			}
			if cells[o.Pos] {
				t.Fatalf("seed %d: duplicate obstacle at %v", seed, o.Pos)
			}
			cells[o.Pos] = true
			if o.Deadly != o.Kind.Deadly() {
				t.Fatalf("seed %d: %v deadly=%v", seed, o.Kind, o.Deadly)
			}
		}
	}
	for p := Pattern(0); p < patternCount; p++ {
		if !seen[p] {
			t.Fatalf("pattern %v never generated", p)
		}
	}
}

func TestGenerate_ScatterFillsTarget(t *testing.T) {
	grid := Grid{Width: 40, Height: 30}
	for seed := int64(0); seed < 200; seed++ {
		sp := NewSpawner(rand.New(rand.NewSource(seed)))
		f := NewObstacleField()
		f.Generate(sp, grid, pointSet{}, 1, Normal, nil)
		if f.Pattern() != PatternScatter {
			continue
		}
		if f.Len() != Normal.ObstacleCount(1) {
			t.Fatalf("seed %d: scatter placed %d want %d", seed, f.Len(), Normal.ObstacleCount(1))
		}
		return
	}
	t.Fatalf("no seed produced a scatter pattern")
}

func TestGenerate_StopsWhenNothingFits(t *testing.T) {
	grid := Grid{Width: 12, Height: 12}
	excluded := setOf(grid.allCells())
	sp := NewSpawner(rand.New(rand.NewSource(5)))
	f := NewObstacleField()
	for i := 0; i < 20; i++ {
		f.Generate(sp, grid, excluded, 10, Expert, discardLogger)
		if f.Len() != 0 {
			t.Fatalf("placed %d obstacles on a fully excluded grid", f.Len())
		}
	}
	if f.Generations() != 20 {
		t.Fatalf("generations=%d want=20", f.Generations())
	}
}

func TestGenerate_ReplacesPreviousField(t *testing.T) {
	grid := Grid{Width: 40, Height: 30}
	sp := NewSpawner(rand.New(rand.NewSource(11)))
	f := NewObstacleField()
	f.add(Point{X: 0, Y: 0}, Wall)
	f.Generate(sp, grid, setOf([]Point{{X: 0, Y: 0}}), 1, Easy, discardLogger)
	if _, ok := f.At(Point{X: 0, Y: 0}); ok {
		t.Fatalf("stale obstacle survived regeneration")
	}
	if len(f.index) != f.Len() {
		t.Fatalf("index size=%d len=%d", len(f.index), f.Len())
	}
}

func TestCheckCollision_OnlyDeadly(t *testing.T) {
	f := NewObstacleField()
	f.add(Point{X: 1, Y: 1}, Wall)
	f.add(Point{X: 2, Y: 1}, Rocks)
	f.add(Point{X: 3, Y: 1}, Spikes)
	f.add(Point{X: 4, Y: 1}, Mud)

	for _, p := range []Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 3, Y: 1}} {
		if !f.CheckCollision(p) {
			t.Fatalf("expected collision at %v", p)
		}
	}
	if f.CheckCollision(Point{X: 4, Y: 1}) {
		t.Fatalf("mud reported as deadly")
	}
	if f.CheckCollision(Point{X: 5, Y: 1}) {
		t.Fatalf("empty cell reported as deadly")
	}
	if o, ok := f.At(Point{X: 4, Y: 1}); !ok || o.Kind != Mud {
		t.Fatalf("At(mud)=%v,%v", o, ok)
	}
}
