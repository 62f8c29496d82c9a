package game

import (
	"fmt"
	"strings"
)

// Difficulty scales obstacle density.
type Difficulty uint8

const (
	Easy Difficulty = iota
	Normal
	Hard
	Expert
)

type difficultyEntry struct {
	name    string
	base    int
	density float64
}

var difficultyTable = [...]difficultyEntry{
	Easy:   {name: "easy", base: 3, density: 0.5},
	Normal: {name: "normal", base: 5, density: 1.0},
	Hard:   {name: "hard", base: 7, density: 1.5},
	Expert: {name: "expert", base: 10, density: 2.0},
}

// MaxObstacles caps a field regardless of level and difficulty.
const MaxObstacles = 30

func (d Difficulty) entry() difficultyEntry {
	if int(d) < len(difficultyTable) {
		return difficultyTable[d]
	}
	return difficultyTable[Normal]
}

// ObstacleCount is min(MaxObstacles, base + floor(level*density)).
func (d Difficulty) ObstacleCount(level int) int {
	e := d.entry()
	n := e.base + int(float64(level)*e.density)
	if n > MaxObstacles {
		n = MaxObstacles
	}
	if n < 0 {
		n = 0
	}
	return n
}

func (d Difficulty) String() string {
	if int(d) < len(difficultyTable) {
		return difficultyTable[d].name
	}
	return fmt.Sprintf("difficulty(%d)", uint8(d))
}

func (d Difficulty) MarshalText() ([]byte, error) {
	if int(d) >= len(difficultyTable) {
		return nil, fmt.Errorf("invalid difficulty %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(b []byte) error {
	v, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func ParseDifficulty(s string) (Difficulty, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, e := range difficultyTable {
		if e.name == name {
			return Difficulty(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown difficulty %q (want easy, normal, hard or expert)", s)
}
