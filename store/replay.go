// Package store persists what sessions produce: per-tick replay rows as
// Parquet, finished-session results in SQLite, and the best score in an
// append-only log.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/snekgrid/game"
)

const replaySchema = "snek_tick_v1"

// TickRow is one (session, tick) snapshot intended for long-term storage.
//
// Direction is the heading after the tick: 0=Up, 1=Down, 2=Left, 3=Right.
// Outcome is what the tick produced; Cause is only set on game over.
type TickRow struct {
	SessionID  string `parquet:"session_id,dict"`
	Tick       int64  `parquet:"tick"`
	Width      int32  `parquet:"width"`
	Height     int32  `parquet:"height"`
	Wrap       bool   `parquet:"wrap"`
	Difficulty string `parquet:"difficulty,dict"`

	Level     int32   `parquet:"level"`
	Score     int32   `parquet:"score"`
	HighScore int32   `parquet:"high_score"`
	Combo     int32   `parquet:"combo"`
	Mult      float32 `parquet:"multiplier"`

	Direction int32   `parquet:"direction"`
	Growing   bool    `parquet:"growing"`
	BodyX     []int32 `parquet:"body_x"`
	BodyY     []int32 `parquet:"body_y"`

	FoodX    int32  `parquet:"food_x"`
	FoodY    int32  `parquet:"food_y"`
	FoodKind string `parquet:"food_kind,dict"`

	ObstacleX    []int32  `parquet:"obstacle_x"`
	ObstacleY    []int32  `parquet:"obstacle_y"`
	ObstacleKind []string `parquet:"obstacle_kind"`

	Outcome string `parquet:"outcome,dict"`
	Cause   string `parquet:"cause,dict,optional"`
	Phase   string `parquet:"phase,dict"`

	// Source names the driver: "human", "greedy", "onnx", ...
	Source string `parquet:"source,dict"`
}

// RowFromSnapshot flattens a post-tick snapshot and the tick's outcome.
func RowFromSnapshot(s *game.Snapshot, out game.Outcome, source string) TickRow {
	row := TickRow{
		SessionID:  s.SessionID,
		Tick:       int64(s.Tick),
		Width:      int32(s.Width),
		Height:     int32(s.Height),
		Wrap:       s.Wrap,
		Difficulty: s.Difficulty.String(),
		Level:      int32(s.Score.Level),
		Score:      int32(s.Score.Score),
		HighScore:  int32(s.Score.HighScore),
		Combo:      int32(s.Score.ComboCount),
		Mult:       float32(s.Score.ComboMultiplier),
		Direction:  int32(s.Direction),
		Growing:    s.Growing,
		BodyX:      make([]int32, len(s.Snake)),
		BodyY:      make([]int32, len(s.Snake)),
		FoodX:      int32(s.Food.Pos.X),
		FoodY:      int32(s.Food.Pos.Y),
		FoodKind:   s.Food.Kind.String(),
		Outcome:    out.Kind.String(),
		Cause:      s.Cause.String(),
		Phase:      s.Phase.String(),
		Source:     source,
	}
	for i, p := range s.Snake {
		row.BodyX[i] = int32(p.X)
		row.BodyY[i] = int32(p.Y)
	}
	row.ObstacleX = make([]int32, len(s.Obstacles))
	row.ObstacleY = make([]int32, len(s.Obstacles))
	row.ObstacleKind = make([]string, len(s.Obstacles))
	for i, o := range s.Obstacles {
		row.ObstacleX[i] = int32(o.Pos.X)
		row.ObstacleY[i] = int32(o.Pos.Y)
		row.ObstacleKind[i] = o.Kind.String()
	}
	return row
}

// Snapshot rebuilds the board a row was taken from.
func (r TickRow) Snapshot() (*game.Snapshot, error) {
	s := &game.Snapshot{
		SessionID: r.SessionID,
		Tick:      uint64(r.Tick),
		Width:     int(r.Width),
		Height:    int(r.Height),
		Wrap:      r.Wrap,
		Direction: game.Direction(r.Direction),
		Growing:   r.Growing,
		Food:      game.Food{Pos: game.Point{X: int(r.FoodX), Y: int(r.FoodY)}},
		Score: game.ScoreState{
			Score:           int(r.Score),
			HighScore:       int(r.HighScore),
			ComboCount:      int(r.Combo),
			ComboMultiplier: float64(r.Mult),
			Level:           int(r.Level),
		},
	}
	if err := s.Difficulty.UnmarshalText([]byte(r.Difficulty)); err != nil {
		return nil, fmt.Errorf("row %s/%d: %w", r.SessionID, r.Tick, err)
	}
	if err := s.Food.Kind.UnmarshalText([]byte(r.FoodKind)); err != nil {
		return nil, fmt.Errorf("row %s/%d: %w", r.SessionID, r.Tick, err)
	}
	if err := s.Phase.UnmarshalText([]byte(r.Phase)); err != nil {
		return nil, fmt.Errorf("row %s/%d: %w", r.SessionID, r.Tick, err)
	}
	if err := s.Cause.UnmarshalText([]byte(r.Cause)); err != nil {
		return nil, fmt.Errorf("row %s/%d: %w", r.SessionID, r.Tick, err)
	}
	if len(r.BodyX) != len(r.BodyY) || len(r.ObstacleX) != len(r.ObstacleY) || len(r.ObstacleX) != len(r.ObstacleKind) {
		return nil, fmt.Errorf("row %s/%d: ragged coordinate columns", r.SessionID, r.Tick)
	}
	s.Alive = s.Phase != game.PhaseGameOver
	s.Snake = make([]game.Point, len(r.BodyX))
	for i := range r.BodyX {
		s.Snake[i] = game.Point{X: int(r.BodyX[i]), Y: int(r.BodyY[i])}
	}
	s.Obstacles = make([]game.Obstacle, len(r.ObstacleX))
	for i := range r.ObstacleX {
		var kind game.ObstacleKind
		if err := kind.UnmarshalText([]byte(r.ObstacleKind[i])); err != nil {
			return nil, fmt.Errorf("row %s/%d: %w", r.SessionID, r.Tick, err)
		}
		s.Obstacles[i] = game.Obstacle{
			Pos:    game.Point{X: int(r.ObstacleX[i]), Y: int(r.ObstacleY[i])},
			Kind:   kind,
			Deadly: kind.Deadly(),
		}
	}
	return s, nil
}

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", replaySchema),
	}
}

// WriteReplayParquetAtomic writes rows into outDir/tmp and then atomically
// moves the file into outDir, so readers never see a partial file.
func WriteReplayParquetAtomic(outDir string, rows []TickRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("replay_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writerOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadReplayParquet loads every row of a replay file.
func ReadReplayParquet(path string) ([]TickRow, error) {
	rows, err := parquet.ReadFile[TickRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
