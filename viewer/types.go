package viewer

import "github.com/brensch/snekgrid/game"

// SessionSummary is one leaderboard line, built from a session's last tick.
type SessionSummary struct {
	SessionID  string `json:"session_id"`
	Source     string `json:"source"`
	Difficulty string `json:"difficulty"`
	Width      int32  `json:"width"`
	Height     int32  `json:"height"`
	Wrap       bool   `json:"wrap"`
	Ticks      int64  `json:"ticks"`
	Score      int32  `json:"score"`
	Level      int32  `json:"level"`
	Cause      string `json:"cause,omitempty"`
	// File is the replay file relative to its data root.
	File string `json:"file,omitempty"`
	// Peer is the viewer the row was fetched from, empty for local rows.
	Peer string `json:"peer,omitempty"`
}

type SessionsResponse struct {
	Total    int              `json:"total"`
	Sessions []SessionSummary `json:"sessions"`
}

type ObstacleCell struct {
	Pos  game.Point `json:"pos"`
	Kind string     `json:"kind"`
}

// Frame is one tick of a recorded session, shaped for a replay client.
type Frame struct {
	Tick      int64          `json:"tick"`
	Direction string         `json:"direction"`
	Score     int32          `json:"score"`
	Level     int32          `json:"level"`
	Snake     []game.Point   `json:"snake"`
	Food      game.Point     `json:"food"`
	FoodKind  string         `json:"food_kind"`
	Obstacles []ObstacleCell `json:"obstacles"`
	Outcome   string         `json:"outcome"`
}

type SessionResponse struct {
	Summary SessionSummary `json:"summary"`
	Frames  []Frame        `json:"frames"`
}
