package game

// Snapshot is a read-only copy of a session for renderers, pilots and
// recorders. It shares no memory with the session.
type Snapshot struct {
	SessionID  string     `json:"session_id"`
	Tick       uint64     `json:"tick"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Wrap       bool       `json:"wrap"`
	Difficulty Difficulty `json:"difficulty"`
	Snake      []Point    `json:"snake"`
	Direction  Direction  `json:"direction"`
	Alive      bool       `json:"alive"`
	Growing    bool       `json:"growing"`
	Food       Food       `json:"food"`
	Obstacles  []Obstacle `json:"obstacles"`
	Score      ScoreState `json:"score"`
	Phase      Phase      `json:"phase"`
	Cause      Cause      `json:"cause,omitempty"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() *Snapshot {
	return &Snapshot{
		SessionID:  s.id,
		Tick:       s.tick,
		Width:      s.grid.Width,
		Height:     s.grid.Height,
		Wrap:       s.settings.Wrap,
		Difficulty: s.settings.Difficulty,
		Snake:      append([]Point(nil), s.snake.Body...),
		Direction:  s.snake.Heading,
		Alive:      s.snake.Alive,
		Growing:    s.snake.Growing,
		Food:       s.food,
		Obstacles:  s.obstacles.Obstacles(),
		Score:      s.scorer.State(),
		Phase:      s.phase,
		Cause:      s.cause,
	}
}

func (s *Snapshot) Grid() Grid { return Grid{Width: s.Width, Height: s.Height} }

func (s *Snapshot) Head() Point {
	if len(s.Snake) == 0 {
		return Point{}
	}
	return s.Snake[0]
}

// Clone performs a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Snake) > 0 {
		out.Snake = make([]Point, len(s.Snake))
		copy(out.Snake, s.Snake)
	}
	if len(s.Obstacles) > 0 {
		out.Obstacles = make([]Obstacle, len(s.Obstacles))
		copy(out.Obstacles, s.Obstacles)
	}
	return &out
}
