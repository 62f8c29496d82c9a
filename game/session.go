package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the session lifecycle state.
type Phase uint8

const (
	PhaseRunning Phase = iota
	PhasePaused
	PhaseGameOver
)

var phaseNames = [...]string{"running", "paused", "game-over"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Cause says why a session ended.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseSelfCollision
	CauseBoundaryCollision
	CauseDeadlyObstacle
)

var causeNames = [...]string{"", "self-collision", "boundary-collision", "obstacle-collision"}

func (c Cause) String() string {
	if int(c) < len(causeNames) {
		return causeNames[c]
	}
	return fmt.Sprintf("cause(%d)", uint8(c))
}

func (c Cause) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cause) UnmarshalText(b []byte) error {
	for i, n := range causeNames {
		if n == string(b) {
			*c = Cause(i)
			return nil
		}
	}
	return fmt.Errorf("unknown cause %q", b)
}

// OutcomeKind classifies the result of one Tick.
type OutcomeKind uint8

const (
	// OutcomeIgnored is returned while paused or after game over.
	OutcomeIgnored OutcomeKind = iota
	OutcomeContinuing
	OutcomeFed
	OutcomeGameOver
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeContinuing:
		return "continuing"
	case OutcomeFed:
		return "fed"
	case OutcomeGameOver:
		return "game-over"
	}
	return "unknown"
}

// ParseOutcomeKind is the inverse of OutcomeKind.String.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	for k := OutcomeIgnored; k <= OutcomeGameOver; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

type Outcome struct {
	Kind OutcomeKind
	// Cause is set for OutcomeGameOver.
	Cause Cause
	// Points is what the food was worth after the combo multiplier.
	Points    int
	LeveledUp bool
	// Slowed is set when the head is on a non-deadly obstacle (mud).
	Slowed bool
}

// GameOverEvent is emitted once per session when it enters PhaseGameOver.
type GameOverEvent struct {
	SessionID  string
	FinalScore int
	Level      int
	Cause      Cause
	Difficulty Difficulty
	Ticks      uint64
	At         time.Time
}

// HighScoreEvent is emitted whenever the high score moves.
type HighScoreEvent struct {
	SessionID string
	Score     int
	At        time.Time
}

// Listener receives fire-and-forget persistence notifications. Calls are made
// synchronously from Tick, so implementations must not block.
type Listener interface {
	OnGameOver(GameOverEvent)
	OnHighScore(HighScoreEvent)
}

type Option func(*Session)

// WithRand pins the randomness source, typically rand.New(rand.NewSource(seed)).
func WithRand(rng Rand) Option { return func(s *Session) { s.rng = rng } }

func WithListener(l Listener) Option { return func(s *Session) { s.listener = l } }

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithHighScore seeds the high score, usually from persisted storage.
func WithHighScore(score int) Option { return func(s *Session) { s.initialHigh = score } }

// WithClock sets the timestamp source for emitted events.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.clock = now } }

// spawnLane is how many cells ahead of a fresh head stay obstacle-free.
const spawnLane = 3

// Session is one play: it exclusively owns the snake, food, obstacles and
// score, and advances them one Tick at a time.
//
// Only RequestDirectionChange is safe to call concurrently with Tick. Every
// other method must be serialised with Tick by the driver.
type Session struct {
	mu         sync.Mutex
	pending    Direction
	hasPending bool

	id          string
	settings    Settings
	grid        Grid
	rng         Rand
	spawner     *Spawner
	snake       *Snake
	food        Food
	obstacles   *ObstacleField
	scorer      *Scorer
	phase       Phase
	cause       Cause
	tick        uint64
	initialHigh int

	listener Listener
	logger   *slog.Logger
	clock    func() time.Time
}

func NewSession(settings Settings, opts ...Option) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s := &Session{
		settings: settings,
		grid:     settings.Grid(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.spawner = NewSpawner(s.rng)
	s.start(s.initialHigh)
	return s, nil
}

func (s *Session) start(highScore int) {
	s.id = uuid.NewString()
	s.snake = NewSnake(s.grid, s.settings.InitialLength)
	s.scorer = NewScorer(s.settings.LevelThreshold, s.settings.ComboExpiryTicks, highScore)
	s.obstacles = NewObstacleField()
	s.phase = PhaseRunning
	s.cause = CauseNone
	s.tick = 0

	s.mu.Lock()
	s.hasPending = false
	s.mu.Unlock()

	s.regenerateObstacles(false)
	s.food.Respawn(s.spawner, s.grid, setOf(s.snake.Body, s.obstacles.Positions()), s.snake.Head(), s.logger)

	s.logger.Debug("session started",
		"session", s.id,
		"grid", fmt.Sprintf("%dx%d", s.grid.Width, s.grid.Height),
		"difficulty", s.settings.Difficulty.String(),
		"obstacles", s.obstacles.Len(),
	)
}

// regenerateObstacles rebuilds the field for the current level, keeping the
// snake and the lane in front of the head clear. keepFood also keeps the
// current food cell clear; at start the food has not been placed yet.
func (s *Session) regenerateObstacles(keepFood bool) {
	s.obstacles.Generate(s.spawner, s.grid, s.obstacleExclusion(keepFood), s.scorer.State().Level, s.settings.Difficulty, s.logger)
}

func (s *Session) obstacleExclusion(keepFood bool) map[Point]struct{} {
	excluded := setOf(s.snake.Body, s.lane())
	if keepFood {
		excluded[s.food.Pos] = struct{}{}
	}
	return excluded
}

func (s *Session) lane() []Point {
	out := make([]Point, 0, spawnLane)
	p := s.snake.Head()
	for i := 0; i < spawnLane; i++ {
		next, ok := s.grid.Normalize(p.Add(s.snake.Heading.Delta()), s.settings.Wrap)
		if !ok {
			break
		}
		out = append(out, next)
		p = next
	}
	return out
}

// RequestDirectionChange latches d for the next Tick. Later requests
// overwrite earlier ones.
func (s *Session) RequestDirectionChange(d Direction) {
	if int(d) >= len(Directions) {
		return
	}
	s.mu.Lock()
	s.pending = d
	s.hasPending = true
	s.mu.Unlock()
}

func (s *Session) takePending() (Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending, s.hasPending
	s.hasPending = false
	return d, ok
}

// Pause moves Running to Paused and reports whether it did.
func (s *Session) Pause() bool {
	if s.phase != PhaseRunning {
		return false
	}
	s.phase = PhasePaused
	return true
}

// Resume moves Paused to Running and reports whether it did.
func (s *Session) Resume() bool {
	if s.phase != PhasePaused {
		return false
	}
	s.phase = PhaseRunning
	return true
}

// Reset starts a fresh play from any phase. The high score carries over.
func (s *Session) Reset() {
	s.start(s.scorer.State().HighScore)
}

// Tick advances the session by one step.
func (s *Session) Tick() Outcome {
	if s.phase != PhaseRunning {
		return Outcome{Kind: OutcomeIgnored}
	}
	s.tick++

	if s.scorer.Expire(s.tick) {
		s.logger.Debug("combo expired", "session", s.id, "tick", s.tick)
	}
	if d, ok := s.takePending(); ok {
		s.snake.ChangeDirection(d)
	}

	vacated := s.snake.Tail()
	switch s.snake.Move(s.grid, s.settings.Wrap) {
	case MoveSelfCollision:
		return s.gameOver(CauseSelfCollision)
	case MoveBoundaryCollision:
		return s.gameOver(CauseBoundaryCollision)
	}

	head := s.snake.Head()
	// Food is checked before obstacles: a fed tick is never a fatal tick.
	if head == s.food.Pos {
		return s.feed(vacated)
	}
	if o, ok := s.obstacles.At(head); ok {
		if o.Deadly {
			return s.gameOver(CauseDeadlyObstacle)
		}
		return Outcome{Kind: OutcomeContinuing, Slowed: true}
	}
	return Outcome{Kind: OutcomeContinuing}
}

func (s *Session) feed(vacated Point) Outcome {
	res := s.scorer.Feed(s.food.Kind.Points(), s.tick)
	s.snake.Grow()

	if res.LeveledUp {
		s.regenerateObstacles(true)
		s.logger.Info("level up",
			"session", s.id,
			"level", s.scorer.State().Level,
			"score", s.scorer.State().Score,
			"obstacles", s.obstacles.Len(),
			"pattern", s.obstacles.Pattern().String(),
		)
	}

	excluded := setOf(s.snake.Body, s.obstacles.Positions())
	excluded[vacated] = struct{}{}
	s.food.Respawn(s.spawner, s.grid, excluded, s.snake.Head(), s.logger)

	if res.NewHighScore && s.listener != nil {
		s.listener.OnHighScore(HighScoreEvent{
			SessionID: s.id,
			Score:     s.scorer.State().HighScore,
			At:        s.clock(),
		})
	}
	return Outcome{Kind: OutcomeFed, Points: res.Awarded, LeveledUp: res.LeveledUp}
}

func (s *Session) gameOver(cause Cause) Outcome {
	s.phase = PhaseGameOver
	s.cause = cause
	s.snake.Alive = false

	st := s.scorer.State()
	s.logger.Info("game over",
		"session", s.id,
		"cause", cause.String(),
		"score", st.Score,
		"level", st.Level,
		"ticks", s.tick,
	)
	if s.listener != nil {
		s.listener.OnGameOver(GameOverEvent{
			SessionID:  s.id,
			FinalScore: st.Score,
			Level:      st.Level,
			Cause:      cause,
			Difficulty: s.settings.Difficulty,
			Ticks:      s.tick,
			At:         s.clock(),
		})
	}
	return Outcome{Kind: OutcomeGameOver, Cause: cause}
}

func (s *Session) ID() string { return s.id }
func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Cause() Cause { return s.cause }
func (s *Session) Ticks() uint64 { return s.tick }
func (s *Session) Settings() Settings { return s.settings }
func (s *Session) Score() ScoreState { return s.scorer.State() }
func (s *Session) Food() Food { return s.food }
func (s *Session) Head() Point { return s.snake.Head() }
func (s *Session) Heading() Direction { return s.snake.Heading }
func (s *Session) Body() []Point { return append([]Point(nil), s.snake.Body...) }
func (s *Session) Obstacles() []Obstacle { return s.obstacles.Obstacles() }
