package game

// MaxComboMultiplier caps the combo multiplier.
const MaxComboMultiplier = 3.0

// ScoreState is the scoring view exposed to presentation and persistence.
type ScoreState struct {
	Score           int     `json:"score"`
	HighScore       int     `json:"high_score"`
	ComboCount      int     `json:"combo_count"`
	ComboMultiplier float64 `json:"combo_multiplier"`
	Level           int     `json:"level"`
	LevelThreshold  int     `json:"level_threshold"`
}

// FeedResult describes what one food-eaten event changed.
type FeedResult struct {
	Awarded      int
	LeveledUp    bool
	NewHighScore bool
}

// Scorer turns food-eaten events into points, combos and levels.
// Time is measured in ticks supplied by the caller.
type Scorer struct {
	state       ScoreState
	expiryTicks uint64
	lastFed     uint64
}

func NewScorer(levelThreshold, comboExpiryTicks, highScore int) *Scorer {
	if levelThreshold < 1 {
		levelThreshold = 1
	}
	if comboExpiryTicks < 1 {
		comboExpiryTicks = 1
	}
	return &Scorer{
		state: ScoreState{
			HighScore:       highScore,
			ComboMultiplier: 1.0,
			Level:           1,
			LevelThreshold:  levelThreshold,
		},
		expiryTicks: uint64(comboExpiryTicks),
	}
}

func (s *Scorer) State() ScoreState { return s.state }

// ComboMultiplier maps a combo count to its multiplier.
func ComboMultiplier(count int) float64 {
	return float64(comboTenths(count)) / 10
}

// comboTenths is the multiplier in tenths so awarded points floor exactly.
func comboTenths(count int) int {
	switch {
	case count < 3:
		return 10
	case count < 5:
		return 20
	}
	return min(int(MaxComboMultiplier*10), 10+(count-5)*2+10)
}

// Feed records a food-eaten event worth base points at tick.
func (s *Scorer) Feed(base int, tick uint64) FeedResult {
	st := &s.state
	st.ComboCount++
	st.ComboMultiplier = ComboMultiplier(st.ComboCount)

	awarded := base * comboTenths(st.ComboCount) / 10
	st.Score += awarded
	s.lastFed = tick

	res := FeedResult{Awarded: awarded}
	if st.Score >= st.Level*st.LevelThreshold {
		st.Level++
		res.LeveledUp = true
	}
	if st.Score > st.HighScore {
		st.HighScore = st.Score
		res.NewHighScore = true
	}
	return res
}

// Expire ends the combo once expiryTicks have passed since the last feed.
// It reports whether a running combo was reset.
func (s *Scorer) Expire(tick uint64) bool {
	if s.state.ComboCount == 0 {
		return false
	}
	if tick-s.lastFed < s.expiryTicks {
		return false
	}
	s.state.ComboCount = 0
	s.state.ComboMultiplier = 1.0
	return true
}
