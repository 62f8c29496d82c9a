package game

import (
	"errors"
	"fmt"
)

// Settings is everything a session needs to know about the rules of play.
type Settings struct {
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	InitialLength int  `json:"initial_length"`
	Wrap          bool `json:"wrap"`
	// TickRate is ticks per second. The core never reads it; drivers do.
	TickRate         int        `json:"tick_rate"`
	Difficulty       Difficulty `json:"difficulty"`
	ComboExpiryTicks int        `json:"combo_expiry_ticks"`
	LevelThreshold   int        `json:"level_threshold"`
}

// DefaultSettings is a 40x30 wrapping board at 10 ticks per second with a
// three-second combo window.
func DefaultSettings() Settings {
	return Settings{
		Width:            40,
		Height:           30,
		InitialLength:    3,
		Wrap:             true,
		TickRate:         10,
		Difficulty:       Normal,
		ComboExpiryTicks: 30,
		LevelThreshold:   50,
	}
}

func (s Settings) Grid() Grid { return Grid{Width: s.Width, Height: s.Height} }

func (s Settings) Validate() error {
	var errs []error
	if s.Width < 1 || s.Height < 1 {
		errs = append(errs, fmt.Errorf("grid must be at least 1x1, got %dx%d", s.Width, s.Height))
	}
	if s.InitialLength < 1 {
		errs = append(errs, fmt.Errorf("initial length must be positive, got %d", s.InitialLength))
	} else if s.InitialLength > s.Width/2+1 {
		errs = append(errs, fmt.Errorf("initial length %d does not fit left of centre on a %d-wide grid", s.InitialLength, s.Width))
	}
	if s.TickRate < 0 {
		errs = append(errs, fmt.Errorf("tick rate must not be negative, got %d", s.TickRate))
	}
	if int(s.Difficulty) >= len(difficultyTable) {
		errs = append(errs, fmt.Errorf("invalid difficulty %d", uint8(s.Difficulty)))
	}
	if s.ComboExpiryTicks < 1 {
		errs = append(errs, fmt.Errorf("combo expiry must be at least 1 tick, got %d", s.ComboExpiryTicks))
	}
	if s.LevelThreshold < 1 {
		errs = append(errs, fmt.Errorf("level threshold must be positive, got %d", s.LevelThreshold))
	}
	return errors.Join(errs...)
}
