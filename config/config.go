// Package config assembles the runtime configuration shared by the binaries.
//
// Values are layered: built-in defaults, then an optional JSON file named by
// -config (or SNEK_CONFIG), then SNEK_* environment variables, then flags.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/logging"
)

type Config struct {
	Game game.Settings `json:"game"`

	DataDir       string `json:"data_dir"`
	DBPath        string `json:"db_path"`
	HighScorePath string `json:"high_score_path"`
	ReplayDir     string `json:"replay_dir"`

	Listen     string `json:"listen"`
	LogLevel   string `json:"log_level"`
	PrettyLogs bool   `json:"pretty_logs"`
	// Seed pins the session RNG. Zero means seed from the clock.
	Seed int64 `json:"seed"`
}

func Default() Config {
	return Config{
		Game:     game.DefaultSettings(),
		DataDir:  "data",
		Listen:   ":8080",
		LogLevel: "info",
	}
}

// LoadFile overlays the JSON file at path onto c. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays SNEK_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	g := &c.Game
	g.Width = GetEnvIntOrDefault("SNEK_WIDTH", g.Width)
	g.Height = GetEnvIntOrDefault("SNEK_HEIGHT", g.Height)
	g.InitialLength = GetEnvIntOrDefault("SNEK_LENGTH", g.InitialLength)
	g.Wrap = GetEnvBoolOrDefault("SNEK_WRAP", g.Wrap)
	g.TickRate = GetEnvIntOrDefault("SNEK_TICK_RATE", g.TickRate)
	g.ComboExpiryTicks = GetEnvIntOrDefault("SNEK_COMBO_TICKS", g.ComboExpiryTicks)
	g.LevelThreshold = GetEnvIntOrDefault("SNEK_LEVEL_THRESHOLD", g.LevelThreshold)
	if v := os.Getenv("SNEK_DIFFICULTY"); v != "" {
		d, err := game.ParseDifficulty(v)
		if err != nil {
			return fmt.Errorf("SNEK_DIFFICULTY: %w", err)
		}
		g.Difficulty = d
	}

	c.DataDir = GetEnvOrDefault("SNEK_DATA_DIR", c.DataDir)
	c.DBPath = GetEnvOrDefault("SNEK_DB", c.DBPath)
	c.HighScorePath = GetEnvOrDefault("SNEK_HIGH_SCORE_LOG", c.HighScorePath)
	c.ReplayDir = GetEnvOrDefault("SNEK_REPLAY_DIR", c.ReplayDir)
	c.Listen = GetEnvOrDefault("SNEK_LISTEN", c.Listen)
	c.LogLevel = GetEnvOrDefault("SNEK_LOG_LEVEL", c.LogLevel)
	c.PrettyLogs = GetEnvBoolOrDefault("SNEK_PRETTY_LOGS", c.PrettyLogs)
	c.Seed = GetEnvInt64OrDefault("SNEK_SEED", c.Seed)
	return nil
}

// RegisterFlags binds the shared flags to c, using c's current values as
// the defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	g := &c.Game
	fs.IntVar(&g.Width, "width", g.Width, "Grid width in cells")
	fs.IntVar(&g.Height, "height", g.Height, "Grid height in cells")
	fs.IntVar(&g.InitialLength, "length", g.InitialLength, "Initial snake length")
	fs.BoolVar(&g.Wrap, "wrap", g.Wrap, "Wrap around the grid edges instead of dying on them")
	fs.IntVar(&g.TickRate, "tick-rate", g.TickRate, "Ticks per second")
	fs.TextVar(&g.Difficulty, "difficulty", g.Difficulty, "easy, normal, hard or expert")
	fs.IntVar(&g.ComboExpiryTicks, "combo-ticks", g.ComboExpiryTicks, "Ticks without food before the combo resets")
	fs.IntVar(&g.LevelThreshold, "level-threshold", g.LevelThreshold, "Points per level")

	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for the results DB, high score log and replays")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite results database (default <data-dir>/results.db)")
	fs.StringVar(&c.HighScorePath, "high-score-log", c.HighScorePath, "High score log (default <data-dir>/highscore.log)")
	fs.StringVar(&c.ReplayDir, "replay-dir", c.ReplayDir, "Parquet replay directory (default <data-dir>/replays)")
	fs.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&c.PrettyLogs, "pretty-logs", c.PrettyLogs, "Indent JSON log records")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "RNG seed (0 = time based)")
}

// Load runs the full layering against fs and args. Callers may register
// their own flags on fs first.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	path := configPathFromArgs(args)
	if path == "" {
		path = os.Getenv("SNEK_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	fs.String("config", path, "Optional JSON config file")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPathFromArgs finds -config before the flag set is built, since the
// file supplies the flag defaults.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if len(name) == len(a) {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func (c *Config) resolvePaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "results.db")
	}
	if c.HighScorePath == "" {
		c.HighScorePath = filepath.Join(c.DataDir, "highscore.log")
	}
	if c.ReplayDir == "" {
		c.ReplayDir = filepath.Join(c.DataDir, "replays")
	}
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Game.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger described by c.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(w, level, c.PrettyLogs)
}
