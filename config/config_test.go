package config

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brensch/snekgrid/game"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Game != game.DefaultSettings() {
		t.Fatalf("game=%+v want defaults", cfg.Game)
	}
	if cfg.DBPath != filepath.Join("data", "results.db") || cfg.ReplayDir != filepath.Join("data", "replays") {
		t.Fatalf("paths db=%s replays=%s", cfg.DBPath, cfg.ReplayDir)
	}
}

func TestLoad_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snek.json")
	body := `{"game": {"width": 20, "height": 16, "difficulty": "hard"}, "data_dir": "/tmp/snek", "listen": ":9000"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SNEK_HEIGHT", "12")
	t.Setenv("SNEK_WRAP", "false")
	t.Setenv("SNEK_LISTEN", ":9100")

	cfg, err := Load(newFlagSet(), []string{"-config", path, "-listen", ":9200", "-difficulty", "expert"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// file
	if cfg.Game.Width != 20 || cfg.DataDir != "/tmp/snek" {
		t.Fatalf("width=%d data=%s", cfg.Game.Width, cfg.DataDir)
	}
	// env over file
	if cfg.Game.Height != 12 || cfg.Game.Wrap {
		t.Fatalf("height=%d wrap=%v", cfg.Game.Height, cfg.Game.Wrap)
	}
	// flags over env and file
	if cfg.Listen != ":9200" || cfg.Game.Difficulty != game.Expert {
		t.Fatalf("listen=%s difficulty=%v", cfg.Listen, cfg.Game.Difficulty)
	}
	// untouched
	if cfg.Game.InitialLength != 3 || cfg.Game.LevelThreshold != 50 {
		t.Fatalf("game=%+v", cfg.Game)
	}
	if cfg.HighScorePath != filepath.Join("/tmp/snek", "highscore.log") {
		t.Fatalf("high score path=%s", cfg.HighScorePath)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{"bad difficulty env", nil, map[string]string{"SNEK_DIFFICULTY": "nightmare"}, "SNEK_DIFFICULTY"},
		{"bad flag", []string{"-difficulty", "nightmare"}, nil, "difficulty"},
		{"invalid grid", []string{"-width", "0"}, nil, "grid"},
		{"bad log level", []string{"-log-level", "loud"}, nil, "log level"},
		{"missing file", []string{"-config=/does/not/exist.json"}, nil, "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(newFlagSet(), tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"colour": "green"}`), 0o644)
	cfg := Default()
	if err := cfg.LoadFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-config", "a.json"}, "a.json"},
		{[]string{"--config=b.json", "-width", "3"}, "b.json"},
		{[]string{"-width", "3"}, ""},
		{[]string{"--", "-config", "c.json"}, ""},
	}
	for _, tt := range tests {
		if got := configPathFromArgs(tt.args); got != tt.want {
			t.Fatalf("args=%v got=%q want=%q", tt.args, got, tt.want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SNEK_TEST_INT", "17")
	t.Setenv("SNEK_TEST_BAD", "x")
	t.Setenv("SNEK_TEST_DUR", "250ms")
	t.Setenv("SNEK_TEST_BOOL", "yes")

	if got := GetEnvIntOrDefault("SNEK_TEST_INT", 1); got != 17 {
		t.Fatalf("int=%d", got)
	}
	if got := GetEnvIntOrDefault("SNEK_TEST_BAD", 1); got != 1 {
		t.Fatalf("bad int=%d", got)
	}
	if got := GetEnvDurationOrDefault("SNEK_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("dur=%v", got)
	}
	if !GetEnvBoolOrDefault("SNEK_TEST_BOOL", false) {
		t.Fatalf("bool=false")
	}
	if got := GetEnvOrDefault("SNEK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("string=%q", got)
	}
}

func TestLogger_UsesLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output=%q", buf.String())
	}
}
