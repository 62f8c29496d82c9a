package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Persistence bundles the results database, the high score log and a
// Recorder writing to both, for drivers that run real sessions.
type Persistence struct {
	DB       *DB
	Scores   *HighScoreLog
	Recorder *Recorder
}

func OpenPersistence(dbPath, highScorePath, source string, logger *slog.Logger) (*Persistence, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	scores, err := OpenHighScoreLog(highScorePath)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Persistence{
		DB:       db,
		Scores:   scores,
		Recorder: NewRecorder(db, scores, source, logger),
	}, nil
}

// HighScore is the best score ever logged, used to seed new sessions.
func (p *Persistence) HighScore() int {
	best, _ := p.Scores.Best()
	return best
}

// Close drains the recorder before closing the files it writes to.
func (p *Persistence) Close() error {
	p.Recorder.Close()
	return errors.Join(p.Scores.Close(), p.DB.Close())
}
