package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brensch/snekgrid/game"
)

// DB wraps the SQLite connection with thread-safe operations
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Result is one finished session.
type Result struct {
	SessionID  string
	Score      int
	Level      int
	Cause      string
	Difficulty string
	Ticks      int64
	Source     string
	EndedAt    time.Time
}

// ResultFromEvent converts a game-over notification into a storable row.
func ResultFromEvent(ev game.GameOverEvent, source string) Result {
	return Result{
		SessionID:  ev.SessionID,
		Score:      ev.FinalScore,
		Level:      ev.Level,
		Cause:      ev.Cause.String(),
		Difficulty: ev.Difficulty.String(),
		Ticks:      int64(ev.Ticks),
		Source:     source,
		EndedAt:    ev.At,
	}
}

// Open creates a new database connection and initializes the schema
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		session_id TEXT PRIMARY KEY,
		score INTEGER NOT NULL,
		level INTEGER NOT NULL,
		cause TEXT,
		difficulty TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		source TEXT,
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_score ON results(score DESC);
	CREATE INDEX IF NOT EXISTS idx_results_difficulty ON results(difficulty, score DESC);
	`

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertResult stores r. A session id that is already present is ignored.
func (db *DB) InsertResult(r Result) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO results (session_id, score, level, cause, difficulty, ticks, source, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Score, r.Level, r.Cause, r.Difficulty, r.Ticks, r.Source, r.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %s: %w", r.SessionID, err)
	}
	return nil
}

// TopResults returns the best limit results, highest score first.
func (db *DB) TopResults(limit int) ([]Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT session_id, score, level, cause, difficulty, ticks, source, ended_at
		 FROM results ORDER BY score DESC, ended_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionID, &r.Score, &r.Level, &r.Cause, &r.Difficulty, &r.Ticks, &r.Source, &r.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestScore returns the highest score recorded at difficulty, or 0.
func (db *DB) BestScore(d game.Difficulty) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var best sql.NullInt64
	err := db.conn.QueryRow("SELECT MAX(score) FROM results WHERE difficulty = ?", d.String()).Scan(&best)
	if err != nil {
		return 0, err
	}
	return int(best.Int64), nil
}

// Stats returns the number of stored results and the total ticks played.
func (db *DB) Stats() (results, ticks int64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	err = db.conn.QueryRow("SELECT COUNT(*), COALESCE(SUM(ticks), 0) FROM results").Scan(&results, &ticks)
	return
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
