// Package viewer serves a leaderboard and replays of recorded sessions,
// querying the Parquet replay files in place with DuckDB.
package viewer

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/brensch/snekgrid/game"
)

// DB keeps a DuckDB connection with a view over every replay file under
// the roots, reopening it when it is older than the refresh rate so new
// files show up.
type DB struct {
	roots       []string
	refreshRate time.Duration
	logger      *slog.Logger

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

func Open(roots []string, refreshRate time.Duration, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DB{roots: roots, refreshRate: refreshRate, logger: logger}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DB) get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh reopens the view now.
func (c *DB) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DB) refreshLocked() (*sql.DB, error) {
	start := time.Now()
	newDB, err := openDuckDBWithGlobs(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.logger.Debug("viewer db refreshed", "roots", strings.Join(c.roots, ","), "took", time.Since(start))
	return c.db, nil
}

func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

const emptyTicksView = `CREATE OR REPLACE VIEW ticks AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS session_id,
			NULL::BIGINT AS tick,
			NULL::INTEGER AS width,
			NULL::INTEGER AS height,
			NULL::BOOLEAN AS wrap,
			NULL::VARCHAR AS difficulty,
			NULL::INTEGER AS level,
			NULL::INTEGER AS score,
			NULL::INTEGER AS direction,
			NULL::INTEGER[] AS body_x,
			NULL::INTEGER[] AS body_y,
			NULL::INTEGER AS food_x,
			NULL::INTEGER AS food_y,
			NULL::VARCHAR AS food_kind,
			NULL::INTEGER[] AS obstacle_x,
			NULL::INTEGER[] AS obstacle_y,
			NULL::VARCHAR[] AS obstacle_kind,
			NULL::VARCHAR AS outcome,
			NULL::VARCHAR AS cause,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

func openDuckDBWithGlobs(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" || !hasParquet(root) {
			continue
		}
		glob := filepath.Join(root, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}

	sqlText := emptyTicksView
	if len(globs) > 0 {
		sqlText = `CREATE OR REPLACE VIEW ticks AS
			SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
			WHERE NOT regexp_matches(filename, '[/\\]tmp[/\\][^/\\]*$')`
	}
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var errFound = errors.New("found")

// hasParquet reports whether root holds a finished replay file. DuckDB
// fails on a glob that matches nothing.
func hasParquet(root string) bool {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == "tmp" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".parquet") {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound)
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func makeRelativeToRoots(filename string, roots []string) string {
	fn := strings.TrimSpace(filename)
	if fn == "" {
		return ""
	}
	best := fn
	for _, r := range roots {
		root := strings.TrimSpace(r)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, fn)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if cand := filepath.ToSlash(filepath.Join(root, rel)); len(cand) < len(best) {
			best = cand
		}
	}
	return best
}

const summaryColumns = `
	session_id,
	MIN(source)::VARCHAR AS source,
	MIN(difficulty)::VARCHAR AS difficulty,
	MIN(width)::INTEGER AS width,
	MIN(height)::INTEGER AS height,
	bool_or(wrap) AS wrap,
	MAX(tick)::BIGINT AS ticks,
	arg_max(score, tick)::INTEGER AS score,
	arg_max(level, tick)::INTEGER AS level,
	arg_max(cause, tick)::VARCHAR AS cause,
	MIN(filename)::VARCHAR AS file`

func scanSummary(sc interface{ Scan(...any) error }, roots []string) (SessionSummary, error) {
	var s SessionSummary
	var cause sql.NullString
	var file string
	if err := sc.Scan(&s.SessionID, &s.Source, &s.Difficulty, &s.Width, &s.Height, &s.Wrap, &s.Ticks, &s.Score, &s.Level, &cause, &file); err != nil {
		return SessionSummary{}, err
	}
	s.Cause = cause.String
	s.File = makeRelativeToRoots(file, roots)
	return s, nil
}

// Sessions returns the best limit sessions by final score, plus the total
// number of recorded sessions.
func (c *DB) Sessions(ctx context.Context, limit int) ([]SessionSummary, int, error) {
	db, err := c.get()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM ticks`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.QueryContext(ctx, `SELECT`+summaryColumns+`
		FROM ticks
		GROUP BY session_id
		ORDER BY 8 DESC, 7 ASC, 1 ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]SessionSummary, 0, limit)
	for rows.Next() {
		s, err := scanSummary(rows, c.roots)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

var ErrNotFound = errors.New("session not found")

// Session returns the summary and every frame of one session.
func (c *DB) Session(ctx context.Context, id string) (SessionResponse, error) {
	db, err := c.get()
	if err != nil {
		return SessionResponse{}, err
	}

	summary, err := scanSummary(db.QueryRowContext(ctx, `SELECT`+summaryColumns+`
		FROM ticks WHERE session_id = ? GROUP BY session_id`, id), c.roots)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionResponse{}, ErrNotFound
	}
	if err != nil {
		return SessionResponse{}, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT tick::BIGINT, direction::INTEGER, score::INTEGER, level::INTEGER, body_x, body_y,
			food_x::INTEGER, food_y::INTEGER, food_kind, obstacle_x, obstacle_y, obstacle_kind, outcome
		 FROM ticks
		 WHERE session_id = ?
		 ORDER BY tick ASC`, id)
	if err != nil {
		return SessionResponse{}, err
	}
	defer rows.Close()

	frames := make([]Frame, 0, summary.Ticks)
	for rows.Next() {
		var (
			f                          Frame
			dir                        int32
			foodX, foodY               int32
			bodyX, bodyY               any
			obstacleX, obstacleY, kind any
		)
		if err := rows.Scan(&f.Tick, &dir, &f.Score, &f.Level, &bodyX, &bodyY, &foodX, &foodY, &f.FoodKind, &obstacleX, &obstacleY, &kind, &f.Outcome); err != nil {
			return SessionResponse{}, err
		}
		f.Direction = game.Direction(dir).String()
		f.Snake = zipPoints(asInt32Slice(bodyX), asInt32Slice(bodyY))
		f.Food = game.Point{X: int(foodX), Y: int(foodY)}
		cells := zipPoints(asInt32Slice(obstacleX), asInt32Slice(obstacleY))
		kinds := asStringSlice(kind)
		f.Obstacles = make([]ObstacleCell, 0, len(cells))
		for i, p := range cells {
			cell := ObstacleCell{Pos: p}
			if i < len(kinds) {
				cell.Kind = kinds[i]
			}
			f.Obstacles = append(f.Obstacles, cell)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{Summary: summary, Frames: frames}, nil
}
