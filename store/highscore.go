package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HighScoreLog persists the best score across runs.
// It is backed by an append-only file with one record per line.
//
// On open the file is scanned for the maximum. Record appends and fsyncs
// only when the score beats it. Lines that do not parse are skipped, so a
// crash mid-write costs at most the final record.
//
// Format: <score> <RFC3339 timestamp>\n
type HighScoreLog struct {
	mu   sync.RWMutex
	path string
	file *os.File
	best int
	at   time.Time
}

func OpenHighScoreLog(path string) (*HighScoreLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	l := &HighScoreLog{path: path}

	if err := l.load(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	return l, nil
}

// load scans an existing log for the best record. A missing file is an
// empty log; any other failure is returned so the best is never silently
// reset to zero.
func (l *HighScoreLog) load() error {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		score, at, ok := parseRecord(scanner.Text())
		if ok && score > l.best {
			l.best, l.at = score, at
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	return nil
}

func parseRecord(line string) (int, time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, time.Time{}, false
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil || score < 0 {
		return 0, time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return 0, time.Time{}, false
	}
	return score, at, true
}

// Best returns the highest recorded score and when it was set.
func (l *HighScoreLog) Best() (int, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.best, l.at
}

// Record stores score if it beats the current best and reports whether it did.
func (l *HighScoreLog) Record(score int, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if score <= l.best {
		return false, nil
	}
	if l.file == nil {
		return false, fmt.Errorf("log file is closed")
	}

	line := strconv.Itoa(score) + " " + at.UTC().Format(time.RFC3339) + "\n"
	if _, err := l.file.WriteString(line); err != nil {
		return false, fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return false, fmt.Errorf("sync log: %w", err)
	}
	l.best, l.at = score, at
	return true, nil
}

func (l *HighScoreLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
