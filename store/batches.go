package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// DefaultSessionsPerBatch is used when OpenBatches gets no positive count.
const DefaultSessionsPerBatch = 50

// Batches appends whole sessions to Parquet batch files in dir. The open
// file lives in dir/tmp and is moved into dir once it holds the configured
// number of sessions, or on Flush. Finished files are named after the first
// session they hold and their session count.
type Batches struct {
	dir     string
	tmpDir  string
	perFile int

	open    *openBatch
	seq     int
	written []BatchFile
}

// BatchFile describes one finished batch.
type BatchFile struct {
	Path         string
	Sessions     int
	Rows         int
	FirstSession string
	LastSession  string
}

type openBatch struct {
	tmpPath string
	file    *os.File
	writer  *parquet.GenericWriter[TickRow]
	info    BatchFile
	seen    map[string]struct{}
}

func OpenBatches(dir string, sessionsPerFile int) (*Batches, error) {
	if dir == "" {
		return nil, errors.New("batch dir is required")
	}
	if sessionsPerFile <= 0 {
		sessionsPerFile = DefaultSessionsPerBatch
	}
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	return &Batches{dir: dir, tmpDir: tmpDir, perFile: sessionsPerFile}, nil
}

// Add appends one session's rows. All rows must carry the same session id
// and a session may appear only once per file. The returned file is non-nil
// when this session filled the open batch.
func (b *Batches) Add(rows []TickRow) (*BatchFile, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	id := rows[0].SessionID
	for _, r := range rows[1:] {
		if r.SessionID != id {
			return nil, fmt.Errorf("rows mix sessions %s and %s", id, r.SessionID)
		}
	}
	if b.open == nil {
		if err := b.start(); err != nil {
			return nil, err
		}
	}
	ob := b.open
	if _, dup := ob.seen[id]; dup {
		return nil, fmt.Errorf("session %s already in the open batch", id)
	}
	if _, err := ob.writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write session %s: %w", id, err)
	}
	ob.seen[id] = struct{}{}
	if ob.info.Sessions == 0 {
		ob.info.FirstSession = id
	}
	ob.info.LastSession = id
	ob.info.Sessions++
	ob.info.Rows += len(rows)

	if ob.info.Sessions >= b.perFile {
		return b.Flush()
	}
	return nil, nil
}

func (b *Batches) start() error {
	b.seq++
	tmpPath := filepath.Join(b.tmpDir, fmt.Sprintf("open_%d_%d.parquet", time.Now().UnixNano(), b.seq))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp parquet: %w", err)
	}
	b.open = &openBatch{
		tmpPath: tmpPath,
		file:    f,
		writer:  parquet.NewGenericWriter[TickRow](f, writerOptions()...),
		seen:    make(map[string]struct{}),
	}
	return nil
}

// Flush finishes the open batch and moves it into place. It returns nil when
// no batch is open or the open one holds no session.
func (b *Batches) Flush() (*BatchFile, error) {
	ob := b.open
	if ob == nil {
		return nil, nil
	}
	b.open = nil

	closeErr := ob.writer.Close()
	syncErr := ob.file.Sync()
	fileErr := ob.file.Close()
	if err := errors.Join(closeErr, syncErr, fileErr); err != nil {
		_ = os.Remove(ob.tmpPath)
		return nil, fmt.Errorf("close batch: %w", err)
	}
	if ob.info.Sessions == 0 {
		_ = os.Remove(ob.tmpPath)
		return nil, nil
	}

	info := ob.info
	info.Path = filepath.Join(b.dir, batchName(info))
	if err := os.Rename(ob.tmpPath, info.Path); err != nil {
		_ = os.Remove(ob.tmpPath)
		return nil, fmt.Errorf("rename batch: %w", err)
	}
	b.written = append(b.written, info)
	return &info, nil
}

// Files lists every finished batch in the order they were flushed.
func (b *Batches) Files() []BatchFile { return append([]BatchFile(nil), b.written...) }

// Close flushes whatever is buffered.
func (b *Batches) Close() (*BatchFile, error) { return b.Flush() }

func batchName(f BatchFile) string {
	return fmt.Sprintf("batch_%s_n%d.parquet", fileSafe(f.FirstSession), f.Sessions)
}

// fileSafe keeps letters, digits, '-' and '_'.
func fileSafe(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
	if out == "" {
		return "session"
	}
	return out
}
