package store

import (
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/brensch/snekgrid/game"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func playRows(t *testing.T, seed int64, ticks int) []TickRow {
	t.Helper()
	s, err := game.NewSession(game.DefaultSettings(),
		game.WithRand(rand.New(rand.NewSource(seed))),
		game.WithLogger(quiet),
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	dirs := []game.Direction{game.Up, game.Left, game.Down, game.Right}
	var rows []TickRow
	for i := 0; i < ticks && s.Phase() == game.PhaseRunning; i++ {
		if i%5 == 0 {
			s.RequestDirectionChange(dirs[(i/5)%len(dirs)])
		}
		out := s.Tick()
		rows = append(rows, RowFromSnapshot(s.Snapshot(), out, "test"))
	}
	return rows
}

func TestReplayParquet_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := playRows(t, 1, 50)
	if len(rows) == 0 {
		t.Fatalf("no rows played")
	}

	path, err := WriteReplayParquetAtomic(dir, rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path=%s want in %s", path, dir)
	}
	leftovers, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp dir not empty: %v", leftovers)
	}

	got, err := ReadReplayParquet(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("rows=%d want=%d", len(got), len(rows))
	}
	for i := range rows {
		if got[i].Tick != rows[i].Tick || got[i].Score != rows[i].Score || !reflect.DeepEqual(got[i].BodyX, rows[i].BodyX) {
			t.Fatalf("row %d mismatch:\n got=%+v\nwant=%+v", i, got[i], rows[i])
		}
	}
}

func TestTickRow_SnapshotRebuildsBoard(t *testing.T) {
	s, err := game.NewSession(game.DefaultSettings(),
		game.WithRand(rand.New(rand.NewSource(2))),
		game.WithLogger(quiet),
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	out := s.Tick()
	want := s.Snapshot()

	got, err := RowFromSnapshot(want, out, "test").Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(got.Snake, want.Snake) || got.Food != want.Food || got.Difficulty != want.Difficulty {
		t.Fatalf("rebuilt board differs:\n got=%+v\nwant=%+v", got, want)
	}
	if len(got.Obstacles) != len(want.Obstacles) {
		t.Fatalf("obstacles=%d want=%d", len(got.Obstacles), len(want.Obstacles))
	}
	for i := range want.Obstacles {
		if got.Obstacles[i] != want.Obstacles[i] {
			t.Fatalf("obstacle %d=%+v want=%+v", i, got.Obstacles[i], want.Obstacles[i])
		}
	}
	if got.Phase != want.Phase || got.Cause != want.Cause || got.Direction != want.Direction {
		t.Fatalf("phase/cause/dir = %v/%v/%v want %v/%v/%v", got.Phase, got.Cause, got.Direction, want.Phase, want.Cause, want.Direction)
	}
}

func TestTickRow_RejectsBadKinds(t *testing.T) {
	row := playRows(t, 3, 1)[0]
	row.FoodKind = "pizza"
	if _, err := row.Snapshot(); err == nil {
		t.Fatalf("expected error for unknown food kind")
	}
}

func TestBatches_RollsOnSessionCount(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBatches(dir, 2)
	if err != nil {
		t.Fatalf("OpenBatches: %v", err)
	}
	total := 0
	var ids []string
	for seed := int64(10); seed < 15; seed++ {
		rows := playRows(t, seed, 30)
		total += len(rows)
		ids = append(ids, rows[0].SessionID)
		f, err := b.Add(rows)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		// Every second session fills a file.
		if filled := (seed-10)%2 == 1; filled != (f != nil) {
			t.Fatalf("seed %d: finished file=%v want %v", seed, f, filled)
		}
	}
	last, err := b.Close()
	if err != nil || last == nil || last.Sessions != 1 {
		t.Fatalf("Close=%+v err=%v want one trailing session", last, err)
	}

	files := b.Files()
	if len(files) != 3 {
		t.Fatalf("files=%+v want 3", files)
	}
	if files[0].FirstSession != ids[0] || files[0].LastSession != ids[1] || files[2].FirstSession != ids[4] {
		t.Fatalf("session bounds wrong: %+v ids=%v", files, ids)
	}
	if want := filepath.Join(dir, "batch_"+ids[0]+"_n2.parquet"); files[0].Path != want {
		t.Fatalf("path=%s want %s", files[0].Path, want)
	}
	read := 0
	for _, f := range files {
		rows, err := ReadReplayParquet(f.Path)
		if err != nil || len(rows) != f.Rows {
			t.Fatalf("read %s: rows=%d err=%v want %d", f.Path, len(rows), err, f.Rows)
		}
		read += len(rows)
	}
	if read != total {
		t.Fatalf("read %d rows, wrote %d", read, total)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "tmp", "*"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp not empty: %v", leftovers)
	}
}

func TestBatches_RejectsMixedAndRepeatedSessions(t *testing.T) {
	b, err := OpenBatches(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenBatches: %v", err)
	}
	one := playRows(t, 1, 10)
	two := playRows(t, 2, 10)
	if _, err := b.Add(append(append([]TickRow(nil), one...), two[0])); err == nil {
		t.Fatalf("mixed sessions accepted")
	}
	if _, err := b.Add(one); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := b.Add(one); err == nil {
		t.Fatalf("repeated session accepted")
	}
	if f, err := b.Close(); err != nil || f == nil || f.Sessions != 1 || f.Rows != len(one) {
		t.Fatalf("Close=%+v err=%v", f, err)
	}
}

func TestBatches_EmptyCloseLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBatches(dir, 0)
	if err != nil {
		t.Fatalf("OpenBatches: %v", err)
	}
	if f, err := b.Add(nil); err != nil || f != nil {
		t.Fatalf("Add(nil)=%v err=%v", f, err)
	}
	if f, err := b.Close(); err != nil || f != nil {
		t.Fatalf("Close=%v err=%v", f, err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if len(matches) != 0 {
		t.Fatalf("unexpected files: %v", matches)
	}
}

func TestHighScoreLog_PersistsBest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores", "high.log")
	l, err := OpenHighScoreLog(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	for _, tc := range []struct {
		score int
		want  bool
	}{{40, true}, {30, false}, {40, false}, {55, true}} {
		ok, err := l.Record(tc.score, at)
		if err != nil || ok != tc.want {
			t.Fatalf("Record(%d)=%v,%v want %v", tc.score, ok, err, tc.want)
		}
	}
	l.Close()

	// A torn final line is ignored.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("99 2024-05")
	f.Close()

	l, err = OpenHighScoreLog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	best, when := l.Best()
	if best != 55 || !when.Equal(at) {
		t.Fatalf("best=%d at=%v want 55 at %v", best, when, at)
	}
}

func TestHighScoreLog_UnreadableLogIsAnError(t *testing.T) {
	// A directory opens but cannot be read as a log.
	path := filepath.Join(t.TempDir(), "high.log")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if l, err := OpenHighScoreLog(path); err == nil {
		l.Close()
		t.Fatalf("expected an error for an unreadable log")
	}

	// A missing file is an empty log.
	l, err := OpenHighScoreLog(filepath.Join(t.TempDir(), "fresh.log"))
	if err != nil {
		t.Fatalf("open fresh: %v", err)
	}
	defer l.Close()
	if best, _ := l.Best(); best != 0 {
		t.Fatalf("best=%d want 0", best)
	}
}

func TestDB_Results(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	results := []Result{
		{SessionID: "a", Score: 30, Level: 1, Cause: "self-collision", Difficulty: "normal", Ticks: 100, EndedAt: base},
		{SessionID: "b", Score: 90, Level: 2, Cause: "obstacle-collision", Difficulty: "hard", Ticks: 300, EndedAt: base.Add(time.Minute)},
		{SessionID: "c", Score: 60, Level: 2, Cause: "boundary-collision", Difficulty: "normal", Ticks: 200, EndedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range results {
		if err := db.InsertResult(r); err != nil {
			t.Fatalf("insert %s: %v", r.SessionID, err)
		}
	}
	if err := db.InsertResult(results[0]); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	top, err := db.TopResults(2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].SessionID != "b" || top[1].SessionID != "c" {
		t.Fatalf("top=%+v", top)
	}
	if !top[0].EndedAt.Equal(results[1].EndedAt) {
		t.Fatalf("ended_at=%v want=%v", top[0].EndedAt, results[1].EndedAt)
	}

	best, err := db.BestScore(game.Normal)
	if err != nil || best != 60 {
		t.Fatalf("best normal=%d err=%v want 60", best, err)
	}
	best, err = db.BestScore(game.Expert)
	if err != nil || best != 0 {
		t.Fatalf("best expert=%d err=%v want 0", best, err)
	}
	n, ticks, err := db.Stats()
	if err != nil || n != 3 || ticks != 600 {
		t.Fatalf("stats=%d/%d err=%v", n, ticks, err)
	}
}

func TestRecorder_PersistsEvents(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "results.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	scores, err := OpenHighScoreLog(filepath.Join(dir, "high.log"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer scores.Close()

	rec := NewRecorder(db, scores, "test", quiet)
	s, err := game.NewSession(game.Settings{
		Width: 8, Height: 8, InitialLength: 3, Wrap: false, TickRate: 10,
		Difficulty: game.Easy, ComboExpiryTicks: 30, LevelThreshold: 50,
	}, game.WithListener(rec), game.WithLogger(quiet), game.WithRand(rand.New(rand.NewSource(4))))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	for i := 0; i < 20 && s.Phase() == game.PhaseRunning; i++ {
		s.Tick()
	}
	if s.Phase() != game.PhaseGameOver {
		t.Fatalf("session did not end on a bounded 8x8 board")
	}
	final := s.Score()
	rec.Close()

	top, err := db.TopResults(10)
	if err != nil || len(top) != 1 {
		t.Fatalf("results=%+v err=%v", top, err)
	}
	if top[0].SessionID != s.ID() || top[0].Score != final.Score || top[0].Source != "test" {
		t.Fatalf("result=%+v", top[0])
	}
	if best, _ := scores.Best(); best != final.HighScore {
		t.Fatalf("logged best=%d want=%d", best, final.HighScore)
	}
}

func TestOpenPersistence_SeedsHighScore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	p, err := OpenPersistence(filepath.Join(dir, "results.db"), filepath.Join(dir, "high.log"), "test", quiet)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := p.HighScore(); got != 0 {
		t.Fatalf("fresh high score=%d want 0", got)
	}
	p.Recorder.OnHighScore(game.HighScoreEvent{Score: 70, At: time.Now()})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p, err = OpenPersistence(filepath.Join(dir, "results.db"), filepath.Join(dir, "high.log"), "test", quiet)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.Close()
	if got := p.HighScore(); got != 70 {
		t.Fatalf("high score=%d want 70", got)
	}
}
