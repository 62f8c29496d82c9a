package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/rules"
	"github.com/brensch/snekgrid/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	sessions []SessionSummary
	frames   map[string][]Frame
}

func (f *fakeStore) Sessions(_ context.Context, limit int) ([]SessionSummary, int, error) {
	out := f.sessions
	if len(out) > limit {
		out = out[:limit]
	}
	return out, len(f.sessions), nil
}

func (f *fakeStore) Session(_ context.Context, id string) (SessionResponse, error) {
	for _, s := range f.sessions {
		if s.SessionID == id {
			return SessionResponse{Summary: s, Frames: f.frames[id]}, nil
		}
	}
	return SessionResponse{}, ErrNotFound
}

func sampleSessions() []SessionSummary {
	return []SessionSummary{
		{SessionID: "aaaaaaaa-1111", Source: "human", Difficulty: "hard", Width: 40, Height: 30, Wrap: true, Ticks: 900, Score: 420, Level: 9, Cause: "self-collision"},
		{SessionID: "bbbbbbbb-2222", Source: "greedy", Difficulty: "easy", Width: 20, Height: 20, Ticks: 300, Score: 120, Level: 3, Cause: "boundary-collision"},
		{SessionID: "cccccccc-3333", Source: "onnx", Difficulty: "normal", Width: 20, Height: 20, Ticks: 50, Score: 0, Level: 1},
	}
}

func TestRenderLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	if err := renderLeaderboard(&buf, 7, sampleSessions()); err != nil {
		t.Fatalf("render: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := strings.TrimSpace(doc.Find("p.total").Text()); got != "7 sessions recorded" {
		t.Fatalf("total=%q", got)
	}
	rows := doc.Find("#leaderboard tr.session")
	if rows.Length() != 3 {
		t.Fatalf("rows=%d", rows.Length())
	}
	first := rows.First()
	if first.AttrOr("data-score", "") != "420" || first.AttrOr("data-wrap", "") != "true" {
		t.Fatalf("first row attrs score=%s wrap=%s", first.AttrOr("data-score", ""), first.AttrOr("data-wrap", ""))
	}
	if href, _ := first.Find("a").Attr("href"); href != "/api/sessions/aaaaaaaa-1111" {
		t.Fatalf("href=%q", href)
	}
	if got := first.Find("a").Text(); got != "aaaaaaaa" {
		t.Fatalf("short id=%q", got)
	}
	if got := rows.Eq(2).Find("td").Last().Text(); got != "-" {
		t.Fatalf("running session cause cell=%q", got)
	}
}

func TestRenderLeaderboard_EmptyAndEscaped(t *testing.T) {
	var buf bytes.Buffer
	renderLeaderboard(&buf, 0, nil)
	doc, _ := goquery.NewDocumentFromReader(&buf)
	if doc.Find("p.empty").Length() != 1 || doc.Find("#leaderboard").Length() != 0 {
		t.Fatalf("empty page wrong: %s", buf.String())
	}

	buf.Reset()
	renderLeaderboard(&buf, 1, []SessionSummary{{SessionID: "x", Source: "<script>alert(1)</script>"}})
	if strings.Contains(buf.String(), "<script>alert") {
		t.Fatalf("source not escaped")
	}
	doc, _ = goquery.NewDocumentFromReader(&buf)
	if got := doc.Find("tr.session").AttrOr("data-source", ""); got != "<script>alert(1)</script>" {
		t.Fatalf("data-source=%q", got)
	}
}

func TestFetchLeaderboard_RoundTrip(t *testing.T) {
	origin := httptest.NewServer(NewServer(&fakeStore{sessions: sampleSessions()}, nil, quietLogger()).Handler())
	defer origin.Close()

	rows, err := FetchLeaderboard(context.Background(), http.DefaultClient, origin.URL+"/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := sampleSessions()
	if len(rows) != len(want) {
		t.Fatalf("rows=%d", len(rows))
	}
	for i := range want {
		w := want[i]
		w.Peer = origin.URL
		if rows[i] != w {
			t.Fatalf("row %d\n got %+v\nwant %+v", i, rows[i], w)
		}
	}
}

func TestIndex_MergesPeersWithoutEcho(t *testing.T) {
	peer := httptest.NewServer(NewServer(&fakeStore{sessions: sampleSessions()[:2]}, nil, quietLogger()).Handler())
	defer peer.Close()

	local := &fakeStore{sessions: []SessionSummary{{SessionID: "local-1", Score: 200, Ticks: 10}}}
	hub := httptest.NewServer(NewServer(local, []string{peer.URL, "http://127.0.0.1:1"}, quietLogger()).Handler())
	defer hub.Close()

	resp, err := http.Get(hub.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var order []string
	doc.Find("tr.session").Each(func(_ int, s *goquery.Selection) {
		order = append(order, s.AttrOr("data-session", ""))
	})
	if strings.Join(order, ",") != "aaaaaaaa-1111,local-1,bbbbbbbb-2222" {
		t.Fatalf("order=%v", order)
	}
	if doc.Find("tr.peer").Length() != 2 {
		t.Fatalf("peer rows=%d", doc.Find("tr.peer").Length())
	}

	// A third viewer scraping the hub only sees the hub's own row.
	rows, err := FetchLeaderboard(context.Background(), http.DefaultClient, hub.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].SessionID != "local-1" {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestAPI(t *testing.T) {
	fs := &fakeStore{
		sessions: sampleSessions(),
		frames:   map[string][]Frame{"bbbbbbbb-2222": {{Tick: 1, Direction: "up"}}},
	}
	srv := httptest.NewServer(NewServer(fs, nil, quietLogger()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var list SessionsResponse
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if list.Total != 3 || len(list.Sessions) != 2 {
		t.Fatalf("list=%+v", list)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	resp, _ = http.Get(srv.URL + "/api/sessions/bbbbbbbb-2222")
	var one SessionResponse
	json.NewDecoder(resp.Body).Decode(&one)
	resp.Body.Close()
	if one.Summary.Score != 120 || len(one.Frames) != 1 || one.Frames[0].Direction != "up" {
		t.Fatalf("session=%+v", one)
	}

	resp, _ = http.Get(srv.URL + "/api/sessions/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

// recordGame plays a greedy session and returns its rows.
func recordGame(t *testing.T, seed int64, maxTicks int, source string) []store.TickRow {
	t.Helper()
	s := game.DefaultSettings()
	s.Width, s.Height = 12, 10
	s.Wrap = false
	s.Difficulty = game.Easy
	sess, err := game.NewSession(s, game.WithRand(rand.New(rand.NewSource(seed))), game.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	var rows []store.TickRow
	for sess.Phase() == game.PhaseRunning && len(rows) < maxTicks {
		sess.RequestDirectionChange(rules.Greedy(sess.Snapshot()))
		out := sess.Tick()
		rows = append(rows, store.RowFromSnapshot(sess.Snapshot(), out, source))
	}
	return rows
}

func TestDB_SessionsAndFrames(t *testing.T) {
	root := t.TempDir()
	games := [][]store.TickRow{
		recordGame(t, 1, 60, "greedy"),
		recordGame(t, 2, 40, "greedy"),
		recordGame(t, 3, 20, "human"),
	}
	for _, rows := range games {
		if _, err := store.WriteReplayParquetAtomic(root, rows); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	// Half-written files under tmp/ are ignored.
	stray := recordGame(t, 4, 5, "stray")
	tmpPath, err := store.WriteReplayParquetAtomic(filepath.Join(root, "tmp"), stray)
	if err != nil {
		t.Fatalf("write stray: %v", err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		t.Fatalf("stray missing: %v", err)
	}

	db, err := Open([]string{root}, time.Minute, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	sessions, total, err := db.Sessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if total != 3 || len(sessions) != 3 {
		t.Fatalf("total=%d sessions=%d", total, len(sessions))
	}
	for i := 1; i < len(sessions); i++ {
		if sessions[i].Score > sessions[i-1].Score {
			t.Fatalf("not sorted by score: %+v", sessions)
		}
	}

	byID := map[string][]store.TickRow{}
	for _, rows := range games {
		byID[rows[0].SessionID] = rows
	}
	for _, s := range sessions {
		rows := byID[s.SessionID]
		last := rows[len(rows)-1]
		if s.Score != last.Score || s.Ticks != last.Tick || s.Level != last.Level || s.Source != last.Source {
			t.Fatalf("summary %+v does not match last row %+v", s, last)
		}
		if !strings.HasPrefix(s.File, root) || !strings.Contains(s.File, "replay_") {
			t.Fatalf("file=%q", s.File)
		}
	}

	target := games[1]
	resp, err := db.Session(context.Background(), target[0].SessionID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(resp.Frames) != len(target) {
		t.Fatalf("frames=%d want %d", len(resp.Frames), len(target))
	}
	for i, f := range resp.Frames {
		r := target[i]
		if f.Tick != r.Tick || len(f.Snake) != len(r.BodyX) || f.Snake[0].X != int(r.BodyX[0]) || f.Direction != game.Direction(r.Direction).String() {
			t.Fatalf("frame %d=%+v row=%+v", i, f, r)
		}
		if len(f.Obstacles) != len(r.ObstacleKind) {
			t.Fatalf("frame %d obstacles=%d want %d", i, len(f.Obstacles), len(r.ObstacleKind))
		}
	}

	if _, err := db.Session(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("missing err=%v", err)
	}
}

func TestDB_EmptyRoot(t *testing.T) {
	db, err := Open([]string{t.TempDir(), filepath.Join(t.TempDir(), "absent")}, time.Minute, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	sessions, total, err := db.Sessions(context.Background(), 10)
	if err != nil || total != 0 || len(sessions) != 0 {
		t.Fatalf("sessions=%v total=%d err=%v", sessions, total, err)
	}
}

func TestParseRoots(t *testing.T) {
	got := ParseRoots(" a, b,,a ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("roots=%v", got)
	}
}
