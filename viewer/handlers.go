package viewer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store is what the handlers read from. *DB implements it.
type Store interface {
	Sessions(ctx context.Context, limit int) ([]SessionSummary, int, error)
	Session(ctx context.Context, id string) (SessionResponse, error)
}

type Server struct {
	store  Store
	peers  []string
	client *http.Client
	logger *slog.Logger
}

// NewServer serves store's sessions, merging in the leaderboards of peers
// on the HTML page.
func NewServer(store Store, peers []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  store,
		peers:  peers,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	local, total, err := s.store.Sessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := append(local, s.fetchPeers(r.Context())...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Ticks < rows[j].Ticks
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	var buf bytes.Buffer
	if err := renderLeaderboard(&buf, total, rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// fetchPeers scrapes every peer concurrently. A failing peer is logged and
// left out.
func (s *Server) fetchPeers(ctx context.Context) []SessionSummary {
	if len(s.peers) == 0 {
		return nil
	}
	var (
		mu  sync.Mutex
		out []SessionSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range s.peers {
		g.Go(func() error {
			rows, err := FetchLeaderboard(gctx, s.client, peer)
			if err != nil {
				s.logger.Warn("peer leaderboard failed", "peer", peer, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, rows...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	sessions, total, err := s.store.Sessions(r.Context(), parseIntQuery(r, "limit", 100))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, SessionsResponse{Total: total, Sessions: sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	resp, err := s.store.Session(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}
