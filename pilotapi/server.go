// Package pilotapi serves move decisions over HTTP. A caller posts the
// snapshot it is looking at and gets back the direction an MCTS search
// chose within the caller's time budget.
package pilotapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/mcts"
	"github.com/brensch/snekgrid/rules"
)

type Config struct {
	// MoveTimeout is used when a request carries no timeout of its own.
	MoveTimeout time.Duration
	// Overhead is held back from every budget for decoding and the response.
	Overhead time.Duration
	// MinCompute is the floor on search time after Overhead is taken off.
	MinCompute time.Duration
	// Simulations caps the search. It usually stops on the deadline first.
	Simulations int
	Search      mcts.Config
}

func DefaultConfig() Config {
	return Config{
		MoveTimeout: 500 * time.Millisecond,
		Overhead:    200 * time.Millisecond,
		MinCompute:  50 * time.Millisecond,
		Simulations: 10000,
		Search:      mcts.DefaultConfig(),
	}
}

type StartRequest struct {
	SessionID string `json:"session_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type MoveRequest struct {
	State *game.Snapshot `json:"state"`
	// TimeoutMS overrides Config.MoveTimeout for this move.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

type MoveResponse struct {
	Move        game.Direction `json:"move"`
	Simulations int            `json:"simulations"`
	Depth       int            `json:"depth"`
	Fallback    bool           `json:"fallback,omitempty"`
	Shout       string         `json:"shout,omitempty"`
}

type EndRequest struct {
	SessionID string     `json:"session_id"`
	Tick      uint64     `json:"tick"`
	Score     int        `json:"score"`
	Cause     game.Cause `json:"cause"`
}

type InfoResponse struct {
	APIVersion  string  `json:"apiversion"`
	Author      string  `json:"author"`
	Version     string  `json:"version"`
	Simulations int     `json:"simulations"`
	Cpuct       float32 `json:"cpuct"`
}

type Server struct {
	predictor mcts.Predictor
	cfg       Config
	logger    *slog.Logger
}

func NewServer(p mcts.Predictor, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Simulations <= 0 {
		cfg.Simulations = DefaultConfig().Simulations
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = DefaultConfig().MoveTimeout
	}
	return &Server{predictor: p, cfg: cfg, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /move", s.handleMove)
	mux.HandleFunc("POST /end", s.handleEnd)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, InfoResponse{
		APIVersion:  "1",
		Author:      "snekgrid",
		Version:     "1.0.0",
		Simulations: s.cfg.Simulations,
		Cpuct:       s.cfg.Search.Cpuct,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("game started", "session", req.SessionID, "width", req.Width, "height", req.Height)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate(req.State); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.computeTime(req.TimeoutMS))
	defer cancel()

	resp := s.decide(ctx, req.State)
	s.logger.Debug("move",
		"session", req.State.SessionID,
		"tick", req.State.Tick,
		"move", resp.Move,
		"sims", resp.Simulations,
		"fallback", resp.Fallback,
		"elapsed", time.Since(start),
	)
	writeJSON(w, resp)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("game ended", "session", req.SessionID, "tick", req.Tick, "score", req.Score, "cause", req.Cause)
	w.WriteHeader(http.StatusOK)
}

// computeTime is the request budget minus Overhead, never below MinCompute.
func (s *Server) computeTime(timeoutMS int) time.Duration {
	timeout := s.cfg.MoveTimeout
	if timeoutMS > 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	compute := timeout - s.cfg.Overhead
	if compute < s.cfg.MinCompute {
		compute = s.cfg.MinCompute
	}
	return compute
}

// decide runs the search until ctx ends or the simulation cap is hit. A
// search cut short by the deadline still answers from the visits it made.
func (s *Server) decide(ctx context.Context, state *game.Snapshot) MoveResponse {
	fallback := rules.Greedy(state)
	moves := rules.LegalMoves(state)
	switch len(moves) {
	case 0:
		return MoveResponse{Move: fallback, Fallback: true, Shout: "no way out"}
	case 1:
		return MoveResponse{Move: moves[0]}
	}

	m := mcts.MCTS{Config: s.cfg.Search, Client: s.predictor}
	root, depth, err := m.Search(ctx, state, s.cfg.Simulations)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		s.logger.Warn("search failed", "session", state.SessionID, "error", err)
		return MoveResponse{Move: fallback, Fallback: true}
	}
	if root == nil || !root.IsExpanded {
		return MoveResponse{Move: fallback, Fallback: true}
	}
	return MoveResponse{
		Move:        mcts.BestMove(root, fallback),
		Simulations: root.VisitCount,
		Depth:       depth,
		Shout:       fmt.Sprintf("ran %d simulations", root.VisitCount),
	}
}

func validate(s *game.Snapshot) error {
	switch {
	case s == nil:
		return errors.New("missing state")
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("bad grid %dx%d", s.Width, s.Height)
	case len(s.Snake) == 0:
		return errors.New("state has no snake")
	}
	g := s.Grid()
	for _, p := range s.Snake {
		if !g.Contains(p) {
			return fmt.Errorf("snake cell %v outside the grid", p)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
