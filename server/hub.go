// Package server drives one session on a wall clock and mirrors it to
// websocket clients, which may also steer it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
	maxMessage = 512
)

type Options struct {
	// TickRate overrides the session's ticks per second when positive.
	TickRate int
	// ReplayDir, when set, receives one Parquet file per finished game.
	ReplayDir string
	Source    string
	Logger    *slog.Logger
}

// Command is what clients send.
type Command struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
}

// Message is what clients receive.
type Message struct {
	Type     string         `json:"type"`
	Snapshot *game.Snapshot `json:"snapshot,omitempty"`
	Outcome  string         `json:"outcome,omitempty"`
	Points   int            `json:"points,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub owns a session. All session access except direction requests goes
// through mu.
type Hub struct {
	mu     sync.Mutex
	sess   *game.Session
	slowed bool
	replay []store.TickRow

	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*client]struct{}
}

func NewHub(sess *game.Session, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Source == "" {
		opts.Source = "human"
	}
	return &Hub{
		sess:   sess,
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) interval() time.Duration {
	rate := h.opts.TickRate
	if rate <= 0 {
		rate = h.sess.Settings().TickRate
	}
	if rate <= 0 {
		rate = 10
	}
	return time.Second / time.Duration(rate)
}

// Run ticks the session until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()
	h.logger.Info("hub running", "session", h.sess.ID(), "interval", h.interval())

	for {
		select {
		case <-ctx.Done():
			h.closeClients()
			return nil
		case <-ticker.C:
			h.Step()
		}
	}
}

// Step advances the session one tick and broadcasts the result. A tick
// after a mud cell is swallowed, so mud moves at half speed.
func (h *Hub) Step() game.Outcome {
	h.mu.Lock()
	if h.slowed && h.sess.Phase() == game.PhaseRunning {
		h.slowed = false
		h.mu.Unlock()
		return game.Outcome{Kind: game.OutcomeIgnored, Slowed: true}
	}
	out := h.sess.Tick()
	if out.Kind == game.OutcomeIgnored {
		h.mu.Unlock()
		return out
	}
	h.slowed = out.Slowed
	snap := h.sess.Snapshot()
	if h.opts.ReplayDir != "" {
		h.replay = append(h.replay, store.RowFromSnapshot(snap, out, h.opts.Source))
	}
	var finished []store.TickRow
	if out.Kind == game.OutcomeGameOver {
		finished, h.replay = h.replay, nil
	}
	h.mu.Unlock()

	if len(finished) > 0 {
		h.writeReplay(finished)
	}
	h.broadcast(Message{Type: "snapshot", Snapshot: snap, Outcome: out.Kind.String(), Points: out.Points})
	return out
}

func (h *Hub) writeReplay(rows []store.TickRow) {
	path, err := store.WriteReplayParquetAtomic(h.opts.ReplayDir, rows)
	if err != nil {
		h.logger.Error("replay write failed", "session", rows[0].SessionID, "error", err)
		return
	}
	h.logger.Info("replay written", "session", rows[0].SessionID, "path", path, "rows", len(rows))
}

// Apply runs a client command against the session.
func (h *Hub) Apply(cmd Command) error {
	switch cmd.Type {
	case "direction":
		d, err := game.ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		h.sess.RequestDirectionChange(d)
		return nil
	case "pause", "resume", "reset":
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}

	h.mu.Lock()
	switch cmd.Type {
	case "pause":
		h.sess.Pause()
	case "resume":
		h.sess.Resume()
	case "reset":
		h.sess.Reset()
		h.slowed = false
		h.replay = nil
	}
	snap := h.sess.Snapshot()
	h.mu.Unlock()

	h.broadcast(Message{Type: "snapshot", Snapshot: snap})
	return nil
}

func (h *Hub) Snapshot() *game.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess.Snapshot()
}

func (h *Hub) broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			// Too slow to keep up.
			h.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) register(c *client) {
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info("client connected", "remote", c.conn.RemoteAddr().String(), "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.clientsMu.Unlock()
}

func (h *Hub) closeClients() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}
