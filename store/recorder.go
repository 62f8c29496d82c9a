package store

import (
	"log/slog"
	"sync"

	"github.com/brensch/snekgrid/game"
)

// Recorder is a game.Listener that persists events off the tick path.
// Events are queued on a buffered channel and written by one goroutine;
// when the queue is full the event is dropped and logged.
type Recorder struct {
	db     *DB
	scores *HighScoreLog
	source string
	logger *slog.Logger

	events chan any
	done   chan struct{}
	once   sync.Once
}

const recorderQueue = 64

// NewRecorder starts the writer goroutine. Either db or scores may be nil.
func NewRecorder(db *DB, scores *HighScoreLog, source string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		db:     db,
		scores: scores,
		source: source,
		logger: logger,
		events: make(chan any, recorderQueue),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) OnGameOver(ev game.GameOverEvent)   { r.enqueue(ev) }
func (r *Recorder) OnHighScore(ev game.HighScoreEvent) { r.enqueue(ev) }

func (r *Recorder) enqueue(ev any) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("recorder queue full, dropping event", "event", ev)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for ev := range r.events {
		switch ev := ev.(type) {
		case game.GameOverEvent:
			if r.db == nil {
				continue
			}
			if err := r.db.InsertResult(ResultFromEvent(ev, r.source)); err != nil {
				r.logger.Error("store result", "session", ev.SessionID, "error", err)
			}
		case game.HighScoreEvent:
			if r.scores == nil {
				continue
			}
			if _, err := r.scores.Record(ev.Score, ev.At); err != nil {
				r.logger.Error("record high score", "score", ev.Score, "error", err)
			}
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
// Events sent after Close are not allowed.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.events) })
	<-r.done
}
