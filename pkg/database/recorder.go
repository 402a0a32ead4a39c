package database

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

const recorderBuffer = 256

// HistoryRecorder persists session lifecycle events. It implements
// session.Observer; writes happen on its own goroutine so the session loop
// never waits on sqlite.
type HistoryRecorder struct {
	repo   *HistoryRepository
	logger logging.Logger
	now    func() time.Time

	jobs   chan func(ctx context.Context)
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	// guild id -> open history session id; only touched by the worker
	open map[string]string
}

// NewHistoryRecorder starts a recorder writing to repo
func NewHistoryRecorder(repo *HistoryRepository, logger logging.Logger) *HistoryRecorder {
	if logger == nil {
		logger = logging.NullLogger()
	}
	r := &HistoryRecorder{
		repo:   repo,
		logger: logger.With(logging.String("component", "history_recorder")),
		now:    time.Now,
		jobs:   make(chan func(ctx context.Context), recorderBuffer),
		done:   make(chan struct{}),
		open:   make(map[string]string),
	}
	go r.run()
	return r
}

func (r *HistoryRecorder) run() {
	defer close(r.done)
	ctx := context.Background()
	for job := range r.jobs {
		job(ctx)
	}
}

// enqueue drops the event when the buffer is full or the recorder is closed
func (r *HistoryRecorder) enqueue(job func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.jobs <- job:
		return true
	default:
		r.logger.Warn("History buffer full, dropping event")
		return false
	}
}

// TrackStarted implements session.Observer
func (r *HistoryRecorder) TrackStarted(guildID, channelID string, track session.Track, repeat bool) {
	at := r.now()
	r.enqueue(func(ctx context.Context) {
		sessionID, ok := r.open[guildID]
		if !ok {
			id, err := r.repo.StartSession(ctx, guildID, channelID, at)
			if err != nil {
				r.logger.Error("Failed to record session start", logging.String("guild_id", guildID), logging.Error(err))
				return
			}
			sessionID = id
			r.open[guildID] = id
		}

		play := &PlayRecord{
			SessionID:   sessionID,
			GuildID:     guildID,
			Title:       track.Title,
			URL:         track.URL,
			RequestedBy: track.RequestedBy,
			Duration:    track.Duration,
			Repeat:      repeat,
			PlayedAt:    at,
		}
		if err := r.repo.RecordPlay(ctx, play); err != nil {
			r.logger.Error("Failed to record play", logging.String("guild_id", guildID), logging.Error(err))
		}
	})
}

// SessionEnded implements session.Observer
func (r *HistoryRecorder) SessionEnded(guildID, channelID string, reason session.EndReason) {
	at := r.now()
	r.enqueue(func(ctx context.Context) {
		sessionID, ok := r.open[guildID]
		if !ok {
			return
		}
		delete(r.open, guildID)
		if err := r.repo.EndSession(ctx, sessionID, reason.String(), at); err != nil {
			r.logger.Error("Failed to record session end", logging.String("guild_id", guildID), logging.Error(err))
		}
	})
}

// Flush blocks until every event queued so far has been written
func (r *HistoryRecorder) Flush() {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	ch := make(chan struct{})
	r.jobs <- func(context.Context) { close(ch) }
	r.mu.RUnlock()
	<-ch
}

// Close writes the remaining events and stops the worker
func (r *HistoryRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	<-r.done
}
