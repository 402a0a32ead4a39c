package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/latoulicious/tarumae/pkg/logging"
)

// enqueueAttempts bounds retries when a looked-up session is torn down
// between lookup and delivery
const enqueueAttempts = 3

// Config contains the manager's tunables
type Config struct {
	// TeardownDelay is how long a drained session waits for new work
	TeardownDelay time.Duration
}

// DefaultConfig returns the 200ms debounce the bot has always used
func DefaultConfig() Config {
	return Config{TeardownDelay: 200 * time.Millisecond}
}

// Dependencies are the external collaborators of the manager. Clock and
// Observer are optional.
type Dependencies struct {
	Resolver  TrackResolver
	Transport VoiceTransport
	Players   PlayerFactory
	Clock     Clock
	Observer  Observer
}

// Manager is the single source of truth for which guild has a session
type Manager struct {
	store  *Store
	deps   Dependencies
	config Config
	logger logging.Logger
}

// NewManager creates a manager over the given store
func NewManager(store *Store, deps Dependencies, config Config, logger logging.Logger) (*Manager, error) {
	var errs []string
	if store == nil {
		errs = append(errs, "store is required")
	}
	if deps.Resolver == nil {
		errs = append(errs, "track resolver is required")
	}
	if deps.Transport == nil {
		errs = append(errs, "voice transport is required")
	}
	if deps.Players == nil {
		errs = append(errs, "player factory is required")
	}
	if config.TeardownDelay < 0 {
		errs = append(errs, "teardown delay must be >= 0")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid session manager setup: %v", errs)
	}

	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	return &Manager{
		store:  store,
		deps:   deps,
		config: config,
		logger: logger.With(logging.String("component", "session_manager")),
	}, nil
}

func (m *Manager) sessionDeps() sessionDeps {
	return sessionDeps{
		transport:     m.deps.Transport,
		players:       m.deps.Players,
		clock:         m.deps.Clock,
		observer:      m.deps.Observer,
		logger:        m.logger,
		teardownDelay: m.config.TeardownDelay,
		release: func(s *Session) {
			m.store.remove(s.guildID, s)
		},
	}
}

// Enqueue adds a track for a guild, creating and starting a session when
// the guild has none
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (Result, error) {
	if req.VoiceChannelID == "" {
		return Result{}, ErrNotConnectedToVoice
	}

	if s := m.store.Get(req.GuildID); s != nil && s.channelID != req.ChannelID {
		return Result{}, &ChannelConflictError{BoundChannelID: s.channelID}
	}

	track, err := m.deps.Resolver.Resolve(ctx, req.Query)
	if err != nil {
		return Result{}, &TrackResolutionError{Query: req.Query, Reason: err}
	}
	if track.ID == "" {
		track.ID = req.Query
	}
	track.RequestedBy = req.RequestedBy

	// Resolution may have taken a while; look the session up again.
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		var pending chan reply
		s, created := m.store.getOrCreate(req.GuildID, func() *Session {
			s := newSession(req.GuildID, req.ChannelID, m.sessionDeps())
			// The inbox is empty, so this cannot block under the store lock.
			pending, _ = s.submit(func() (Result, error) {
				return s.begin(ctx, req.VoiceChannelID, track)
			})
			go s.run()
			return s
		})

		if created {
			m.logger.Info("Session created",
				logging.String("guild_id", req.GuildID),
				logging.String("channel_id", req.ChannelID),
			)
			return s.await(pending)
		}

		if s.channelID != req.ChannelID {
			return Result{}, &ChannelConflictError{BoundChannelID: s.channelID}
		}

		result, err := s.do(func() (Result, error) { return s.enqueue(track) })
		if errors.Is(err, ErrNoActiveSession) {
			continue
		}
		return result, err
	}

	return Result{}, ErrNoActiveSession
}

// Control applies a playback operation to a guild's session
func (m *Manager) Control(ctx context.Context, guildID, channelID string, op Op) (Result, error) {
	s := m.store.Get(guildID)
	if s == nil {
		return Result{}, ErrNoActiveSession
	}
	if s.channelID != channelID {
		return Result{}, &ChannelConflictError{BoundChannelID: s.channelID}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return s.do(func() (Result, error) { return s.control(op) })
}

// Snapshot returns a copy of a guild's session state
func (m *Manager) Snapshot(guildID string) (Snapshot, error) {
	s := m.store.Get(guildID)
	if s == nil {
		return Snapshot{}, ErrNoActiveSession
	}

	var snap Snapshot
	_, err := s.do(func() (Result, error) {
		snap = s.snapshot()
		return Result{}, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ActiveSessions returns the number of guilds with a session
func (m *Manager) ActiveSessions() int {
	return m.store.Len()
}

// Close destroys every session and disconnects their voice transports
func (m *Manager) Close() {
	for _, s := range m.store.All() {
		_, err := s.do(func() (Result, error) {
			s.destroy(EndShutdown, true)
			return Result{}, nil
		})
		if err != nil && !errors.Is(err, ErrNoActiveSession) {
			m.logger.Warn("Failed to close session", logging.String("guild_id", s.guildID), logging.Error(err))
		}
	}
	m.logger.Info("Session manager closed")
}
