package session

import (
	"context"
	"fmt"
	"time"

	"github.com/latoulicious/tarumae/pkg/logging"
)

const inboxSize = 64

// sessionDeps are the collaborators a Session borrows from its Manager
type sessionDeps struct {
	transport     VoiceTransport
	players       PlayerFactory
	clock         Clock
	observer      Observer
	logger        logging.Logger
	teardownDelay time.Duration
	release       func(*Session)
}

type reply struct {
	result Result
	err    error
}

// Session is the playback state of one guild. All fields below the channel
// binding are owned by the run goroutine and only touched from jobs it runs.
type Session struct {
	guildID   string
	channelID string
	createdAt time.Time

	queue      []Track
	nowPlaying *Track
	lastPlayed *Track
	loop       bool
	state      State
	started    bool
	closed     bool

	player Player
	conn   Connection
	handle Handle

	teardown    Timer
	teardownSeq uint64

	deps   sessionDeps
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   chan struct{}
}

func newSession(guildID, channelID string, deps sessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID:   guildID,
		channelID: channelID,
		createdAt: time.Now(),
		state:     StateIdle,
		deps:      deps,
		logger:    deps.logger.With(logging.String("guild_id", guildID), logging.String("channel_id", channelID)),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
	}
}

// GuildID returns the guild this session belongs to
func (s *Session) GuildID() string {
	return s.guildID
}

// ChannelID returns the text channel the session is bound to
func (s *Session) ChannelID() string {
	return s.channelID
}

// Done is closed once the session has been destroyed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run executes jobs one at a time until the session is destroyed
func (s *Session) run() {
	s.logger.Debug("Session loop started")
	defer s.logger.Debug("Session loop stopped")

	for job := range s.inbox {
		job()
		if s.closed {
			close(s.done)
			return
		}
	}
}

// submit queues fn and returns the channel its reply will arrive on
func (s *Session) submit(fn func() (Result, error)) (chan reply, error) {
	ch := make(chan reply, 1)
	job := func() {
		result, err := fn()
		ch <- reply{result: result, err: err}
	}

	select {
	case s.inbox <- job:
		return ch, nil
	case <-s.done:
		return nil, ErrNoActiveSession
	}
}

// await waits for a submitted job. A job that was still queued when the
// session ended never runs and reports ErrNoActiveSession.
func (s *Session) await(ch chan reply) (Result, error) {
	select {
	case r := <-ch:
		return r.result, r.err
	case <-s.done:
		select {
		case r := <-ch:
			return r.result, r.err
		default:
			return Result{}, ErrNoActiveSession
		}
	}
}

func (s *Session) do(fn func() (Result, error)) (Result, error) {
	ch, err := s.submit(fn)
	if err != nil {
		return Result{}, err
	}
	return s.await(ch)
}

// post queues an asynchronous event; it is dropped once the session is gone
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// notify is the callback registered with the Player
func (s *Session) notify(ev PlayerEvent) {
	s.post(func() { s.handlePlayerEvent(ev) })
}

// begin connects the voice transport, creates the player and starts the first track
func (s *Session) begin(ctx context.Context, voiceChannelID string, track Track) (Result, error) {
	conn, err := s.deps.transport.Connect(ctx, s.guildID, voiceChannelID)
	if err != nil {
		s.logger.Warn("Voice connect failed", logging.String("voice_channel_id", voiceChannelID), logging.Error(err))
		s.destroy(EndPlayerError, false)
		return Result{}, fmt.Errorf("%w: %v", ErrNotConnectedToVoice, err)
	}
	s.conn = conn

	player, err := s.deps.players.NewPlayer(s.guildID, conn, s.notify)
	if err != nil {
		s.logger.Error("Player creation failed", logging.Error(err))
		s.destroy(EndPlayerError, true)
		return Result{}, &PlayerFailureError{Reason: err}
	}
	s.player = player

	s.queue = append(s.queue, track)
	result, err := s.advance(false)
	if err != nil {
		s.destroy(EndPlayerError, true)
		return Result{}, err
	}
	if result.Outcome != OutcomeStarted {
		s.destroy(EndEmptyQueue, true)
		return Result{}, ErrEmptyQueue
	}
	return result, nil
}

// enqueue appends a track; a draining session starts it right away
func (s *Session) enqueue(track Track) (Result, error) {
	s.queue = append(s.queue, track)

	if s.state == StateDraining {
		s.logger.Debug("Enqueue while draining, starting immediately")
		return s.advance(false)
	}

	t := track
	return Result{Outcome: OutcomeQueued, Track: &t, Position: len(s.queue), Loop: s.loop}, nil
}

// advance picks the next track. With respectLoop the current track repeats
// when loop is on; Skip passes false so a looped track still moves forward.
func (s *Session) advance(respectLoop bool) (Result, error) {
	var next Track
	repeat := false

	switch {
	case respectLoop && s.loop && s.nowPlaying != nil:
		next = *s.nowPlaying
		repeat = true
	case len(s.queue) > 0:
		next = s.queue[0]
		s.queue[0] = Track{}
		s.queue = s.queue[1:]
	default:
		s.drain()
		return Result{Outcome: OutcomeDraining, Loop: s.loop}, nil
	}

	return s.play(next, repeat)
}

// play hands a track to the Player. A failed start never leaves the session
// Playing: the queue is dropped and the session drains.
func (s *Session) play(track Track, repeat bool) (Result, error) {
	handle, err := s.player.Start(s.ctx, track)
	if err != nil {
		s.logger.Warn("Player failed to start track", logging.String("title", track.Title), logging.Error(err))
		s.queue = nil
		s.drain()
		return Result{}, &PlayerFailureError{Reason: err}
	}

	s.disarmTeardown()
	s.handle = handle
	t := track
	s.nowPlaying = &t
	s.lastPlayed = nil
	s.state = StatePlaying
	s.started = true

	s.logger.Info("Now playing",
		logging.String("title", track.Title),
		logging.Bool("repeat", repeat),
		logging.Int("queue_len", len(s.queue)),
	)
	s.deps.observer.TrackStarted(s.guildID, s.channelID, t, repeat)

	return Result{Outcome: OutcomeStarted, Track: &t, Loop: s.loop}, nil
}

// drain clears the current track and arms the teardown timer
func (s *Session) drain() {
	if s.nowPlaying != nil {
		s.lastPlayed = s.nowPlaying
	}
	s.nowPlaying = nil
	s.state = StateDraining
	s.armTeardown()
}

func (s *Session) control(op Op) (Result, error) {
	switch op {
	case OpSkip:
		if s.nowPlaying == nil {
			return Result{}, ErrEmptyQueue
		}
		if err := s.player.Stop(); err != nil {
			s.logger.Warn("Player stop failed during skip", logging.Error(err))
		}
		// The Idle produced by this stop belongs to the old handle and is ignored.
		s.handle = 0
		s.lastPlayed = nil
		result, err := s.advance(false)
		if err != nil {
			return Result{}, err
		}
		if result.Outcome == OutcomeStarted {
			result.Outcome = OutcomeSkipped
		}
		return result, nil

	case OpStop:
		s.destroy(EndStopped, false)
		return Result{Outcome: OutcomeStopped}, nil

	case OpLeave:
		s.destroy(EndLeft, true)
		return Result{Outcome: OutcomeLeft}, nil

	case OpPause:
		if s.nowPlaying == nil {
			return Result{}, ErrEmptyQueue
		}
		if s.state == StatePaused {
			return Result{Outcome: OutcomePaused, Track: s.current(), Loop: s.loop}, nil
		}
		if err := s.player.Pause(); err != nil {
			return Result{}, &PlayerFailureError{Reason: err}
		}
		s.state = StatePaused
		return Result{Outcome: OutcomePaused, Track: s.current(), Loop: s.loop}, nil

	case OpResume:
		if s.nowPlaying == nil {
			return Result{}, ErrEmptyQueue
		}
		if s.state == StatePlaying {
			return Result{Outcome: OutcomeResumed, Track: s.current(), Loop: s.loop}, nil
		}
		if err := s.player.Resume(); err != nil {
			return Result{}, &PlayerFailureError{Reason: err}
		}
		s.state = StatePlaying
		return Result{Outcome: OutcomeResumed, Track: s.current(), Loop: s.loop}, nil

	case OpToggleLoop:
		s.loop = !s.loop
		if s.loop {
			return Result{Outcome: OutcomeLoopEnabled, Track: s.current(), Loop: true}, nil
		}
		return Result{Outcome: OutcomeLoopDisabled, Track: s.current(), Loop: false}, nil
	}

	return Result{}, fmt.Errorf("unknown operation: %d", op)
}

func (s *Session) handlePlayerEvent(ev PlayerEvent) {
	if s.player == nil || ev.Handle != s.handle {
		s.logger.Debug("Ignoring stale player event",
			logging.String("kind", ev.Kind.String()),
			logging.Int64("handle", int64(ev.Handle)),
		)
		return
	}

	switch ev.Kind {
	case PlayerIdle:
		if s.state != StatePlaying && s.state != StatePaused {
			return
		}
		if _, err := s.advance(true); err != nil {
			s.logger.Warn("Advance after idle failed", logging.Error(err))
		}

	case PlayerPlaying:
		if s.state == StateDraining && s.lastPlayed != nil {
			s.disarmTeardown()
			s.nowPlaying = s.lastPlayed
			s.lastPlayed = nil
			s.state = StatePlaying
			s.logger.Debug("Playback resumed before teardown")
		}

	case PlayerError:
		s.logger.Error("Player reported a fatal error", logging.Error(ev.Err))
		s.destroy(EndPlayerError, true)
	}
}

func (s *Session) armTeardown() {
	s.disarmTeardown()
	s.teardownSeq++
	seq := s.teardownSeq
	s.teardown = s.deps.clock.AfterFunc(s.deps.teardownDelay, func() {
		s.post(func() { s.handleTeardown(seq) })
	})
	s.logger.Debug("Teardown armed", logging.Duration("delay", s.deps.teardownDelay))
}

// disarmTeardown is a no-op when nothing is armed
func (s *Session) disarmTeardown() {
	if s.teardown == nil {
		return
	}
	s.teardown.Stop()
	s.teardown = nil
	s.teardownSeq++
	s.logger.Debug("Teardown disarmed")
}

func (s *Session) handleTeardown(seq uint64) {
	if s.teardown == nil || seq != s.teardownSeq || s.state != StateDraining {
		return
	}
	s.teardown = nil
	s.logger.Info("Queue drained, tearing down session")
	s.destroy(EndDrained, true)
}

// destroy stops the player, optionally disconnects voice, and removes the
// session from the store. The run loop exits after the current job.
func (s *Session) destroy(reason EndReason, disconnect bool) {
	if s.closed {
		return
	}
	s.closed = true

	s.disarmTeardown()
	if s.player != nil {
		if err := s.player.Stop(); err != nil {
			s.logger.Debug("Player stop on destroy", logging.Error(err))
		}
		s.player = nil
	}
	if disconnect && s.conn != nil {
		if err := s.deps.transport.Disconnect(s.conn); err != nil {
			s.logger.Warn("Voice disconnect failed", logging.Error(err))
		}
	}
	s.conn = nil
	s.handle = 0
	s.queue = nil
	s.nowPlaying = nil
	s.lastPlayed = nil
	s.state = StateIdle
	s.cancel()

	s.deps.release(s)
	s.logger.Info("Session destroyed",
		logging.String("reason", reason.String()),
		logging.Duration("lifetime", time.Since(s.createdAt)),
	)
	if s.started {
		s.deps.observer.SessionEnded(s.guildID, s.channelID, reason)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		State:     s.state,
		Queue:     append([]Track(nil), s.queue...),
		Loop:      s.loop,
	}
	if s.nowPlaying != nil {
		t := *s.nowPlaying
		snap.NowPlaying = &t
	}
	return snap
}

// current returns a copy of the playing track, or nil
func (s *Session) current() *Track {
	if s.nowPlaying == nil {
		return nil
	}
	t := *s.nowPlaying
	return &t
}
