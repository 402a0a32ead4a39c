package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/latoulicious/tarumae/pkg/logging"
)

type fakeConn struct {
	channelID string
}

func (c *fakeConn) ChannelID() string { return c.channelID }

type fakeTransport struct {
	mu           sync.Mutex
	connectErr   error
	connects     int
	disconnected []Connection
}

func (t *fakeTransport) Connect(ctx context.Context, guildID, voiceChannelID string) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	t.connects++
	return &fakeConn{channelID: voiceChannelID}, nil
}

func (t *fakeTransport) Disconnect(conn Connection) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = append(t.disconnected, conn)
	return nil
}

func (t *fakeTransport) disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.disconnected)
}

type fakePlayer struct {
	mu       sync.Mutex
	notify   func(PlayerEvent)
	next     Handle
	started  []Track
	startErr error
	pauses   int
	resumes  int
	stops    int
}

func (p *fakePlayer) Start(ctx context.Context, track Track) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return 0, p.startErr
	}
	p.next++
	p.started = append(p.started, track)
	return p.next, nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePlayer) failStarts(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startErr = err
}

func (p *fakePlayer) handle() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

func (p *fakePlayer) titles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	titles := make([]string, 0, len(p.started))
	for _, t := range p.started {
		titles = append(titles, t.Title)
	}
	return titles
}

// finish emits Idle for the current handle, as a real player does when a track ends
func (p *fakePlayer) finish() {
	p.notify(PlayerEvent{Kind: PlayerIdle, Handle: p.handle()})
}

func (p *fakePlayer) emit(kind PlayerEventKind, handle Handle, err error) {
	p.notify(PlayerEvent{Kind: kind, Handle: handle, Err: err})
}

type fakePlayers struct {
	mu       sync.Mutex
	players  map[string]*fakePlayer
	startErr error
	newErr   error
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{players: make(map[string]*fakePlayer)}
}

func (f *fakePlayers) NewPlayer(guildID string, conn Connection, notify func(PlayerEvent)) (Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	p := &fakePlayer{notify: notify, startErr: f.startErr}
	f.players[guildID] = p
	return p, nil
}

func (f *fakePlayers) get(t *testing.T, guildID string) *fakePlayer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[guildID]
	require.True(t, ok, "no player for guild %s", guildID)
	return p
}

var errNotFound = errors.New("not found")

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, query string) (Track, error) {
	if query == "missing" {
		return Track{}, errNotFound
	}
	return Track{ID: query, Title: query, URL: "https://example.com/" + query, StreamURL: "stream://" + query}, nil
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped int
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
	return !t.fired && t.stopped == 1
}

func (t *fakeTimer) stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback even if the timer was stopped, modelling a fire
// that raced with cancellation
func (t *fakeTimer) fire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.fn()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) last(t *testing.T) *fakeTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.timers, "no timer armed")
	return c.timers[len(c.timers)-1]
}

type startedEvent struct {
	guildID, channelID string
	title              string
	repeat             bool
}

type endedEvent struct {
	guildID, channelID string
	reason             EndReason
}

type recordingObserver struct {
	mu      sync.Mutex
	started []startedEvent
	ended   []endedEvent
}

func (o *recordingObserver) TrackStarted(guildID, channelID string, track Track, repeat bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, startedEvent{guildID, channelID, track.Title, repeat})
}

func (o *recordingObserver) SessionEnded(guildID, channelID string, reason EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, endedEvent{guildID, channelID, reason})
}

func (o *recordingObserver) endings() []endedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]endedEvent(nil), o.ended...)
}

func (o *recordingObserver) starts() []startedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]startedEvent(nil), o.started...)
}

type harness struct {
	manager   *Manager
	store     *Store
	transport *fakeTransport
	players   *fakePlayers
	clock     *fakeClock
	observer  *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     NewStore(),
		transport: &fakeTransport{},
		players:   newFakePlayers(),
		clock:     &fakeClock{},
		observer:  &recordingObserver{},
	}
	manager, err := NewManager(h.store, Dependencies{
		Resolver:  fakeResolver{},
		Transport: h.transport,
		Players:   h.players,
		Clock:     h.clock,
		Observer:  h.observer,
	}, DefaultConfig(), logging.NullLogger())
	require.NoError(t, err)
	h.manager = manager
	t.Cleanup(manager.Close)
	return h
}

func (h *harness) enqueue(guildID, channelID, query string) (Result, error) {
	return h.manager.Enqueue(context.Background(), EnqueueRequest{
		GuildID:        guildID,
		ChannelID:      channelID,
		VoiceChannelID: "voice-" + guildID,
		Query:          query,
		RequestedBy:    "tester",
	})
}

func (h *harness) control(guildID, channelID string, op Op) (Result, error) {
	return h.manager.Control(context.Background(), guildID, channelID, op)
}

// snapshot also acts as a barrier: it runs after every event already posted
func (h *harness) snapshot(t *testing.T, guildID string) Snapshot {
	t.Helper()
	snap, err := h.manager.Snapshot(guildID)
	require.NoError(t, err)
	return snap
}

func (h *harness) waitDestroyed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session for guild %s was not destroyed", s.guildID)
	}
}
