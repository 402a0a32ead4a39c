package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLoop_TwiceRestoresState(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)

	before := h.snapshot(t, "g1")

	result, err := h.control("g1", "text", OpToggleLoop)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoopEnabled, result.Outcome)
	assert.True(t, result.Loop)

	result, err = h.control("g1", "text", OpToggleLoop)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoopDisabled, result.Outcome)
	assert.False(t, result.Loop)

	assert.Equal(t, before, h.snapshot(t, "g1"))
}

func TestSkip_WithLoopMovesForward(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	_, err = h.control("g1", "text", OpToggleLoop)
	require.NoError(t, err)

	player := h.players.get(t, "g1")
	oldHandle := player.handle()

	result, err := h.control("g1", "text", OpSkip)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, "b", result.Track.Title)
	assert.True(t, result.Loop)
	assert.Equal(t, 1, player.stops)

	// The idle caused by stopping the old track must not advance again.
	player.emit(PlayerIdle, oldHandle, nil)
	snap := h.snapshot(t, "g1")
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "b", snap.NowPlaying.Title)
	assert.True(t, snap.Loop)

	player.finish()
	snap = h.snapshot(t, "g1")
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "b", snap.NowPlaying.Title)

	starts := h.observer.starts()
	require.Len(t, starts, 3)
	assert.False(t, starts[1].repeat)
	assert.True(t, starts[2].repeat)
}

func TestSkip_LastTrackDrains(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	player := h.players.get(t, "g1")
	oldHandle := player.handle()

	result, err := h.control("g1", "text", OpSkip)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDraining, result.Outcome)

	player.emit(PlayerIdle, oldHandle, nil)
	snap := h.snapshot(t, "g1")
	assert.Equal(t, StateDraining, snap.State)
	assert.Nil(t, snap.NowPlaying)
	assert.Equal(t, 1, h.clock.count())

	_, err = h.control("g1", "text", OpSkip)
	assert.ErrorIs(t, err, ErrEmptyQueue)
	_, err = h.control("g1", "text", OpPause)
	assert.ErrorIs(t, err, ErrEmptyQueue)
	_, err = h.control("g1", "text", OpResume)
	assert.ErrorIs(t, err, ErrEmptyQueue)
	assert.Equal(t, 1, h.manager.ActiveSessions())
}

func TestDrain_TeardownDestroysSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	player := h.players.get(t, "g1")
	s := h.store.Get("g1")
	require.NotNil(t, s)

	player.finish()
	snap := h.snapshot(t, "g1")
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "b", snap.NowPlaying.Title)
	assert.Equal(t, 0, h.clock.count())

	player.finish()
	snap = h.snapshot(t, "g1")
	assert.Equal(t, StateDraining, snap.State)
	timer := h.clock.last(t)
	assert.Equal(t, DefaultConfig().TeardownDelay, timer.delay)

	timer.fire()
	h.waitDestroyed(t, s)

	assert.Equal(t, 0, h.manager.ActiveSessions())
	assert.Equal(t, 1, h.transport.disconnects())
	endings := h.observer.endings()
	require.Len(t, endings, 1)
	assert.Equal(t, EndDrained, endings[0].reason)
	assert.Equal(t, "text", endings[0].channelID)

	// A new request after teardown creates a fresh session.
	result, err := h.enqueue("g1", "other", "c")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, result.Outcome)
	assert.Equal(t, 2, h.transport.connects)
}

func TestDrain_PlayingEventCancelsTeardown(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	player := h.players.get(t, "g1")
	s := h.store.Get("g1")
	require.NotNil(t, s)
	handle := player.handle()

	// Simulate the player reporting idle for a track that is still going.
	player.finish()
	snap := h.snapshot(t, "g1")
	assert.Equal(t, StateDraining, snap.State)
	timer := h.clock.last(t)

	player.emit(PlayerPlaying, handle, nil)
	snap = h.snapshot(t, "g1")
	assert.Equal(t, StatePlaying, snap.State)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "a", snap.NowPlaying.Title)
	assert.Equal(t, 1, timer.stops())

	// Cancelling again is a no-op.
	player.emit(PlayerPlaying, handle, nil)
	h.snapshot(t, "g1")
	assert.Equal(t, 1, timer.stops())

	// A fire that raced with the cancellation must not tear down.
	timer.fire()
	snap = h.snapshot(t, "g1")
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, 1, h.manager.ActiveSessions())

	select {
	case <-s.Done():
		t.Fatal("session destroyed after cancelled teardown")
	default:
	}
}

func TestDrain_EnqueueStartsImmediately(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	player := h.players.get(t, "g1")
	player.finish()
	assert.Equal(t, StateDraining, h.snapshot(t, "g1").State)
	timer := h.clock.last(t)

	result, err := h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, result.Outcome)
	assert.Equal(t, "b", result.Track.Title)
	assert.Equal(t, 1, timer.stops())

	timer.fire()
	snap := h.snapshot(t, "g1")
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, 1, h.transport.connects)
}

func TestPauseResume_Idempotent(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	player := h.players.get(t, "g1")

	result, err := h.control("g1", "text", OpResume)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResumed, result.Outcome)
	assert.Equal(t, 0, player.resumes)

	for i := 0; i < 2; i++ {
		result, err = h.control("g1", "text", OpPause)
		require.NoError(t, err)
		assert.Equal(t, OutcomePaused, result.Outcome)
		assert.Equal(t, "a", result.Track.Title)
	}
	assert.Equal(t, 1, player.pauses)
	assert.Equal(t, StatePaused, h.snapshot(t, "g1").State)

	for i := 0; i < 2; i++ {
		result, err = h.control("g1", "text", OpResume)
		require.NoError(t, err)
		assert.Equal(t, OutcomeResumed, result.Outcome)
	}
	assert.Equal(t, 1, player.resumes)
	assert.Equal(t, StatePlaying, h.snapshot(t, "g1").State)
}

func TestPaused_IdleAdvances(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	_, err = h.control("g1", "text", OpPause)
	require.NoError(t, err)

	h.players.get(t, "g1").finish()
	snap := h.snapshot(t, "g1")
	assert.Equal(t, StatePlaying, snap.State)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "b", snap.NowPlaying.Title)
}

func TestStopAndLeave(t *testing.T) {
	tests := []struct {
		name              string
		op                Op
		outcome           Outcome
		reason            EndReason
		expectDisconnects int
	}{
		{name: "stop keeps voice", op: OpStop, outcome: OutcomeStopped, reason: EndStopped, expectDisconnects: 0},
		{name: "leave disconnects", op: OpLeave, outcome: OutcomeLeft, reason: EndLeft, expectDisconnects: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.enqueue("g1", "text", "a")
			require.NoError(t, err)
			_, err = h.enqueue("g1", "text", "b")
			require.NoError(t, err)
			player := h.players.get(t, "g1")

			result, err := h.control("g1", "text", tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, result.Outcome)

			assert.Equal(t, 1, player.stops)
			assert.Equal(t, tt.expectDisconnects, h.transport.disconnects())
			assert.Equal(t, 0, h.manager.ActiveSessions())
			endings := h.observer.endings()
			require.Len(t, endings, 1)
			assert.Equal(t, tt.reason, endings[0].reason)

			_, err = h.control("g1", "text", OpSkip)
			assert.ErrorIs(t, err, ErrNoActiveSession)
		})
	}
}

func TestPlayerError_DestroysSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	player := h.players.get(t, "g1")
	s := h.store.Get("g1")
	require.NotNil(t, s)

	// Errors for an old handle are ignored.
	player.emit(PlayerError, player.handle()+10, errors.New("stale"))
	assert.Equal(t, StatePlaying, h.snapshot(t, "g1").State)

	player.emit(PlayerError, player.handle(), errors.New("stream died"))
	h.waitDestroyed(t, s)

	assert.Equal(t, 0, h.manager.ActiveSessions())
	assert.Equal(t, 1, h.transport.disconnects())
	endings := h.observer.endings()
	require.Len(t, endings, 1)
	assert.Equal(t, EndPlayerError, endings[0].reason)
}

func TestStartFailureOnAdvance_Drains(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "c")
	require.NoError(t, err)
	player := h.players.get(t, "g1")

	player.failStarts(errors.New("stream expired"))
	_, err = h.control("g1", "text", OpSkip)
	var failure *PlayerFailureError
	require.ErrorAs(t, err, &failure)

	snap := h.snapshot(t, "g1")
	assert.Equal(t, StateDraining, snap.State)
	assert.Nil(t, snap.NowPlaying)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, 1, h.clock.count())
}

func TestObserver_TrackStarted(t *testing.T) {
	h := newHarness(t)
	_, err := h.enqueue("g1", "text", "a")
	require.NoError(t, err)
	_, err = h.enqueue("g1", "text", "b")
	require.NoError(t, err)
	h.players.get(t, "g1").finish()
	h.snapshot(t, "g1")

	starts := h.observer.starts()
	require.Len(t, starts, 2)
	assert.Equal(t, startedEvent{guildID: "g1", channelID: "text", title: "a"}, starts[0])
	assert.Equal(t, startedEvent{guildID: "g1", channelID: "text", title: "b"}, starts[1])
}

func TestStore_RemoveChecksIdentity(t *testing.T) {
	store := NewStore()
	first := &Session{guildID: "g1"}
	second := &Session{guildID: "g1"}

	got, created := store.getOrCreate("g1", func() *Session { return first })
	assert.True(t, created)
	assert.Same(t, first, got)

	got, created = store.getOrCreate("g1", func() *Session { return second })
	assert.False(t, created)
	assert.Same(t, first, got)

	assert.False(t, store.remove("g1", second))
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.remove("g1", first))
	assert.Equal(t, 0, store.Len())
	assert.Nil(t, store.Get("g1"))
}
