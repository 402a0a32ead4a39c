package session

import (
	"context"
	"time"
)

// Handle identifies one Player.Start call. Notifications carry the handle of
// the start they belong to so a session can drop stale ones.
type Handle uint64

// PlayerEventKind is the kind of notification a Player emits
type PlayerEventKind int

const (
	PlayerIdle PlayerEventKind = iota
	PlayerPlaying
	PlayerError
)

func (k PlayerEventKind) String() string {
	switch k {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	case PlayerError:
		return "error"
	default:
		return "unknown"
	}
}

// PlayerEvent is an asynchronous notification from a Player
type PlayerEvent struct {
	Kind   PlayerEventKind
	Handle Handle
	Err    error
}

// Player streams one track at a time into a voice connection.
// Implementations must deliver notifications from their own goroutines.
type Player interface {
	Start(ctx context.Context, track Track) (Handle, error)
	Pause() error
	Resume() error
	Stop() error
}

// PlayerFactory creates the Player bound 1:1 to a session
type PlayerFactory interface {
	NewPlayer(guildID string, conn Connection, notify func(PlayerEvent)) (Player, error)
}

// Connection is an opaque voice transport handle
type Connection interface {
	ChannelID() string
}

// VoiceTransport joins and leaves voice channels
type VoiceTransport interface {
	Connect(ctx context.Context, guildID, voiceChannelID string) (Connection, error)
	Disconnect(conn Connection) error
}

// TrackResolver turns a user query into a playable Track
type TrackResolver interface {
	Resolve(ctx context.Context, query string) (Track, error)
}

// Observer receives lifecycle notifications. Calls are made from the session
// goroutine and must not block.
type Observer interface {
	TrackStarted(guildID, channelID string, track Track, repeat bool)
	SessionEnded(guildID, channelID string, reason EndReason)
}

// Timer is a cancellable scheduled callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The default uses time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Observers fans notifications out to several observers
type Observers []Observer

func (o Observers) TrackStarted(guildID, channelID string, track Track, repeat bool) {
	for _, obs := range o {
		obs.TrackStarted(guildID, channelID, track, repeat)
	}
}

func (o Observers) SessionEnded(guildID, channelID string, reason EndReason) {
	for _, obs := range o {
		obs.SessionEnded(guildID, channelID, reason)
	}
}

type nopObserver struct{}

func (nopObserver) TrackStarted(string, string, Track, bool) {}
func (nopObserver) SessionEnded(string, string, EndReason)   {}
