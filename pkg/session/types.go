package session

import (
	"time"
)

// Track is a single playable item in a guild queue
type Track struct {
	ID          string // Query or URL as requested
	Title       string
	URL         string // Page URL shown to users
	StreamURL   string // Streamable reference handed to the Player
	Thumbnail   string
	Duration    time.Duration
	RequestedBy string
}

// State represents where a playback session is in its lifecycle
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Op is a control operation issued by the command layer
type Op int

const (
	OpSkip Op = iota
	OpStop
	OpLeave
	OpPause
	OpResume
	OpToggleLoop
)

func (o Op) String() string {
	switch o {
	case OpSkip:
		return "skip"
	case OpStop:
		return "stop"
	case OpLeave:
		return "leave"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpToggleLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// Outcome tells the command layer what a successful call did
type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeQueued
	OutcomeSkipped
	OutcomeDraining
	OutcomeStopped
	OutcomeLeft
	OutcomePaused
	OutcomeResumed
	OutcomeLoopEnabled
	OutcomeLoopDisabled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeQueued:
		return "queued"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDraining:
		return "draining"
	case OutcomeStopped:
		return "stopped"
	case OutcomeLeft:
		return "left"
	case OutcomePaused:
		return "paused"
	case OutcomeResumed:
		return "resumed"
	case OutcomeLoopEnabled:
		return "loop_enabled"
	case OutcomeLoopDisabled:
		return "loop_disabled"
	default:
		return "unknown"
	}
}

// Result is returned by Enqueue and Control on success.
// Track is set for Started, Queued and Skipped; Position only for Queued.
type Result struct {
	Outcome  Outcome
	Track    *Track
	Position int
	Loop     bool
}

// EndReason records why a session was destroyed
type EndReason int

const (
	EndDrained EndReason = iota
	EndStopped
	EndLeft
	EndPlayerError
	EndEmptyQueue
	EndShutdown
)

func (r EndReason) String() string {
	switch r {
	case EndDrained:
		return "drained"
	case EndStopped:
		return "stopped"
	case EndLeft:
		return "left"
	case EndPlayerError:
		return "player_error"
	case EndEmptyQueue:
		return "empty_queue"
	case EndShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of a session's state
type Snapshot struct {
	GuildID    string
	ChannelID  string
	State      State
	NowPlaying *Track
	Queue      []Track
	Loop       bool
}

// EnqueueRequest carries everything the command layer knows about a play request
type EnqueueRequest struct {
	GuildID        string
	ChannelID      string
	VoiceChannelID string
	Query          string
	RequestedBy    string
}
