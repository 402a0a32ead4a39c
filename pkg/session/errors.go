package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnectedToVoice = errors.New("not connected to a voice channel")
	ErrNoActiveSession     = errors.New("no active session")
	ErrEmptyQueue          = errors.New("no song in queue")
)

// ChannelConflictError is returned when a guild's session is bound to another text channel
type ChannelConflictError struct {
	BoundChannelID string
}

func (e *ChannelConflictError) Error() string {
	return fmt.Sprintf("session is bound to channel %s", e.BoundChannelID)
}

// PlayerFailureError wraps a failure reported by the Player
type PlayerFailureError struct {
	Reason error
}

func (e *PlayerFailureError) Error() string {
	return fmt.Sprintf("player failure: %v", e.Reason)
}

func (e *PlayerFailureError) Unwrap() error {
	return e.Reason
}

// TrackResolutionError wraps a failure to turn a query into a Track
type TrackResolutionError struct {
	Query  string
	Reason error
}

func (e *TrackResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", e.Query, e.Reason)
}

func (e *TrackResolutionError) Unwrap() error {
	return e.Reason
}
