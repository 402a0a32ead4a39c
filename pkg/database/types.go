package database

import (
	"time"
)

// DatabaseConfig holds configuration for the history database
type DatabaseConfig struct {
	DatabasePath      string        `json:"database_path"`
	MaxConnections    int           `json:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout"`

	// Performance settings
	WALMode         bool          `json:"wal_mode"`
	SynchronousMode string        `json:"synchronous_mode"`
	BusyTimeout     time.Duration `json:"busy_timeout"`

	// HistoryRetention is how long finished sessions and plays are kept
	HistoryRetention time.Duration `json:"history_retention"`
}

// DefaultDatabaseConfig returns a configuration with sensible defaults
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DatabasePath:      "data/tarumae.db",
		MaxConnections:    4,
		ConnectionTimeout: 10 * time.Second,

		WALMode:         true,
		SynchronousMode: "NORMAL",
		BusyTimeout:     5 * time.Second,

		HistoryRetention: 30 * 24 * time.Hour, // 30 days
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	if c.HistoryRetention <= 0 {
		return ErrInvalidRetention
	}
	return nil
}

// SessionRecord is one playback session of a guild
type SessionRecord struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	Plays     int        `json:"plays"`
}

// PlayRecord is one track start inside a session
type PlayRecord struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	GuildID     string        `json:"guild_id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	RequestedBy string        `json:"requested_by"`
	Duration    time.Duration `json:"duration"`
	Repeat      bool          `json:"repeat"`
	PlayedAt    time.Time     `json:"played_at"`
}

// PruneStats reports what a retention pass removed
type PruneStats struct {
	SessionsDeleted int64         `json:"sessions_deleted"`
	PlaysDeleted    int64         `json:"plays_deleted"`
	Duration        time.Duration `json:"duration"`
}
