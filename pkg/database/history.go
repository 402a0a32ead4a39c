package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryRepository stores playback sessions and the tracks they played
type HistoryRepository struct {
	dm *DatabaseManager
}

// StartSession records a new session and returns its id
func (r *HistoryRepository) StartSession(ctx context.Context, guildID, channelID string, startedAt time.Time) (string, error) {
	db, err := r.dm.conn()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO playback_sessions (id, guild_id, channel_id, started_at) VALUES (?, ?, ?, ?)`,
		id, guildID, channelID, startedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// EndSession marks a session finished
func (r *HistoryRepository) EndSession(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	db, err := r.dm.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE playback_sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt.UTC(), reason, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RecordPlay appends a play to a session
func (r *HistoryRepository) RecordPlay(ctx context.Context, play *PlayRecord) error {
	db, err := r.dm.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO plays (session_id, guild_id, title, url, requested_by, duration_ms, is_repeat, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		play.SessionID, play.GuildID, play.Title, play.URL, play.RequestedBy,
		play.Duration.Milliseconds(), play.Repeat, play.PlayedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	play.ID, _ = res.LastInsertId()
	return nil
}

// GetSession returns one session with its play count
func (r *HistoryRepository) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	db, err := r.dm.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT s.id, s.guild_id, s.channel_id, s.started_at, s.ended_at, COALESCE(s.end_reason, ''),
			(SELECT COUNT(*) FROM plays p WHERE p.session_id = s.id)
		FROM playback_sessions s WHERE s.id = ?`, sessionID)

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return rec, err
}

// RecentPlays returns the latest plays of a guild, newest first
func (r *HistoryRepository) RecentPlays(ctx context.Context, guildID string, limit int) ([]*PlayRecord, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	db, err := r.dm.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, guild_id, title, url, requested_by, duration_ms, is_repeat, played_at
		FROM plays WHERE guild_id = ?
		ORDER BY played_at DESC, id DESC
		LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []*PlayRecord
	for rows.Next() {
		var p PlayRecord
		var durationMS int64
		if err := rows.Scan(&p.ID, &p.SessionID, &p.GuildID, &p.Title, &p.URL, &p.RequestedBy,
			&durationMS, &p.Repeat, &p.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		p.Duration = time.Duration(durationMS) * time.Millisecond
		plays = append(plays, &p)
	}
	return plays, rows.Err()
}

// CloseOpenSessions ends sessions left open by a previous process
func (r *HistoryRepository) CloseOpenSessions(ctx context.Context, reason string, at time.Time) (int64, error) {
	db, err := r.dm.conn()
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE playback_sessions SET ended_at = ?, end_reason = ? WHERE ended_at IS NULL`,
		at.UTC(), reason,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close open sessions: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished sessions that ended before cutoff along with their
// plays. Open sessions are never removed.
func (r *HistoryRepository) Prune(ctx context.Context, cutoff time.Time) (*PruneStats, error) {
	db, err := r.dm.conn()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin prune: %w", err)
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	plays, err := tx.ExecContext(ctx, `
		DELETE FROM plays WHERE session_id IN (
			SELECT id FROM playback_sessions WHERE ended_at IS NOT NULL AND ended_at < ?
		)`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune plays: %w", err)
	}
	sessions, err := tx.ExecContext(ctx,
		`DELETE FROM playback_sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prune: %w", err)
	}

	stats := &PruneStats{Duration: time.Since(start)}
	stats.PlaysDeleted, _ = plays.RowsAffected()
	stats.SessionsDeleted, _ = sessions.RowsAffected()
	return stats, nil
}

func scanSession(row *sql.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var ended sql.NullTime
	if err := row.Scan(&rec.ID, &rec.GuildID, &rec.ChannelID, &rec.StartedAt, &ended, &rec.EndReason, &rec.Plays); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return &rec, nil
}
