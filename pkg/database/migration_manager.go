package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// migrationScript represents a single database migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
}

func (m *migrationScript) checksum() string {
	return fmt.Sprintf("%x", md5.Sum([]byte(m.UpSQL)))
}

// migrations is the ordered schema history of the history database
var migrations = []*migrationScript{
	{
		Version:     1,
		Name:        "playback_history",
		Description: "Create session and play history tables",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS playback_sessions (
				id TEXT PRIMARY KEY,
				guild_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				end_reason TEXT
			);

			CREATE TABLE IF NOT EXISTS plays (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES playback_sessions(id) ON DELETE CASCADE,
				guild_id TEXT NOT NULL,
				title TEXT NOT NULL,
				url TEXT NOT NULL,
				requested_by TEXT NOT NULL DEFAULT '',
				duration_ms INTEGER NOT NULL DEFAULT 0,
				is_repeat INTEGER NOT NULL DEFAULT 0,
				played_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_guild ON playback_sessions(guild_id, started_at);
			CREATE INDEX IF NOT EXISTS idx_sessions_ended ON playback_sessions(ended_at);
			CREATE INDEX IF NOT EXISTS idx_plays_session ON plays(session_id);
			CREATE INDEX IF NOT EXISTS idx_plays_guild ON plays(guild_id, played_at);
		`,
	},
}

// migrate applies every migration newer than the recorded schema version
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	pending := make([]*migrationScript, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, m.Version, m.Name, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m *migrationScript) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, description, checksum, applied_at) VALUES (?, ?, ?, ?, ?)`,
		m.Version, m.Name, m.Description, m.checksum(), time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func schemaVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
