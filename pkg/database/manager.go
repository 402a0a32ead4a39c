package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/latoulicious/tarumae/pkg/logging"
)

// DatabaseManager owns the sqlite connection of the history store
type DatabaseManager struct {
	config *DatabaseConfig
	db     *sql.DB
	logger logging.Logger

	connected bool
	mutex     sync.RWMutex
}

// NewDatabaseManager validates config and creates an unconnected manager
func NewDatabaseManager(config *DatabaseConfig, logger logging.Logger) (*DatabaseManager, error) {
	if config == nil {
		config = DefaultDatabaseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	return &DatabaseManager{
		config: config,
		logger: logger.With(logging.String("component", "database")),
	}, nil
}

// Connect opens the database and runs pending migrations
func (dm *DatabaseManager) Connect() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.connected {
		return nil
	}

	if dir := filepath.Dir(dm.config.DatabasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dm.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(dm.config.MaxConnections)
	db.SetMaxIdleConns(dm.config.MaxConnections)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	dm.db = db
	dm.connected = true
	dm.logger.Info("Database connected", logging.String("path", dm.config.DatabasePath))
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if !dm.connected {
		return nil
	}
	if err := dm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	dm.connected = false
	dm.db = nil
	dm.logger.Info("Database closed")
	return nil
}

// Ping tests the database connection
func (dm *DatabaseManager) Ping(ctx context.Context) error {
	db, err := dm.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// SchemaVersion returns the highest applied migration
func (dm *DatabaseManager) SchemaVersion() (int, error) {
	db, err := dm.conn()
	if err != nil {
		return 0, err
	}
	return schemaVersion(db)
}

// History returns the playback history repository
func (dm *DatabaseManager) History() *HistoryRepository {
	return &HistoryRepository{dm: dm}
}

// Config returns the active configuration
func (dm *DatabaseManager) Config() *DatabaseConfig {
	return dm.config
}

func (dm *DatabaseManager) conn() (*sql.DB, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	if !dm.connected || dm.db == nil {
		return nil, ErrDatabaseNotConnected
	}
	return dm.db, nil
}

// buildConnectionString builds the SQLite connection string with options
func (dm *DatabaseManager) buildConnectionString() string {
	connStr := "file:" + dm.config.DatabasePath + "?"

	if dm.config.WALMode {
		connStr += "_journal_mode=WAL&"
	}
	if dm.config.BusyTimeout > 0 {
		connStr += fmt.Sprintf("_busy_timeout=%d&", dm.config.BusyTimeout.Milliseconds())
	}
	connStr += fmt.Sprintf("_synchronous=%s&", dm.config.SynchronousMode)
	connStr += "_foreign_keys=on"

	return connStr
}
