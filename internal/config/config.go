package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

var ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	// Playback
	TeardownDelay   time.Duration `env:"TEARDOWN_DELAY" envDefault:"200ms"`
	MessageDeletion time.Duration `env:"MESSAGE_DELETION" envDefault:"30s"`
	FFmpegPath      string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	YtDlpPath       string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	OpusBitrate     int           `env:"OPUS_BITRATE" envDefault:"96000"`

	// Command throttling, per guild
	CommandRate  float64 `env:"COMMAND_RATE" envDefault:"2"`
	CommandBurst int     `env:"COMMAND_BURST" envDefault:"5"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile        string `env:"LOG_FILE"`
	LogRotateMB    int    `env:"LOG_ROTATE_MB" envDefault:"10"`
	LogRotateCount int    `env:"LOG_ROTATE_COUNT" envDefault:"5"`

	// History
	DatabasePath           string        `env:"DATABASE_PATH" envDefault:"data/tarumae.db"`
	HistoryRetention       time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	HistoryCleanupSchedule string        `env:"HISTORY_CLEANUP_SCHEDULE" envDefault:"0 0 */6 * * *"`
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrDiscordTokenNotSet
	}

	var errs []string
	if c.CommandPrefix == "" {
		errs = append(errs, "command prefix cannot be empty")
	}
	if c.TeardownDelay < 0 {
		errs = append(errs, "teardown delay must be >= 0")
	}
	if c.MessageDeletion < 0 {
		errs = append(errs, "message deletion delay must be >= 0")
	}
	if c.OpusBitrate < 500 || c.OpusBitrate > 512000 {
		errs = append(errs, "opus bitrate must be between 500 and 512000")
	}
	if c.CommandRate <= 0 {
		errs = append(errs, "command rate must be > 0")
	}
	if c.CommandBurst <= 0 {
		errs = append(errs, "command burst must be > 0")
	}
	if c.HistoryRetention <= 0 {
		errs = append(errs, "history retention must be > 0")
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.HistoryCleanupSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("invalid history cleanup schedule: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
