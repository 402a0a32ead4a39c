package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

var (
	ErrVoiceNotReady     = errors.New("voice connection timed out")
	ErrForeignConnection = errors.New("connection was not created by this transport")
)

// Connection wraps a discordgo voice connection
type Connection struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
}

// ChannelID returns the voice channel the connection joined
func (c *Connection) ChannelID() string {
	return c.channelID
}

// Voice exposes the underlying discordgo connection
func (c *Connection) Voice() *discordgo.VoiceConnection {
	return c.vc
}

// Transport joins and leaves voice channels through a discordgo session
type Transport struct {
	dg           *discordgo.Session
	joinAttempts int
	readyTimeout time.Duration
	logger       logging.Logger
}

// NewTransport creates a voice transport
func NewTransport(dg *discordgo.Session, logger logging.Logger) *Transport {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Transport{
		dg:           dg,
		joinAttempts: 3,
		readyTimeout: 10 * time.Second,
		logger:       logger.With(logging.String("component", "voice_transport")),
	}
}

// Connect joins the voice channel, retrying with a linear backoff, and waits
// until the connection is ready
func (t *Transport) Connect(ctx context.Context, guildID, voiceChannelID string) (session.Connection, error) {
	t.logger.Info("Joining voice channel",
		logging.String("guild_id", guildID),
		logging.String("voice_channel_id", voiceChannelID),
	)

	var vc *discordgo.VoiceConnection
	var err error
	for i := 0; i < t.joinAttempts; i++ {
		vc, err = t.dg.ChannelVoiceJoin(guildID, voiceChannelID, false, true)
		if err == nil {
			break
		}

		t.logger.Warn("Voice join attempt failed",
			logging.Int("attempt", i+1),
			logging.Int("max_attempts", t.joinAttempts),
			logging.Error(err),
		)
		if i < t.joinAttempts-1 {
			select {
			case <-time.After(time.Duration(i+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", t.joinAttempts, err)
	}

	if err := t.waitReady(ctx, vc); err != nil {
		if dErr := vc.Disconnect(); dErr != nil {
			t.logger.Debug("Disconnect after failed join", logging.Error(dErr))
		}
		return nil, err
	}

	t.logger.Info("Voice connection ready", logging.String("guild_id", guildID))
	return &Connection{vc: vc, guildID: guildID, channelID: voiceChannelID}, nil
}

func (t *Transport) waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	timeout := time.After(t.readyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return ErrVoiceNotReady
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if vc.Ready {
				return nil
			}
		}
	}
}

// Disconnect leaves the voice channel of conn
func (t *Transport) Disconnect(conn session.Connection) error {
	c, ok := conn.(*Connection)
	if !ok {
		return ErrForeignConnection
	}
	if err := c.vc.Disconnect(); err != nil {
		return fmt.Errorf("voice disconnect: %w", err)
	}
	t.logger.Info("Disconnected from voice channel", logging.String("guild_id", c.guildID))
	return nil
}

// UserVoiceChannel returns the voice channel a user is sitting in, or ""
func UserVoiceChannel(dg *discordgo.Session, guildID, userID string) string {
	guild, err := dg.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
